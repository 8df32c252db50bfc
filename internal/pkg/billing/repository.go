package billing

import (
	"time"

	"github.com/ConradBeck/ReelForge/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the reconciliation engine. All
// writes are upserts keyed by stable natural identifiers (Stripe subscription
// ID, invoice ID, event ID), which is what makes concurrent handling of
// redelivered and reordered events safe without cross-event locking.
type Repository interface {
	GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error)
	UpsertSubscription(sub *models.Subscription) error
	SaveSubscription(sub *models.Subscription) error
	ListSubscriptionsByUser(userID uint) ([]models.Subscription, error)
	ListOpenSubscriptionsByCustomer(stripeCustomerID string) ([]models.Subscription, error)
	ListOpenSubscriptionsOlderThan(cutoff time.Time) ([]models.Subscription, error)

	UpsertLedgerEntry(entry *models.BillingLedgerEntry) error
	GetLedgerEntryByInvoiceID(stripeInvoiceID string) (*models.BillingLedgerEntry, error)

	HasProcessedEvent(stripeEventID string) (bool, error)
	MarkEventProcessed(event *models.ProcessedEvent) (bool, error)
	DeleteProcessedEventsBefore(cutoff time.Time) (int64, error)

	GetUserByID(userID uint) (*models.User, error)
	CreateNotification(userID uint, notificationType, content string, referenceID uint) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"plan",
			"stripe_customer_id",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"video_count",
			"video_limit",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).First(sub).Error
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListOpenSubscriptionsByCustomer(stripeCustomerID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("stripe_customer_id = ? AND status IN ?", stripeCustomerID,
			[]string{models.SubscriptionStatusIncomplete, models.SubscriptionStatusPending}).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListOpenSubscriptionsOlderThan(cutoff time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status IN ? AND created_at < ?",
			[]string{models.SubscriptionStatusIncomplete, models.SubscriptionStatusPending}, cutoff).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) UpsertLedgerEntry(entry *models.BillingLedgerEntry) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_invoice_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"subscription_id",
			"amount",
			"currency",
			"status",
			"stripe_payment_intent_id",
			"description",
			"updated_at",
		}),
	}).Create(entry).Error; err != nil {
		return err
	}

	return r.db.Where("stripe_invoice_id = ?", entry.StripeInvoiceID).First(entry).Error
}

func (r *gormRepository) GetLedgerEntryByInvoiceID(stripeInvoiceID string) (*models.BillingLedgerEntry, error) {
	var entry models.BillingLedgerEntry
	err := r.db.Where("stripe_invoice_id = ?", stripeInvoiceID).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *gormRepository) HasProcessedEvent(stripeEventID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.ProcessedEvent{}).
		Where("stripe_event_id = ?", stripeEventID).
		Count(&count).Error
	return count > 0, err
}

// MarkEventProcessed inserts the idempotency record and reports whether this
// call won the race. Two concurrent deliveries of the same event ID both run
// their handler (handlers are upsert-based and safe to run twice); exactly
// one insert wins the unique index.
func (r *gormRepository) MarkEventProcessed(event *models.ProcessedEvent) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// DeleteProcessedEventsBefore prunes old idempotency records. The upstream
// redelivery window is bounded, so retention is operational hygiene, not a
// correctness requirement.
func (r *gormRepository) DeleteProcessedEventsBefore(cutoff time.Time) (int64, error) {
	tx := r.db.Where("processed_at < ?", cutoff).Delete(&models.ProcessedEvent{})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) GetUserByID(userID uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, userID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) CreateNotification(userID uint, notificationType, content string, referenceID uint) error {
	return models.CreateNotification(r.db, userID, notificationType, content, referenceID)
}
