package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ConradBeck/ReelForge/app/models"
	"github.com/ConradBeck/ReelForge/internal/pkg/entitlements"
	"github.com/ConradBeck/ReelForge/internal/pkg/mail"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Service owns the local subscription lifecycle and reconciles it against
// canonical upstream snapshots.
type Service struct {
	repo    Repository
	fetcher Fetcher

	// sendMail is swappable so tests do not hit SMTP.
	sendMail func(to, subject, body string) error
	now      func() time.Time
}

// NewService creates a billing service from an injected repository and fetcher.
func NewService(repo Repository, fetcher Fetcher) *Service {
	return &Service{
		repo:     repo,
		fetcher:  fetcher,
		sendMail: mail.SendMail,
		now:      time.Now,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle with the
// environment-configured Stripe client.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), NewStripeClientFromEnv())
}

// mapUpstreamStatus projects the upstream subscription status onto the local
// lifecycle: incomplete -> pending -> active, active <-> past_due,
// any -> canceled (terminal).
func mapUpstreamStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing":
		return models.SubscriptionStatusActive
	case "past_due", "unpaid":
		return models.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return models.SubscriptionStatusCanceled
	case "incomplete":
		return models.SubscriptionStatusIncomplete
	default:
		return models.SubscriptionStatusPending
	}
}

// planFromSnapshot resolves the internal plan from the snapshot's price ref
// or metadata, defaulting to free.
func planFromSnapshot(snap *SubscriptionSnapshot) entitlements.Plan {
	if p, ok := snap.Metadata["plan"]; ok {
		return entitlements.NormalizePlan(p)
	}
	return entitlements.NormalizePlan(snap.PlanRef)
}

// ApplySubscriptionSnapshot upserts the local row for a canonical snapshot.
// userID may be zero; it is then resolved from the existing row, the snapshot
// metadata, or the fallback customer correlation, in that order. When
// allowCreate is false and no local row exists the event is a no-op by design:
// rows are only created by the checkout and invoice-paid paths, so the
// subscription.created/updated events cannot race a second creation path into
// a duplicate row.
func (s *Service) ApplySubscriptionSnapshot(ctx context.Context, userID uint, snap *SubscriptionSnapshot, allowCreate bool) (*models.Subscription, error) {
	if snap == nil || strings.TrimSpace(snap.StripeSubscriptionID) == "" {
		return nil, fmt.Errorf("%w: snapshot missing subscription id", ErrMalformedEvent)
	}

	existing, err := s.repo.GetSubscriptionByStripeID(snap.StripeSubscriptionID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if existing == nil && !allowCreate {
		log.Infof("[Billing] No local row for subscription %s, skipping update-only event", snap.StripeSubscriptionID)
		return nil, nil
	}

	newStatus := mapUpstreamStatus(snap.Status)

	if existing != nil && existing.IsTerminal() && newStatus != models.SubscriptionStatusCanceled {
		log.Warnf("[Billing] Ignoring %s update for canceled subscription %s", newStatus, snap.StripeSubscriptionID)
		return existing, nil
	}

	resolvedUser, err := s.resolveUser(userID, existing, snap)
	if err != nil {
		return nil, err
	}

	plan := planFromSnapshot(snap)
	sub := &models.Subscription{
		UserID:               resolvedUser,
		Plan:                 string(plan),
		StripeSubscriptionID: snap.StripeSubscriptionID,
		StripeCustomerID:     snap.StripeCustomerID,
		Status:               newStatus,
		CurrentPeriodStart:   snap.CurrentPeriodStart,
		CurrentPeriodEnd:     snap.CurrentPeriodEnd,
		CancelAtPeriodEnd:    snap.CancelAtPeriodEnd,
		VideoLimit:           entitlements.VideoLimit(plan),
	}

	// Usage resets only on a transition into active, never on a no-op update.
	if existing != nil {
		sub.VideoCount = existing.VideoCount
		if newStatus != models.SubscriptionStatusActive {
			sub.CurrentPeriodStart = existing.CurrentPeriodStart
			sub.CurrentPeriodEnd = existing.CurrentPeriodEnd
			if snap.CurrentPeriodStart != nil {
				sub.CurrentPeriodStart = snap.CurrentPeriodStart
			}
			if snap.CurrentPeriodEnd != nil {
				sub.CurrentPeriodEnd = snap.CurrentPeriodEnd
			}
		}
	}
	if newStatus == models.SubscriptionStatusActive {
		wasActive := existing != nil && existing.Status == models.SubscriptionStatusActive
		if !wasActive {
			sub.VideoCount = 0
		}
	}

	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.notifyTransition(existing, sub)
	return sub, nil
}

// resolveUser determines the owning user for a snapshot write.
func (s *Service) resolveUser(userID uint, existing *models.Subscription, snap *SubscriptionSnapshot) (uint, error) {
	if userID != 0 {
		return userID, nil
	}
	if existing != nil && existing.UserID != 0 {
		return existing.UserID, nil
	}
	if raw, ok := snap.Metadata["user_id"]; ok {
		if id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32); err == nil && id > 0 {
			return uint(id), nil
		}
	}
	if snap.StripeCustomerID != "" {
		candidate, err := s.CorrelateByCustomer(snap.StripeCustomerID)
		if err == nil {
			return candidate.UserID, nil
		}
		if !errors.Is(err, ErrCorrelationNotFound) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("%w: customer %q", ErrCorrelationNotFound, snap.StripeCustomerID)
}

// HandleCheckoutCompleted is one of the two legitimate creation paths. Only
// paid, subscription-mode sessions are acted on; everything else is skipped.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, cs *CheckoutSession) error {
	if cs.Mode != "subscription" || cs.PaymentStatus != "paid" {
		log.Infof("[Billing] Skipping checkout session %s (mode=%s, payment_status=%s)", cs.ID, cs.Mode, cs.PaymentStatus)
		return nil
	}
	if strings.TrimSpace(cs.Subscription) == "" {
		log.Warnf("[Billing] Checkout session %s has no subscription reference", cs.ID)
		return nil
	}

	var userID uint
	if ref := strings.TrimSpace(cs.ClientReferenceID); ref != "" {
		if id, err := strconv.ParseUint(ref, 10, 32); err == nil {
			userID = uint(id)
		}
	}

	snap, err := s.fetcher.GetSubscription(ctx, cs.Subscription)
	if err != nil {
		return err
	}
	_, err = s.ApplySubscriptionSnapshot(ctx, userID, snap, true)
	return err
}

// HandleSubscriptionEvent covers subscription created/updated/deleted. These
// are update-only: a missing local row is expected when Stripe delivers them
// before the checkout or invoice event, and the row will arrive via those.
func (s *Service) HandleSubscriptionEvent(ctx context.Context, eventType string, sub *SubscriptionEvent) error {
	snap, err := s.fetcher.GetSubscription(ctx, sub.ID)
	if err != nil {
		if eventType == EventSubscriptionDeleted && errors.Is(err, ErrUpstreamNotFound) {
			// The object is gone upstream; the only converged state is canceled.
			return s.cancelLocal(sub.ID)
		}
		return err
	}
	_, err = s.ApplySubscriptionSnapshot(ctx, 0, snap, false)
	return err
}

func (s *Service) cancelLocal(stripeSubscriptionID string) error {
	existing, err := s.repo.GetSubscriptionByStripeID(stripeSubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Infof("[Billing] No local row for deleted subscription %s", stripeSubscriptionID)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if existing.IsTerminal() {
		return nil
	}
	existing.Status = models.SubscriptionStatusCanceled
	if err := s.repo.SaveSubscription(existing); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.notifyTransition(nil, existing)
	return nil
}

// ActiveSubscription returns the user's active subscription, or nil when none
// exists. Rows stuck in pending past their stored period end are demoted to
// past_due lazily on read instead of requiring a separate timer.
func (s *Service) ActiveSubscription(userID uint) (*models.Subscription, error) {
	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	now := s.now()
	var active *models.Subscription
	for i := range subs {
		sub := &subs[i]
		if sub.Status == models.SubscriptionStatusPending && sub.PeriodExpired(now) {
			sub.Status = models.SubscriptionStatusPastDue
			if err := s.repo.SaveSubscription(sub); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
			}
			continue
		}
		if sub.Status == models.SubscriptionStatusActive {
			active = sub
		}
	}
	return active, nil
}

// SweepStaleOpenSubscriptions cancels rows stuck in incomplete/pending past
// the grace period. Abandoned checkouts leave such rows behind; this is an
// operational cleanup, run from the job queue, using the same write
// operations as the main flow.
func (s *Service) SweepStaleOpenSubscriptions(grace time.Duration) (int, error) {
	cutoff := s.now().Add(-grace)
	subs, err := s.repo.ListOpenSubscriptionsOlderThan(cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	canceled := 0
	for i := range subs {
		sub := &subs[i]
		sub.Status = models.SubscriptionStatusCanceled
		if err := s.repo.SaveSubscription(sub); err != nil {
			return canceled, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		log.Infof("[Billing] Sweep canceled stale subscription %s (user=%d, created=%s)",
			sub.StripeSubscriptionID, sub.UserID, sub.CreatedAt.Format(time.RFC3339))
		canceled++
	}
	return canceled, nil
}

// notifyTransition records a user-visible notification for meaningful status
// changes. Failures are logged, never fatal: notifications are best effort.
func (s *Service) notifyTransition(before, after *models.Subscription) {
	if after == nil || after.UserID == 0 {
		return
	}
	prev := ""
	if before != nil {
		prev = before.Status
	}
	if prev == after.Status {
		return
	}

	var content string
	switch after.Status {
	case models.SubscriptionStatusActive:
		content = fmt.Sprintf("Your %s plan is now active.", after.Plan)
	case models.SubscriptionStatusCanceled:
		content = "Your subscription has been canceled."
	case models.SubscriptionStatusPastDue:
		content = "Your last payment failed. Please update your payment method."
	default:
		return
	}

	if err := s.repo.CreateNotification(after.UserID, models.NotificationTypeBilling, content, after.ID); err != nil {
		log.Errorf("[Billing] Failed to create notification for user %d: %v", after.UserID, err)
	}
}

// sendDunningEmail emails the user after a failed payment. Best effort.
func (s *Service) sendDunningEmail(userID uint, amount int64, currency string) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		log.Errorf("[Billing] Dunning mail: cannot load user %d: %v", userID, err)
		return
	}
	subject := "Payment failed for your ReelForge subscription"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>we could not collect your payment of %s. Please update your payment method to keep your plan.</p>",
		user.Name, formatAmount(amount, currency),
	)
	if err := s.sendMail(user.Email, subject, body); err != nil {
		log.Errorf("[Billing] Dunning mail to user %d failed: %v", userID, err)
	}
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(minor)/100, strings.ToUpper(currency))
}
