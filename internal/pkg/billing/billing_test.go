package billing

import (
	"context"
	"sync"
	"time"

	"github.com/ConradBeck/ReelForge/app/models"
	"gorm.io/gorm"
)

// fakeRepo is an in-memory Repository used across the engine tests. It
// mirrors the DB semantics the engine relies on: upserts keyed by natural
// IDs and a unique-insert idempotency ledger.
type fakeRepo struct {
	mu            sync.Mutex
	subs          map[string]*models.Subscription
	ledger        map[string]*models.BillingLedgerEntry
	processed     map[string]*models.ProcessedEvent
	users         map[uint]*models.User
	notifications []string
	nextID        uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		subs:      make(map[string]*models.Subscription),
		ledger:    make(map[string]*models.BillingLedgerEntry),
		processed: make(map[string]*models.ProcessedEvent),
		users:     make(map[uint]*models.User),
	}
}

func (r *fakeRepo) seedSubscription(sub models.Subscription) *models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.ID == 0 {
		r.nextID++
		sub.ID = r.nextID
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	stored := sub
	r.subs[sub.StripeSubscriptionID] = &stored
	return &stored
}

func (r *fakeRepo) GetSubscriptionByStripeID(id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *fakeRepo) UpsertSubscription(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.subs[sub.StripeSubscriptionID]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		r.nextID++
		sub.ID = r.nextID
		sub.CreatedAt = time.Now()
	}
	cp := *sub
	r.subs[sub.StripeSubscriptionID] = &cp
	return nil
}

func (r *fakeRepo) SaveSubscription(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sub
	r.subs[sub.StripeSubscriptionID] = &cp
	return nil
}

func (r *fakeRepo) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.subs {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListOpenSubscriptionsByCustomer(customerID string) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.subs {
		if sub.StripeCustomerID != customerID {
			continue
		}
		if sub.Status != models.SubscriptionStatusIncomplete && sub.Status != models.SubscriptionStatusPending {
			continue
		}
		out = append(out, *sub)
	}
	// newest first, matching the repository query
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) ListOpenSubscriptionsOlderThan(cutoff time.Time) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.subs {
		if sub.Status != models.SubscriptionStatusIncomplete && sub.Status != models.SubscriptionStatusPending {
			continue
		}
		if sub.CreatedAt.Before(cutoff) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpsertLedgerEntry(entry *models.BillingLedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.ledger[entry.StripeInvoiceID]; ok {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	} else {
		r.nextID++
		entry.ID = r.nextID
		entry.CreatedAt = time.Now()
	}
	cp := *entry
	r.ledger[entry.StripeInvoiceID] = &cp
	return nil
}

func (r *fakeRepo) GetLedgerEntryByInvoiceID(id string) (*models.BillingLedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.ledger[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *entry
	return &cp, nil
}

func (r *fakeRepo) HasProcessedEvent(eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.processed[eventID]
	return ok, nil
}

func (r *fakeRepo) MarkEventProcessed(event *models.ProcessedEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.processed[event.StripeEventID]; ok {
		return false, nil
	}
	cp := *event
	cp.ProcessedAt = time.Now()
	r.processed[event.StripeEventID] = &cp
	return true, nil
}

func (r *fakeRepo) DeleteProcessedEventsBefore(cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, ev := range r.processed {
		if ev.ProcessedAt.Before(cutoff) {
			delete(r.processed, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeRepo) GetUserByID(userID uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *fakeRepo) CreateNotification(userID uint, notificationType, content string, referenceID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, content)
	return nil
}

// stubFetcher returns scripted snapshots. Queued snapshots are consumed in
// order per subscription ID, so tests can simulate the canonical state
// changing between fetches.
type stubFetcher struct {
	mu        sync.Mutex
	snapshots map[string][]*SubscriptionSnapshot
	invoices  map[string]*InvoiceSnapshot
	intents   map[string]*PaymentIntentSnapshot
	err       error
	fetches   int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		snapshots: make(map[string][]*SubscriptionSnapshot),
		invoices:  make(map[string]*InvoiceSnapshot),
		intents:   make(map[string]*PaymentIntentSnapshot),
	}
}

func (f *stubFetcher) queueSnapshot(snaps ...*SubscriptionSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range snaps {
		f.snapshots[s.StripeSubscriptionID] = append(f.snapshots[s.StripeSubscriptionID], s)
	}
}

func (f *stubFetcher) GetSubscription(_ context.Context, id string) (*SubscriptionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	queue := f.snapshots[id]
	if len(queue) == 0 {
		return nil, ErrUpstreamNotFound
	}
	snap := queue[0]
	if len(queue) > 1 {
		f.snapshots[id] = queue[1:]
	}
	return snap, nil
}

func (f *stubFetcher) GetInvoice(_ context.Context, id string) (*InvoiceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	inv, ok := f.invoices[id]
	if !ok {
		return nil, ErrUpstreamNotFound
	}
	return inv, nil
}

func (f *stubFetcher) GetPaymentIntent(_ context.Context, id string) (*PaymentIntentSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	pi, ok := f.intents[id]
	if !ok {
		return nil, ErrUpstreamNotFound
	}
	return pi, nil
}

func newTestService(repo *fakeRepo, fetcher *stubFetcher) *Service {
	svc := NewService(repo, fetcher)
	svc.sendMail = func(to, subject, body string) error { return nil }
	return svc
}

func activeSnapshot(subID, customerID string) *SubscriptionSnapshot {
	start := time.Now().Truncate(time.Second)
	end := start.Add(30 * 24 * time.Hour)
	return &SubscriptionSnapshot{
		StripeSubscriptionID: subID,
		StripeCustomerID:     customerID,
		Status:               "active",
		PlanRef:              "creator",
		CurrentPeriodStart:   &start,
		CurrentPeriodEnd:     &end,
		Metadata:             map[string]string{"user_id": "7"},
	}
}
