package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ConradBeck/ReelForge/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// HandleInvoicePaid marks the invoice's ledger entry succeeded and runs the
// subscription upsert path. This is the second legitimate creation path: it
// tolerates a missed checkout.session.completed event entirely.
func (s *Service) HandleInvoicePaid(ctx context.Context, inv *InvoiceEvent) error {
	var sub *models.Subscription
	if strings.TrimSpace(inv.Subscription) != "" {
		snap, err := s.fetcher.GetSubscription(ctx, inv.Subscription)
		if err != nil {
			return err
		}
		sub, err = s.ApplySubscriptionSnapshot(ctx, 0, snap, true)
		if err != nil {
			return err
		}
	} else {
		// No correlation id on the invoice: fall back to customer identity,
		// then reconcile the correlated subscription the same way. The payment
		// succeeded, so the local row must not stay pending until an unrelated
		// subscription event arrives.
		candidate, err := s.CorrelateByCustomer(inv.Customer)
		if err != nil {
			return err
		}
		snap, err := s.fetcher.GetSubscription(ctx, candidate.StripeSubscriptionID)
		if err != nil {
			return err
		}
		sub, err = s.ApplySubscriptionSnapshot(ctx, 0, snap, true)
		if err != nil {
			return err
		}
	}

	entry := ledgerEntryFromInvoice(inv, sub)
	entry.Status = models.LedgerStatusSucceeded
	if err := s.repo.UpsertLedgerEntry(entry); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// HandleInvoiceFailed marks the ledger entry failed and drives the owning
// subscription to past_due.
func (s *Service) HandleInvoiceFailed(ctx context.Context, inv *InvoiceEvent) error {
	var sub *models.Subscription
	if strings.TrimSpace(inv.Subscription) != "" {
		existing, err := s.repo.GetSubscriptionByStripeID(inv.Subscription)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		sub = existing
	}

	entry := ledgerEntryFromInvoice(inv, sub)
	entry.Status = models.LedgerStatusFailed
	if err := s.repo.UpsertLedgerEntry(entry); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if sub == nil || sub.IsTerminal() {
		if sub == nil {
			log.Infof("[Billing] Payment failed for invoice %s without a local subscription", inv.ID)
		}
		return nil
	}

	if sub.Status != models.SubscriptionStatusPastDue {
		before := *sub
		sub.Status = models.SubscriptionStatusPastDue
		if err := s.repo.SaveSubscription(sub); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		s.notifyTransition(&before, sub)
	}
	s.sendDunningEmail(sub.UserID, inv.AmountDue, inv.Currency)
	return nil
}

// HandlePaymentIntentSucceeded handles payment confirmations that carry no
// invoice. When metadata names a subscription it is reconciled directly;
// otherwise the fallback customer correlation picks the newest open intent.
func (s *Service) HandlePaymentIntentSucceeded(ctx context.Context, pi *PaymentIntentEvent) error {
	subID := strings.TrimSpace(pi.Metadata["subscription_id"])
	if subID == "" {
		candidate, err := s.CorrelateByCustomer(pi.Customer)
		if err != nil {
			return err
		}
		subID = candidate.StripeSubscriptionID
	}

	snap, err := s.fetcher.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	_, err = s.ApplySubscriptionSnapshot(ctx, 0, snap, true)
	return err
}

func ledgerEntryFromInvoice(inv *InvoiceEvent, sub *models.Subscription) *models.BillingLedgerEntry {
	entry := &models.BillingLedgerEntry{
		Amount:                invoiceAmount(inv),
		Currency:              strings.ToLower(inv.Currency),
		StripeInvoiceID:       inv.ID,
		StripePaymentIntentID: inv.PaymentIntent,
		Description:           inv.Description,
	}
	if sub != nil {
		entry.UserID = sub.UserID
		entry.SubscriptionID = &sub.ID
	}
	return entry
}

func invoiceAmount(inv *InvoiceEvent) int64 {
	if inv.AmountPaid > 0 {
		return inv.AmountPaid
	}
	if inv.AmountDue > 0 {
		return inv.AmountDue
	}
	return 0
}
