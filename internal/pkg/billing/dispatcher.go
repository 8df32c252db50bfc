package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ConradBeck/ReelForge/app/models"
	"github.com/ConradBeck/ReelForge/internal/pkg/kvstore"
	"github.com/gofiber/fiber/v2/log"
)

// Outcome classifies how an event ended. The webhook handler maps it to an
// HTTP status: anything but an error is a 200 so the platform stops
// redelivering.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

const recentEventTTL = 24 * time.Hour

// Dispatcher verifies, deduplicates, and routes inbound webhook events.
//
// Per-event state machine: received -> verified -> (duplicate: short-circuit)
// -> handled -> acknowledged. The idempotency record is written only after
// successful handling, so a crash mid-processing yields at-least-once
// reprocessing; every handler is upsert-based and safe to run twice.
type Dispatcher struct {
	svc    *Service
	repo   Repository
	recent kvstore.Store

	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewDispatcher wires the dispatcher. The recent store is a best-effort TTL
// cache in front of the authoritative DB dedup check; passing an in-memory
// store is fine for single-node setups.
func NewDispatcher(svc *Service, repo Repository, recent kvstore.Store, secret string, tolerance time.Duration) *Dispatcher {
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	return &Dispatcher{
		svc:       svc,
		repo:      repo,
		recent:    recent,
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Dispatch processes one raw webhook delivery. The payload must be the raw,
// unparsed request body: recomputing the signature over re-serialized JSON
// would invalidate the check.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error) {
	if err := VerifyWebhookSignature(payload, signatureHeader, d.secret, d.tolerance, d.now()); err != nil {
		// A true mismatch on an otherwise well-formed request is a security event.
		log.Warnf("[Billing] Webhook signature rejected: %v", err)
		return "", err
	}

	ev, err := ParseEvent(payload)
	if err != nil {
		return "", err
	}

	if dup, err := d.alreadyProcessed(ctx, ev.ID); err != nil {
		return "", err
	} else if dup {
		log.Infof("[Billing] Duplicate delivery of event %s (%s), short-circuiting", ev.ID, ev.Type)
		return OutcomeDuplicate, nil
	}

	outcome, err := d.route(ctx, ev)
	if err != nil {
		if errors.Is(err, ErrCorrelationNotFound) {
			// Retrying will not materialize a missing subscription; ack as no-op.
			outcome = OutcomeIgnored
		} else {
			return "", err
		}
	}

	if err := d.finalize(ctx, ev, payload); err != nil {
		return "", err
	}
	return outcome, nil
}

func (d *Dispatcher) route(ctx context.Context, ev *Event) (Outcome, error) {
	switch ev.Type {
	case EventCheckoutCompleted:
		var cs CheckoutSession
		if err := decodeObject(ev, &cs); err != nil {
			return "", err
		}
		return OutcomeProcessed, d.svc.HandleCheckoutCompleted(ctx, &cs)

	case EventInvoicePaid:
		var inv InvoiceEvent
		if err := decodeObject(ev, &inv); err != nil {
			return "", err
		}
		return OutcomeProcessed, d.svc.HandleInvoicePaid(ctx, &inv)

	case EventInvoiceFailed:
		var inv InvoiceEvent
		if err := decodeObject(ev, &inv); err != nil {
			return "", err
		}
		return OutcomeProcessed, d.svc.HandleInvoiceFailed(ctx, &inv)

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub SubscriptionEvent
		if err := decodeObject(ev, &sub); err != nil {
			return "", err
		}
		return OutcomeProcessed, d.svc.HandleSubscriptionEvent(ctx, ev.Type, &sub)

	case EventPaymentIntentSucceeded:
		var pi PaymentIntentEvent
		if err := decodeObject(ev, &pi); err != nil {
			return "", err
		}
		return OutcomeProcessed, d.svc.HandlePaymentIntentSucceeded(ctx, &pi)

	default:
		log.Infof("[Billing] Ignoring unknown event kind %s (%s)", ev.Type, ev.ID)
		return OutcomeIgnored, nil
	}
}

// alreadyProcessed consults the recent-event cache first and falls back to
// the authoritative idempotency ledger.
func (d *Dispatcher) alreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	if d.recent != nil {
		if _, hit, err := d.recent.Get(ctx, recentEventKey(eventID)); err == nil && hit {
			return true, nil
		}
	}
	processed, err := d.repo.HasProcessedEvent(eventID)
	if err != nil {
		return false, errors.Join(ErrPersistence, err)
	}
	return processed, nil
}

// finalize commits the idempotency record. On a concurrent race, exactly one
// delivery wins the unique insert; the loser already ran its (idempotent)
// handler, which is the documented and safe behavior.
func (d *Dispatcher) finalize(ctx context.Context, ev *Event, payload []byte) error {
	won, err := d.repo.MarkEventProcessed(&models.ProcessedEvent{
		StripeEventID: ev.ID,
		EventType:     ev.Type,
		PayloadJSON:   string(payload),
	})
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}
	if !won {
		log.Infof("[Billing] Event %s was marked processed by a concurrent delivery", ev.ID)
	}
	if d.recent != nil {
		// SetNX: a concurrent delivery may have written the marker already.
		if _, err := d.recent.SetNX(ctx, recentEventKey(ev.ID), "1", recentEventTTL); err != nil {
			log.Warnf("[Billing] Recent-event cache write failed for %s: %v", ev.ID, err)
		}
	}
	return nil
}

func recentEventKey(eventID string) string {
	return "billing:event:" + eventID
}
