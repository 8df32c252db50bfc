package billing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Event kinds the dispatcher routes. Unknown kinds are acknowledged as
// no-ops for forward compatibility.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventInvoicePaid            = "invoice.payment_succeeded"
	EventInvoiceFailed          = "invoice.payment_failed"
	EventSubscriptionCreated    = "customer.subscription.created"
	EventSubscriptionUpdated    = "customer.subscription.updated"
	EventSubscriptionDeleted    = "customer.subscription.deleted"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
)

// Event is the webhook envelope. Only the fields the engine reads are
// declared; the raw object payload is decoded per event kind.
type Event struct {
	ID      string `json:"id" validate:"required"`
	Type    string `json:"type" validate:"required"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession is the embedded checkout session object. Customer and
// Subscription carry bare IDs (the engine never trusts embedded state beyond
// identity and correlation fields).
type CheckoutSession struct {
	ID                string `json:"id" validate:"required"`
	Mode              string `json:"mode"`
	PaymentStatus     string `json:"payment_status"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	ClientReferenceID string `json:"client_reference_id"`
}

// InvoiceEvent is the embedded invoice object.
type InvoiceEvent struct {
	ID            string `json:"id" validate:"required"`
	Customer      string `json:"customer"`
	Subscription  string `json:"subscription"`
	PaymentIntent string `json:"payment_intent"`
	AmountDue     int64  `json:"amount_due"`
	AmountPaid    int64  `json:"amount_paid"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
}

// SubscriptionEvent is the embedded subscription object. Only the ID is used;
// the handler refetches the canonical snapshot before writing anything.
type SubscriptionEvent struct {
	ID       string `json:"id" validate:"required"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

// PaymentIntentEvent is the embedded payment intent object.
type PaymentIntentEvent struct {
	ID       string            `json:"id" validate:"required"`
	Customer string            `json:"customer"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

var eventValidator = validator.New()

// ParseEvent decodes and validates the webhook envelope.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := eventValidator.Struct(&ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev.Type = strings.TrimSpace(ev.Type)
	return &ev, nil
}

func decodeObject(ev *Event, out interface{}) error {
	if len(ev.Data.Object) == 0 {
		return fmt.Errorf("%w: event %s has no data object", ErrMalformedEvent, ev.ID)
	}
	if err := json.Unmarshal(ev.Data.Object, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := eventValidator.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}
