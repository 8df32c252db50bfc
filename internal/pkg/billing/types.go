package billing

import "time"

// SubscriptionSnapshot is the authoritative current state of a subscription
// as fetched from the upstream platform. Webhook payloads embed a point-in-time
// copy that may already be stale, so state-changing handlers always work from
// a fresh snapshot instead.
type SubscriptionSnapshot struct {
	StripeSubscriptionID string
	StripeCustomerID     string
	Status               string
	PlanRef              string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
	Metadata             map[string]string
}

// InvoiceSnapshot is the authoritative current state of an invoice.
type InvoiceSnapshot struct {
	StripeInvoiceID       string
	StripeCustomerID      string
	StripeSubscriptionID  string
	StripePaymentIntentID string
	AmountDue             int64
	Currency              string
	Status                string
	Description           string
}

// PaymentIntentSnapshot is the authoritative current state of a payment intent.
type PaymentIntentSnapshot struct {
	StripePaymentIntentID string
	StripeCustomerID      string
	Amount                int64
	Currency              string
	Status                string
	Metadata              map[string]string
}
