package models

import "time"

const (
	LedgerStatusPending   = "pending"
	LedgerStatusOpen      = "open"
	LedgerStatusSucceeded = "succeeded"
	LedgerStatusFailed    = "failed"
	LedgerStatusCanceled  = "canceled"
)

// BillingLedgerEntry records one row per Stripe invoice. Amounts are stored
// in integer minor units (cents), never floating point. The unique index on
// the invoice ID makes redelivered events upsert instead of duplicating rows.
type BillingLedgerEntry struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	UserID                uint      `gorm:"not null;index" json:"user_id"`
	SubscriptionID        *uint     `gorm:"index" json:"subscription_id,omitempty"`
	Amount                int64     `gorm:"not null;default:0" json:"amount"`
	Currency              string    `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`
	Status                string    `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	StripeInvoiceID       string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_billing_ledger_stripe_invoice_id" json:"stripe_invoice_id"`
	StripePaymentIntentID string    `gorm:"type:varchar(191);default:''" json:"stripe_payment_intent_id"`
	Description           string    `gorm:"type:varchar(255);default:''" json:"description"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
