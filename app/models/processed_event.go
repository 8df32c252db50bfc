package models

import "time"

// ProcessedEvent is the idempotency ledger entry for Stripe webhook events.
// The presence of a row means the effects of that event ID have already been
// applied. Rows are inserted after successful handling (never before), so a
// crash mid-processing results in at-least-once reprocessing by design.
type ProcessedEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	StripeEventID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_processed_events_stripe_event_id" json:"stripe_event_id"`
	EventType     string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON   string    `gorm:"type:longtext;not null" json:"payload_json"`
	ProcessedAt   time.Time `gorm:"autoCreateTime;index" json:"processed_at"`
}
