package billing

import "errors"

// Error taxonomy for webhook processing. The dispatcher decides
// acknowledgment from these: signature and shape failures are rejected with
// 400, correlation misses are acknowledged as no-ops, everything else fails
// the event without marking it processed so the platform redelivers.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance window")
	ErrMalformedEvent   = errors.New("malformed webhook event payload")

	ErrUpstreamUnavailable = errors.New("upstream billing API unavailable")
	ErrUpstreamNotFound    = errors.New("upstream object not found")

	ErrCorrelationNotFound = errors.New("no open subscription candidate for customer")

	ErrPersistence = errors.New("billing store write failed")
)
