package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEvent(t *testing.T) {
	payload := []byte(`{
		"id": "evt_123",
		"type": "invoice.payment_succeeded",
		"created": 1756700000,
		"data": {"object": {"id": "in_1", "customer": "cus_1", "amount_paid": 19900, "currency": "usd"}}
	}`)

	ev, err := ParseEvent(payload)
	assert.NoError(t, err)
	assert.Equal(t, "evt_123", ev.ID)
	assert.Equal(t, EventInvoicePaid, ev.Type)

	var inv InvoiceEvent
	assert.NoError(t, decodeObject(ev, &inv))
	assert.Equal(t, "in_1", inv.ID)
	assert.Equal(t, int64(19900), inv.AmountPaid)
	assert.Equal(t, "usd", inv.Currency)
}

func TestParseEventInvalidJSON(t *testing.T) {
	_, err := ParseEvent([]byte(`{"id": "evt_1", "type":`))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestParseEventMissingRequiredFields(t *testing.T) {
	// id present, type missing
	_, err := ParseEvent([]byte(`{"id": "evt_1", "data": {"object": {}}}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	// type present, id missing
	_, err = ParseEvent([]byte(`{"type": "invoice.payment_succeeded"}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestDecodeObjectMissingObject(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"id": "evt_1", "type": "customer.subscription.updated"}`))
	assert.NoError(t, err)

	var sub SubscriptionEvent
	assert.ErrorIs(t, decodeObject(ev, &sub), ErrMalformedEvent)
}

func TestDecodeObjectMissingID(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"id": "evt_1", "type": "customer.subscription.updated", "data": {"object": {"status": "active"}}}`))
	assert.NoError(t, err)

	var sub SubscriptionEvent
	assert.ErrorIs(t, decodeObject(ev, &sub), ErrMalformedEvent)
}
