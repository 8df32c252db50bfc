package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ConradBeck/ReelForge/app/models"
	"github.com/ConradBeck/ReelForge/internal/pkg/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func newTestDispatcher(repo *fakeRepo, fetcher *stubFetcher) *Dispatcher {
	svc := newTestService(repo, fetcher)
	return NewDispatcher(svc, repo, kvstore.NewMemoryStore(), testWebhookSecret, DefaultSignatureTolerance)
}

func signedEvent(t *testing.T, eventID, eventType, object string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":%q,"type":%q,"created":%d,"data":{"object":%s}}`,
		eventID, eventType, time.Now().Unix(), object))
	return payload, SignPayload(payload, testWebhookSecret, time.Now())
}

func TestDispatchProcessesAndRecordsEvent(t *testing.T) {
	repo := newFakeRepo()
	fetcher := newStubFetcher()
	fetcher.queueSnapshot(activeSnapshot("sub_1", "cus_1"))
	d := newTestDispatcher(repo, fetcher)

	payload, header := signedEvent(t, "evt_1", EventCheckoutCompleted,
		`{"id":"cs_1","mode":"subscription","payment_status":"paid","customer":"cus_1","subscription":"sub_1","client_reference_id":"7"}`)

	outcome, err := d.Dispatch(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	sub, err := repo.GetSubscriptionByStripeID("sub_1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)

	// The idempotency record is written only after successful handling.
	processed, err := repo.HasProcessedEvent("evt_1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestDispatchDuplicateShortCircuits(t *testing.T) {
	repo := newFakeRepo()
	fetcher := newStubFetcher()
	fetcher.queueSnapshot(activeSnapshot("sub_1", "cus_1"))
	d := newTestDispatcher(repo, fetcher)

	payload, header := signedEvent(t, "evt_dup", EventCheckoutCompleted,
		`{"id":"cs_1","mode":"subscription","payment_status":"paid","customer":"cus_1","subscription":"sub_1","client_reference_id":"7"}`)

	outcome, err := d.Dispatch(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	fetchesAfterFirst := fetcher.fetches

	outcome, err = d.Dispatch(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, fetchesAfterFirst, fetcher.fetches, "duplicate must not re-run the handler")
}

func TestDispatchDuplicateDetectedWithoutCache(t *testing.T) {
	repo := newFakeRepo()
	fetcher := newStubFetcher()
	fetcher.queueSnapshot(activeSnapshot("sub_1", "cus_1"))
	svc := newTestService(repo, fetcher)
	// No recent-event cache: the DB ledger alone must catch the redelivery.
	d := NewDispatcher(svc, repo, nil, testWebhookSecret, DefaultSignatureTolerance)

	payload, header := signedEvent(t, "evt_db_dup", EventCheckoutCompleted,
		`{"id":"cs_1","mode":"subscription","payment_status":"paid","customer":"cus_1","subscription":"sub_1","client_reference_id":"7"}`)

	_, err := d.Dispatch(context.Background(), payload, header)
	require.NoError(t, err)

	outcome, err := d.Dispatch(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestDispatchRejectsBadSignature(t *testing.T) {
	repo := newFakeRepo()
	d := newTestDispatcher(repo, newStubFetcher())

	payload, _ := signedEvent(t, "evt_1", EventInvoicePaid, `{"id":"in_1","customer":"cus_1"}`)
	badHeader := SignPayload(payload, "whsec_wrong", time.Now())

	_, err := d.Dispatch(context.Background(), payload, badHeader)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	processed, _ := repo.HasProcessedEvent("evt_1")
	assert.False(t, processed, "rejected events must not enter the idempotency ledger")
}

func TestDispatchIgnoresUnknownEventKind(t *testing.T) {
	repo := newFakeRepo()
	d := newTestDispatcher(repo, newStubFetcher())

	payload, header := signedEvent(t, "evt_unknown", "charge.refunded", `{"id":"ch_1"}`)

	outcome, err := d.Dispatch(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	// Still acknowledged and recorded so redeliveries short-circuit.
	processed, _ := repo.HasProcessedEvent("evt_unknown")
	assert.True(t, processed)
}

func TestDispatchAcksUncorrelatedEvent(t *testing.T) {
	repo := newFakeRepo()
	d := newTestDispatcher(repo, newStubFetcher())

	// Invoice without a subscription reference and no open row to correlate:
	// retrying cannot help, so the event is acked as ignored.
	payload, header := signedEvent(t, "evt_orphan", EventInvoicePaid,
		`{"id":"in_1","customer":"cus_unknown","amount_paid":500,"currency":"usd"}`)

	outcome, err := d.Dispatch(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	processed, _ := repo.HasProcessedEvent("evt_orphan")
	assert.True(t, processed)
}

func TestDispatchUpstreamFailureLeavesEventUnprocessed(t *testing.T) {
	repo := newFakeRepo()
	fetcher := newStubFetcher()
	fetcher.err = ErrUpstreamUnavailable
	d := newTestDispatcher(repo, fetcher)

	payload, header := signedEvent(t, "evt_retry", EventSubscriptionUpdated,
		`{"id":"sub_1","customer":"cus_1","status":"active"}`)

	_, err := d.Dispatch(context.Background(), payload, header)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	// Not marked processed: the platform retry must get a second chance.
	processed, _ := repo.HasProcessedEvent("evt_retry")
	assert.False(t, processed)
}

func TestDispatchMalformedEvent(t *testing.T) {
	repo := newFakeRepo()
	d := newTestDispatcher(repo, newStubFetcher())

	payload := []byte(`{"type":"invoice.payment_succeeded"}`)
	header := SignPayload(payload, testWebhookSecret, time.Now())

	_, err := d.Dispatch(context.Background(), payload, header)
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
