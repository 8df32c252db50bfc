package billing

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifyWebhookSignatureValid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)
	now := time.Now()
	header := SignPayload(payload, "whsec_test", now)

	err := VerifyWebhookSignature(payload, header, "whsec_test", DefaultSignatureTolerance, now)
	assert.NoError(t, err)
}

func TestVerifyWebhookSignatureTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1","amount":100}`)
	now := time.Now()
	header := SignPayload(payload, "whsec_test", now)

	tampered := []byte(`{"id":"evt_1","amount":999}`)
	err := VerifyWebhookSignature(tampered, header, "whsec_test", DefaultSignatureTolerance, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWebhookSignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, "whsec_other", now)

	err := VerifyWebhookSignature(payload, header, "whsec_test", DefaultSignatureTolerance, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWebhookSignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	signedAt := now.Add(-10 * time.Minute)
	header := SignPayload(payload, "whsec_test", signedAt)

	// The signature itself is valid, but the timestamp is outside tolerance.
	err := VerifyWebhookSignature(payload, header, "whsec_test", 5*time.Minute, now)
	assert.ErrorIs(t, err, ErrStaleTimestamp)

	// A future timestamp is rejected the same way.
	header = SignPayload(payload, "whsec_test", now.Add(10*time.Minute))
	err = VerifyWebhookSignature(payload, header, "whsec_test", 5*time.Minute, now)
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestVerifyWebhookSignatureSecretRotation(t *testing.T) {
	payload := []byte(`{"id":"evt_rotated"}`)
	now := time.Now()

	// Header carries signatures from an old and the current secret; the
	// verifier only knows the current one and must still accept.
	oldHeader := SignPayload(payload, "whsec_old", now)
	newHeader := SignPayload(payload, "whsec_new", now)
	oldSig := strings.SplitN(oldHeader, ",", 2)[1]
	combined := fmt.Sprintf("%s,%s", newHeader, oldSig)

	err := VerifyWebhookSignature(payload, combined, "whsec_new", DefaultSignatureTolerance, now)
	assert.NoError(t, err)
}

func TestVerifyWebhookSignatureMalformedHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	cases := []string{
		"",
		"garbage",
		"t=abc,v1=deadbeef",
		"v1=deadbeef",
		fmt.Sprintf("t=%d", now.Unix()),
	}
	for _, header := range cases {
		err := VerifyWebhookSignature(payload, header, "whsec_test", DefaultSignatureTolerance, now)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("header %q: expected ErrInvalidSignature, got %v", header, err)
		}
	}
}

func TestVerifyWebhookSignatureEmptySecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, "whsec_test", now)

	err := VerifyWebhookSignature(payload, header, "", DefaultSignatureTolerance, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
