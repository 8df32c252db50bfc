package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ConradBeck/ReelForge/internal/pkg/billing"
)

func newWebhookTestApp() *fiber.App {
	app := fiber.New()
	app.Post("/webhooks/billing", HandleBillingWebhook)
	return app
}

func TestHandleBillingWebhookNotConfigured(t *testing.T) {
	prev := billingDispatcher
	billingDispatcher = nil
	defer func() { billingDispatcher = prev }()

	app := newWebhookTestApp()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(`{}`))

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestHandleBillingWebhookRejectsBadSignature(t *testing.T) {
	prev := billingDispatcher
	// Signature and payload validation run before any service or DB access,
	// so a dispatcher without backing stores is enough here.
	billingDispatcher = billing.NewDispatcher(nil, nil, nil, "whsec_test", billing.DefaultSignatureTolerance)
	defer func() { billingDispatcher = prev }()

	app := newWebhookTestApp()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(`{"id":"evt_1","type":"invoice.payment_succeeded"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleBillingWebhookRejectsMissingSignature(t *testing.T) {
	prev := billingDispatcher
	billingDispatcher = billing.NewDispatcher(nil, nil, nil, "whsec_test", billing.DefaultSignatureTolerance)
	defer func() { billingDispatcher = prev }()

	app := newWebhookTestApp()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(`{"id":"evt_1"}`))

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleBillingWebhookRejectsMalformedPayload(t *testing.T) {
	prev := billingDispatcher
	billingDispatcher = billing.NewDispatcher(nil, nil, nil, "whsec_test", billing.DefaultSignatureTolerance)
	defer func() { billingDispatcher = prev }()

	app := newWebhookTestApp()

	payload := `{"type":"invoice.payment_succeeded"}` // missing required id
	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", billing.SignPayload([]byte(payload), "whsec_test", time.Now()))

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
