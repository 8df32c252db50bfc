package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ConradBeck/ReelForge/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// Fetcher pulls the authoritative current state of billing objects from the
// upstream platform. Handlers never trust webhook-embedded state for
// status or period decisions; they go through a Fetcher instead.
type Fetcher interface {
	GetSubscription(ctx context.Context, stripeSubscriptionID string) (*SubscriptionSnapshot, error)
	GetInvoice(ctx context.Context, stripeInvoiceID string) (*InvoiceSnapshot, error)
	GetPaymentIntent(ctx context.Context, stripePaymentIntentID string) (*PaymentIntentSnapshot, error)
}

// StripeClient is a thin Stripe API client covering the three pull calls the
// reconciliation engine needs.
type StripeClient struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewStripeClientFromEnv builds a client from environment configuration.
func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		APIKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type stripeSubscriptionResponse struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

func (c *StripeClient) GetSubscription(ctx context.Context, stripeSubscriptionID string) (*SubscriptionSnapshot, error) {
	var raw stripeSubscriptionResponse
	if err := c.get(ctx, "/subscriptions/"+stripeSubscriptionID, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, fmt.Errorf("%w: subscription response missing id", ErrUpstreamUnavailable)
	}

	snap := &SubscriptionSnapshot{
		StripeSubscriptionID: raw.ID,
		StripeCustomerID:     raw.Customer,
		Status:               strings.TrimSpace(raw.Status),
		CancelAtPeriodEnd:    raw.CancelAtPeriodEnd,
		Metadata:             raw.Metadata,
	}
	if raw.CurrentPeriodStart > 0 {
		t := time.Unix(raw.CurrentPeriodStart, 0).UTC()
		snap.CurrentPeriodStart = &t
	}
	if raw.CurrentPeriodEnd > 0 {
		t := time.Unix(raw.CurrentPeriodEnd, 0).UTC()
		snap.CurrentPeriodEnd = &t
	}
	if len(raw.Items.Data) > 0 {
		snap.PlanRef = raw.Items.Data[0].Price.ID
	}
	return snap, nil
}

func (c *StripeClient) GetInvoice(ctx context.Context, stripeInvoiceID string) (*InvoiceSnapshot, error) {
	var raw struct {
		ID            string `json:"id"`
		Customer      string `json:"customer"`
		Subscription  string `json:"subscription"`
		PaymentIntent string `json:"payment_intent"`
		AmountDue     int64  `json:"amount_due"`
		Currency      string `json:"currency"`
		Status        string `json:"status"`
		Description   string `json:"description"`
	}
	if err := c.get(ctx, "/invoices/"+stripeInvoiceID, &raw); err != nil {
		return nil, err
	}
	return &InvoiceSnapshot{
		StripeInvoiceID:       raw.ID,
		StripeCustomerID:      raw.Customer,
		StripeSubscriptionID:  raw.Subscription,
		StripePaymentIntentID: raw.PaymentIntent,
		AmountDue:             raw.AmountDue,
		Currency:              raw.Currency,
		Status:                raw.Status,
		Description:           raw.Description,
	}, nil
}

func (c *StripeClient) GetPaymentIntent(ctx context.Context, stripePaymentIntentID string) (*PaymentIntentSnapshot, error) {
	var raw struct {
		ID       string            `json:"id"`
		Customer string            `json:"customer"`
		Amount   int64             `json:"amount"`
		Currency string            `json:"currency"`
		Status   string            `json:"status"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := c.get(ctx, "/payment_intents/"+stripePaymentIntentID, &raw); err != nil {
		return nil, err
	}
	return &PaymentIntentSnapshot{
		StripePaymentIntentID: raw.ID,
		StripeCustomerID:      raw.Customer,
		Amount:                raw.Amount,
		Currency:              raw.Currency,
		Status:                raw.Status,
		Metadata:              raw.Metadata,
	}, nil
}

func (c *StripeClient) get(ctx context.Context, path string, out interface{}) error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("STRIPE_SECRET_KEY is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUpstreamNotFound, path)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: status=%d body=%s", ErrUpstreamUnavailable, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return nil
}
