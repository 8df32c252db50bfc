package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/ConradBeck/ReelForge/internal/pkg/billing"
	"github.com/ConradBeck/ReelForge/internal/pkg/cache"
	"github.com/ConradBeck/ReelForge/internal/pkg/database"
	"github.com/ConradBeck/ReelForge/internal/pkg/env"
	"github.com/ConradBeck/ReelForge/internal/pkg/kvstore"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

var billingDispatcher *billing.Dispatcher

// InitializeBillingController wires the webhook dispatcher. Called once from
// the router during startup.
func InitializeBillingController() {
	db := database.GetDB()
	svc := billing.NewServiceFromDB(db)
	repo := billing.NewRepository(db)
	recent := kvstore.NewRedisStore(cache.GetClient())

	tolerance := billing.DefaultSignatureTolerance
	if raw := env.GetEnv("STRIPE_WEBHOOK_TOLERANCE_SECONDS", ""); raw != "" {
		if d, err := time.ParseDuration(raw + "s"); err == nil && d > 0 {
			tolerance = d
		}
	}

	billingDispatcher = billing.NewDispatcher(
		svc,
		repo,
		recent,
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		tolerance,
	)
}

// HandleBillingWebhook receives Stripe event notifications. The raw body is
// preserved unparsed up to signature verification. Response contract: 200 on
// handled or no-op (duplicate/unknown kind), 400 on signature or payload
// failure, 500 on handler failure so the platform redelivers.
func HandleBillingWebhook(c *fiber.Ctx) error {
	if billingDispatcher == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "billing_not_configured"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	outcome, err := billingDispatcher.Dispatch(ctx, rawBody, signature)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidSignature), errors.Is(err, billing.ErrStaleTimestamp):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		case errors.Is(err, billing.ErrMalformedEvent):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		default:
			log.Errorf("[Billing] Webhook processing failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "outcome": string(outcome)})
}
