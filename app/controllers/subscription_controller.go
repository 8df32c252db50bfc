package controllers

import (
	"strconv"

	"github.com/ConradBeck/ReelForge/internal/pkg/billing"
	"github.com/ConradBeck/ReelForge/internal/pkg/database"
	"github.com/ConradBeck/ReelForge/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2"
)

// HandleActiveSubscription returns the caller's active subscription, or null
// when none exists. Consumed by the quota-checking side of the system.
func HandleActiveSubscription(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	sub, err := svc.ActiveSubscription(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_lookup_failed"})
	}
	if sub == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"subscription": nil})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"subscription": sub})
}

// HandleVideoQuota reports remaining video generations for the current period.
// Users without an active subscription get the free-tier numbers.
func HandleVideoQuota(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	sub, err := svc.ActiveSubscription(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_lookup_failed"})
	}

	used, limit := 0, entitlements.VideoLimit(entitlements.PlanFree)
	plan := string(entitlements.PlanFree)
	if sub != nil {
		used, limit, plan = sub.VideoCount, sub.VideoLimit, sub.Plan
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"plan":      plan,
		"used":      used,
		"limit":     limit,
		"remaining": remaining,
	})
}

func userIDParam(c *fiber.Ctx) (uint, error) {
	raw := c.Query("user_id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fiber.ErrBadRequest
	}
	return uint(id), nil
}
