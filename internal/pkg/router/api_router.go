package router

import (
	"strconv"
	"time"

	"github.com/ConradBeck/ReelForge/app/controllers"
	"github.com/ConradBeck/ReelForge/internal/pkg/env"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}

	// Rate-limit state lives in Redis so limits hold across instances.
	storage := redis.New(redis.Config{
		Host: env.GetEnv("CACHE_HOST", "localhost"),
		Port: port,
	})

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		Storage:    storage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/subscriptions/active", controllers.HandleActiveSubscription)
	v1.Get("/subscriptions/quota", controllers.HandleVideoQuota)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
