package router

import (
	"github.com/ConradBeck/ReelForge/app/controllers"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Initialize billing controller with dispatcher wiring
	controllers.InitializeBillingController()

	// Webhook endpoint: no rate limiting here, the upstream platform retries
	// with backoff and signature verification is the authentication mechanism.
	app.Post("/webhooks/billing", controllers.HandleBillingWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
