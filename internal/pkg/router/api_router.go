package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/SatsFox/app/controllers"
	"github.com/ManuelReschke/SatsFox/internal/pkg/events"
	"github.com/ManuelReschke/SatsFox/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	health := controllers.NewHealthController(h.deps.HealthChecks)
	app.Get("/health", health.HandleHealth)

	// real-time payment events
	app.Use("/ws", events.UpgradeRequired)
	app.Get("/ws/payments", events.WebsocketHandler(h.deps.Hub))

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// provider webhooks are unauthenticated and signature-checked
	webhooks := controllers.NewWebhookController(h.deps.Payments, h.deps.Repos.WebhookEvent)
	v1.Post("/webhooks/:provider", webhooks.HandleProviderWebhook)

	auth := middleware.APIKeyAuthMiddleware(h.deps.Repos.Tenant)
	invoices := controllers.NewPaymentController(h.deps.Payments)
	v1.Post("/invoices", auth, invoices.HandleCreateInvoice)
	v1.Get("/invoices/:id/status", auth, invoices.HandleInvoiceStatus)

	if h.deps.Regtest {
		regtest := controllers.NewRegtestController(h.deps.Payments, h.deps.Repos.Payment)
		v1.Post("/regtest/invoices/:id/pay", auth, regtest.HandlePayInvoice)
	}
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
