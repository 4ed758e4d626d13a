package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/SatsFox/app/controllers"
	"github.com/ManuelReschke/SatsFox/internal/pkg/lnurl"
	"github.com/ManuelReschke/SatsFox/internal/pkg/middleware"
)

type LnurlRouter struct {
	deps Dependencies
}

func (h LnurlRouter) InstallRouter(app *fiber.App) {
	ctrl := controllers.NewLnurlController(h.deps.Auth, h.deps.Withdraw, controllers.LnurlControllerConfig{
		BaseURL:     h.deps.BaseURL,
		TokenSecret: h.deps.TokenSecret,
	})

	group := app.Group("/lnurl", limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(lnurl.Fail("rate_limited"))
		},
	}))

	group.Get("/auth/request", ctrl.HandleAuthRequest)
	group.Get("/auth/callback", ctrl.HandleAuthCallback)
	group.Get("/auth/status/:k1", ctrl.HandleAuthStatus)
	group.Get("/auth/me", middleware.RequireSessionToken(h.deps.TokenSecret), ctrl.HandleAuthMe)

	group.Get("/withdraw/request", middleware.APIKeyAuthMiddleware(h.deps.Repos.Tenant), ctrl.HandleWithdrawCreate)
	group.Get("/withdraw/callback", ctrl.HandleWithdrawCallback)
	group.Get("/withdraw/:k1", ctrl.HandleWithdrawRequest)
}

func NewLnurlRouter(deps Dependencies) *LnurlRouter {
	return &LnurlRouter{deps: deps}
}
