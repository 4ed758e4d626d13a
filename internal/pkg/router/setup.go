package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SatsFox/app/controllers"
	"github.com/ManuelReschke/SatsFox/app/repository"
	"github.com/ManuelReschke/SatsFox/internal/pkg/events"
	"github.com/ManuelReschke/SatsFox/internal/pkg/lnurl"
	"github.com/ManuelReschke/SatsFox/internal/pkg/payments"
)

// Router registers a group of routes.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services the routes are wired to.
type Dependencies struct {
	Repos    *repository.Repositories
	Payments *payments.Service
	Auth     *lnurl.AuthService
	Withdraw *lnurl.WithdrawService
	Hub      *events.Hub

	// LimiterStorage backs the rate limiters; nil uses in-memory storage.
	LimiterStorage fiber.Storage
	BaseURL        string
	TokenSecret    string
	Regtest        bool
	HealthChecks   map[string]controllers.HealthCheck
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewApiRouter(deps), NewLnurlRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
