package main

import (
	"context"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/SatsFox/app/controllers"
	"github.com/ManuelReschke/SatsFox/app/repository"
	apiv1 "github.com/ManuelReschke/SatsFox/internal/api/v1"
	"github.com/ManuelReschke/SatsFox/internal/pkg/cache"
	"github.com/ManuelReschke/SatsFox/internal/pkg/database"
	"github.com/ManuelReschke/SatsFox/internal/pkg/env"
	"github.com/ManuelReschke/SatsFox/internal/pkg/events"
	"github.com/ManuelReschke/SatsFox/internal/pkg/lnurl"
	"github.com/ManuelReschke/SatsFox/internal/pkg/lock"
	"github.com/ManuelReschke/SatsFox/internal/pkg/payments"
	"github.com/ManuelReschke/SatsFox/internal/pkg/provider"
	"github.com/ManuelReschke/SatsFox/internal/pkg/router"
	"github.com/ManuelReschke/SatsFox/internal/pkg/s3archive"
)

// Application bundles the HTTP server with the background components that
// must be stopped with it.
type Application struct {
	Fiber      *fiber.App
	Hub        *events.Hub
	Reconciler *payments.Reconciler
}

func NewApplication() (*Application, error) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/satsfox to project root
		"../../../", // Fallback
	}
	basePath := "./"
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			basePath = path
			break
		}
	}

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalFactory().GetRepositories()

	active, err := provider.NewFromEnv()
	if err != nil {
		return nil, err
	}
	log.Infof("[SatsFox] Payment provider: %s", active.Name())

	// cache client is optional; Redis-backed features degrade to local ones
	var redisClient *redis.Client
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := cache.Ping(pingCtx); err == nil {
		redisClient = cache.GetClient()
	}
	cancel()

	hub := events.NewHub(env.GetInt("EVENT_BUFFER_SIZE", 64))
	if redisClient != nil {
		hub.Subscribe("redis-bridge", events.RedisPublisher(redisClient, events.RedisChannel))
	}
	if err := subscribeArchive(hub); err != nil {
		log.Errorf("[SatsFox] Event archive disabled: %v", err)
	}

	paymentService := payments.NewService(repos.Payment, active, hub)
	reconciler := payments.NewReconciler(paymentService, payments.ReconcilerConfigFromEnv())

	var locker lock.Locker = lock.NewKeyedMutex()
	if redisClient != nil {
		locker = lock.NewRedisLocker(redisClient)
	}
	authService := lnurl.NewAuthService(repos.AuthSession, env.GetDuration("LNURL_AUTH_TTL", lnurl.DefaultAuthTTL))
	withdrawService := lnurl.NewWithdrawService(repos.WithdrawSession, active, locker, env.GetDuration("LNURL_WITHDRAW_TTL", lnurl.DefaultWithdrawTTL))

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// prometheus metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	}), adaptor.HTTPHandler(promhttp.Handler()))

	// SWAGGER / OPENAPI
	specPath := basePath + "public/docs/v1/openapi.yml"
	if _, err := apiv1.LoadSpec(specPath); err != nil {
		log.Warnf("[SatsFox] OpenAPI document invalid: %v", err)
	}
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: specPath,
		Path:     "v1",
	}))

	deps := router.Dependencies{
		Repos:        repos,
		Payments:     paymentService,
		Auth:         authService,
		Withdraw:     withdrawService,
		Hub:          hub,
		BaseURL:      env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"),
		TokenSecret:  env.GetEnv("JWT_SECRET", ""),
		Regtest:      env.IsDev() || env.IsRegtest(),
		HealthChecks: healthChecks(redisClient != nil),
	}
	if redisClient != nil {
		deps.LimiterStorage = router.NewLimiterStorage()
	}

	// ROUTER
	router.InstallRouter(app, deps)

	reconciler.Start()

	return &Application{Fiber: app, Hub: hub, Reconciler: reconciler}, nil
}

// Shutdown stops the reconciliation loop, closes the event transport and
// drains the HTTP server.
func (a *Application) Shutdown(ctx context.Context) {
	a.Reconciler.Stop()
	a.Hub.Close()
	if err := a.Fiber.ShutdownWithContext(ctx); err != nil {
		log.Errorf("[SatsFox] HTTP shutdown: %v", err)
	}
	if err := cache.Close(); err != nil {
		log.Warnf("[SatsFox] Cache close: %v", err)
	}
}

func subscribeArchive(hub *events.Hub) error {
	cfg, err := s3archive.LoadConfig()
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	archive, err := s3archive.NewFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	hub.Subscribe("s3-archive", archive.Listener())
	log.Infof("[SatsFox] Archiving paid events to s3://%s", cfg.BucketName)
	return nil
}

func healthChecks(withCache bool) map[string]controllers.HealthCheck {
	checks := map[string]controllers.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := database.GetDB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if withCache {
		checks["cache"] = cache.Ping
	}
	return checks
}
