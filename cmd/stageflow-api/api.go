// Package main provides the Stageflow API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/redis/go-redis/v9"

	"github.com/rathbookie/stageflow/pkg/cache"
	"github.com/rathbookie/stageflow/pkg/config"
	"github.com/rathbookie/stageflow/pkg/eventbus"
	"github.com/rathbookie/stageflow/pkg/persistence"
	"github.com/rathbookie/stageflow/pkg/services"
	"github.com/rathbookie/stageflow/pkg/web"
)

type API struct {
	logger          *slog.Logger
	persistence     persistence.Persistence
	eventBus        eventbus.EventBus
	workflowService *services.Workflow
	taskService     *services.Task
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	redisURL string,
) *API {
	graphs := newGraphCache(logger, redisURL)

	workflowService := services.NewWorkflow(persistence, eventBus, graphs, logger)
	taskService := services.NewTask(persistence, workflowService, eventBus, logger)

	return &API{
		logger:          logger,
		persistence:     persistence,
		eventBus:        eventBus,
		workflowService: workflowService,
		taskService:     taskService,
	}
}

// newGraphCache returns the redis-backed published graph cache when a redis
// URL is configured, and the noop cache otherwise.
func newGraphCache(logger *slog.Logger, redisURL string) cache.PublishedGraphs {
	if redisURL == "" {
		return cache.NewNoop()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("Invalid redis URL, running without graph cache", "error", err)

		return cache.NewNoop()
	}

	return cache.NewRedis(redis.NewClient(opts), logger)
}

// SeedDefault ensures the protected default workflow exists.
func (a *API) SeedDefault(ctx context.Context) error {
	_, err := a.workflowService.SeedDefault(ctx)

	return err
}

// SeedPresets creates any preset workflows missing from storage.
func (a *API) SeedPresets(ctx context.Context, presetsFile string) error {
	presets, err := config.LoadPresets(presetsFile)
	if err != nil {
		return err
	}

	return a.workflowService.SeedPresets(ctx, presets)
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.workflowService, a.taskService)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stageflow API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
