package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/rathbookie/stageflow/pkg/cmd"
	"github.com/rathbookie/stageflow/pkg/log"
	"github.com/rathbookie/stageflow/pkg/otelhelper"
)

const defaultPort = 9094

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "stageflow-api",
		Usage:                 "Define and manage tenant task lifecycles",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the published graph cache (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "presets-file",
				Usage:   "YAML file of workflow presets to seed on startup (optional)",
				Sources: cli.EnvVars("WORKFLOW_PRESETS_FILE"),
			},
			&cli.BoolFlag{
				Name:    "seed-default",
				Usage:   "Ensure the protected default workflow exists on startup",
				Value:   true,
				Sources: cli.EnvVars("SEED_DEFAULT_WORKFLOW"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("OTEL_TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Stageflow API")

			if command.Bool("tracing") {
				if _, err := otelhelper.NewTracer(ctx, "stageflow-api"); err != nil {
					logger.ErrorContext(ctx, "Failed to initialize tracing", "error", err)
				}
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "stageflow-api", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			api := NewAPI(
				logger,
				persistence,
				eventBus,
				command.String("redis-url"),
			)

			if command.Bool("seed-default") {
				if err := api.SeedDefault(ctx); err != nil {
					return err
				}
			}

			if presetsFile := command.String("presets-file"); presetsFile != "" {
				if err := api.SeedPresets(ctx, presetsFile); err != nil {
					return err
				}
			}

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
