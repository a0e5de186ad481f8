package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/greenlight-engine/greenlight/pkg/cmd"
	"github.com/greenlight-engine/greenlight/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "greenlight-escalator",
		Usage:                 "Start the escalation sweep service for overdue approvals",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "escalator-id",
				Aliases: []string{"id"},
				Usage:   "Custom escalator ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ESCALATOR_ID"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (memory://, postgres://, redis://)",
				Value:   "memory://",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Notification event bus provider (gochannel, kafka, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression or @every descriptor for the sweep",
				Value:   "@every 1h",
				Sources: cli.EnvVars("ESCALATION_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "threshold-days",
				Usage:   "Days a record may stay pending before escalation",
				Value:   3,
				Sources: cli.EnvVars("ESCALATION_THRESHOLD_DAYS"),
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

			escalatorID := command.String("escalator-id")
			if escalatorID == "" {
				escalatorID = fmt.Sprintf("escalator-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("greenlight-escalator").With("escalator_id", escalatorID)

			logger.Info("Initializing Greenlight Escalator")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			dispatcher, eventBus, err := cmd.NewDispatcher(command.String("event-bus"), "greenlight-escalator", logger)
			if err != nil {
				return err
			}

			if eventBus != nil {
				defer func() {
					if err := eventBus.Close(); err != nil {
						logger.Error("Failed to close event bus", "error", err)
					}
				}()
			}

			daemon, err := NewEscalator(escalatorID, persistence, dispatcher, EscalatorConfig{
				Schedule:      command.String("schedule"),
				ThresholdDays: command.Int("threshold-days"),
			}, logger)
			if err != nil {
				return err
			}

			daemon.Start(ctx)

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
