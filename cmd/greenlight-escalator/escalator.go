package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/greenlight-engine/greenlight/pkg/escalation"
	"github.com/greenlight-engine/greenlight/pkg/notification"
	"github.com/greenlight-engine/greenlight/pkg/persistence"
	"github.com/greenlight-engine/greenlight/pkg/services"
)

// EscalatorConfig carries the sweep schedule and threshold.
type EscalatorConfig struct {
	Schedule      string
	ThresholdDays int
}

// Escalator runs the escalation sweeper as a long-lived daemon.
type Escalator struct {
	id      string
	sweeper *escalation.Sweeper
	logger  *slog.Logger
}

func NewEscalator(
	id string,
	store persistence.Persistence,
	dispatcher notification.Dispatcher,
	config EscalatorConfig,
	logger *slog.Logger,
) (*Escalator, error) {
	service := services.NewApproval(store, dispatcher, 0, logger)

	sweeper, err := escalation.NewSweeper(service, escalation.Config{
		Schedule:      config.Schedule,
		ThresholdDays: config.ThresholdDays,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &Escalator{
		id:      id,
		sweeper: sweeper,
		logger:  logger.With("module", "escalator"),
	}, nil
}

// Start runs the sweeper until the context is cancelled or a shutdown
// signal arrives.
func (e *Escalator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.logger.Info("Starting escalator")

	if err := e.sweeper.Start(runCtx); err != nil {
		e.logger.Error("Failed to start escalation sweeper", "error", err)

		return
	}

	e.handleSignals(cancel)

	<-runCtx.Done()
	e.logger.Info("Escalator context cancelled, stopping...")
	e.sweeper.Stop()
}

// handleSignals sets up signal handling for graceful shutdown.
func (e *Escalator) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		e.logger.Info("Received signal", "signal", sig)
		cancel()
	}()
}
