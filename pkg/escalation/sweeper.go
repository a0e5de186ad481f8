// Package escalation runs the recurring sweep that flags overdue pending
// approvals.
package escalation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/greenlight-engine/greenlight/pkg/services"
)

// Config controls the sweep schedule and the overdue threshold.
type Config struct {
	// Schedule is a standard cron expression or a @every descriptor.
	Schedule string
	// ThresholdDays is how long a record may stay pending before the
	// sweep escalates it.
	ThresholdDays int
}

// Sweeper periodically escalates overdue approvals. Sweeps run on a cron
// scheduler with overlap protection, so a slow sweep is skipped rather
// than stacked.
type Sweeper struct {
	service *services.Approval
	config  Config
	logger  *slog.Logger
	cron    *cron.Cron
}

func NewSweeper(service *services.Approval, config Config, logger *slog.Logger) (*Sweeper, error) {
	if config.Schedule == "" {
		config.Schedule = "@every 1h"
	}

	if config.ThresholdDays <= 0 {
		config.ThresholdDays = 3
	}

	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid escalation schedule %q: %w", config.Schedule, err)
	}

	return &Sweeper{
		service: service,
		config:  config,
		logger:  logger.With("module", "escalation_sweeper"),
	}, nil
}

// Start schedules the sweep and runs one immediately so a restart never
// delays overdue handling by a full interval.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule escalation sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Escalation sweeper started",
		"schedule", s.config.Schedule, "threshold_days", s.config.ThresholdDays)

	s.Sweep(ctx)

	return nil
}

// Sweep escalates every approval pending longer than the threshold.
func (s *Sweeper) Sweep(ctx context.Context) {
	escalated, err := s.service.EscalateOverdue(ctx, s.config.ThresholdDays)
	if err != nil {
		s.logger.ErrorContext(ctx, "Escalation sweep failed", "error", err)

		return
	}

	if len(escalated) > 0 {
		s.logger.InfoContext(ctx, "Escalation sweep finished", "escalated", len(escalated))
	}
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	s.logger.Info("Escalation sweeper stopped")
}
