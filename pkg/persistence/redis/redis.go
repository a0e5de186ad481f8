// Package redis provides a Redis-backed persistence implementation for
// approval records and rules. Records are stored as JSON values with
// entity and approver index sets; status transitions use WATCH-based
// optimistic transactions so the check-then-set stays atomic per record.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/greenlight-engine/greenlight/pkg/persistence"
)

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client       goredis.UniversalClient
	logger       *slog.Logger
	approvalRepo *ApprovalRepository
	ruleRepo     *RuleRepository
}

// NewPersistence connects to Redis using a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{
		client:       client,
		logger:       logger,
		approvalRepo: NewApprovalRepository(client, logger),
		ruleRepo:     NewRuleRepository(client, logger),
	}, nil
}

func (p *Persistence) Approvals() persistence.ApprovalRepository {
	return p.approvalRepo
}

func (p *Persistence) Rules() persistence.RuleRepository {
	return p.ruleRepo
}

// HealthCheck pings the Redis server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the Redis client.
func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}
