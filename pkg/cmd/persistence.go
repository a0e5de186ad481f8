// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/greenlight-engine/greenlight/pkg/persistence"
	"github.com/greenlight-engine/greenlight/pkg/persistence/memory"
	"github.com/greenlight-engine/greenlight/pkg/persistence/postgresql"
	"github.com/greenlight-engine/greenlight/pkg/persistence/redis"
)

// NewPersistence creates a persistence backend from a database URL. The
// URL scheme selects the backend: postgres://, redis://, or memory://
// (the default for anything else).
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgresql persistence: %w", err)
		}

		return store, nil
	case "redis", "rediss":
		store, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis persistence: %w", err)
		}

		return store, nil
	default:
		return memory.NewPersistence(), nil
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "memory"
	}

	return provider
}
