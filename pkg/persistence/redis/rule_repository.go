package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"github.com/greenlight-engine/greenlight/pkg/models"
	"github.com/greenlight-engine/greenlight/pkg/persistence"
)

const (
	ruleKeyPrefix = "greenlight:rule:"
	ruleAllKey    = "greenlight:rules"
)

func ruleKey(id string) string {
	return ruleKeyPrefix + id
}

// RuleRepository stores approval rules as JSON values in Redis.
type RuleRepository struct {
	client goredis.UniversalClient
	logger *slog.Logger
}

func NewRuleRepository(client goredis.UniversalClient, logger *slog.Logger) *RuleRepository {
	return &RuleRepository{
		client: client,
		logger: logger.With("module", "redis_rules"),
	}
}

func (r *RuleRepository) Save(ctx context.Context, rule *models.ApprovalRule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule %s: %w", rule.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, ruleKey(rule.ID), data, 0)
	pipe.SAdd(ctx, ruleAllKey, rule.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}

	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRule, error) {
	raw, err := r.client.Get(ctx, ruleKey(id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.ErrRuleNotFound
		}

		return nil, fmt.Errorf("failed to get rule %s: %w", id, err)
	}

	var rule models.ApprovalRule
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		return nil, fmt.Errorf("failed to decode rule %s: %w", id, err)
	}

	return &rule, nil
}

func (r *RuleRepository) List(ctx context.Context) ([]*models.ApprovalRule, error) {
	ids, err := r.client.SMembers(ctx, ruleAllKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	rules := make([]*models.ApprovalRule, 0, len(ids))

	for _, id := range ids {
		rule, err := r.GetByID(ctx, id)
		if err != nil {
			if persistence.IsRuleNotFound(err) {
				r.logger.Warn("Skipping dangling rule index entry", "id", id)

				continue
			}

			return nil, err
		}

		rules = append(rules, rule)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}

		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})

	return rules, nil
}

func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	removed, err := r.client.Del(ctx, ruleKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}

	if err := r.client.SRem(ctx, ruleAllKey, id).Err(); err != nil {
		return fmt.Errorf("failed to unindex rule %s: %w", id, err)
	}

	if removed == 0 {
		return persistence.ErrRuleNotFound
	}

	return nil
}
