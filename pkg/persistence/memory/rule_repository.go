package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/greenlight-engine/greenlight/pkg/models"
	"github.com/greenlight-engine/greenlight/pkg/persistence"
)

// RuleRepository stores custom approval rules in memory.
type RuleRepository struct {
	mu    sync.RWMutex
	rules map[string]*models.ApprovalRule
}

func NewRuleRepository() *RuleRepository {
	return &RuleRepository{
		rules: make(map[string]*models.ApprovalRule),
	}
}

func (r *RuleRepository) Save(_ context.Context, rule *models.ApprovalRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *rule
	r.rules[rule.ID] = &clone

	return nil
}

func (r *RuleRepository) GetByID(_ context.Context, id string) (*models.ApprovalRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[id]
	if !ok {
		return nil, persistence.ErrRuleNotFound
	}

	clone := *rule

	return &clone, nil
}

func (r *RuleRepository) List(_ context.Context) ([]*models.ApprovalRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]*models.ApprovalRule, 0, len(r.rules))

	for _, rule := range r.rules {
		clone := *rule
		rules = append(rules, &clone)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}

		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})

	return rules, nil
}

func (r *RuleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[id]; !ok {
		return persistence.ErrRuleNotFound
	}

	delete(r.rules, id)

	return nil
}
