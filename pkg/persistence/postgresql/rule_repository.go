package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/greenlight-engine/greenlight/pkg/models"
	"github.com/greenlight-engine/greenlight/pkg/persistence"
)

const ruleColumns = `id, name, field, condition, threshold, action, description, priority, created_at`

// RuleRepository stores caller-defined approval rules in PostgreSQL.
type RuleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRuleRepository(db *sql.DB, logger *slog.Logger) *RuleRepository {
	return &RuleRepository{
		db:     db,
		logger: logger.With("module", "postgresql_rules"),
	}
}

func (r *RuleRepository) Save(ctx context.Context, rule *models.ApprovalRule) error {
	threshold, err := json.Marshal(rule.Threshold)
	if err != nil {
		return fmt.Errorf("failed to marshal rule threshold: %w", err)
	}

	query := `
		INSERT INTO approval_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			field = EXCLUDED.field,
			condition = EXCLUDED.condition,
			threshold = EXCLUDED.threshold,
			action = EXCLUDED.action,
			description = EXCLUDED.description,
			priority = EXCLUDED.priority
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Field, string(rule.Condition), threshold,
		string(rule.Action), rule.Description, rule.Priority, rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}

	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules WHERE id = $1`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRuleNotFound
		}

		return nil, fmt.Errorf("failed to get rule %s: %w", id, err)
	}

	return rule, nil
}

func (r *RuleRepository) List(ctx context.Context) ([]*models.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules ORDER BY priority, created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.ApprovalRule

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}

	return rules, nil
}

func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM approval_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrRuleNotFound
	}

	return nil
}

func scanRule(row rowScanner) (*models.ApprovalRule, error) {
	var (
		rule      models.ApprovalRule
		condition string
		action    string
		threshold []byte
	)

	err := row.Scan(&rule.ID, &rule.Name, &rule.Field, &condition, &threshold,
		&action, &rule.Description, &rule.Priority, &rule.CreatedAt)
	if err != nil {
		return nil, err
	}

	rule.Condition = models.RuleCondition(condition)
	rule.Action = models.RuleAction(action)

	if len(threshold) > 0 {
		if err := json.Unmarshal(threshold, &rule.Threshold); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule threshold: %w", err)
		}
	}

	return &rule, nil
}
