package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/greenlight-engine/greenlight/pkg/models"
	"github.com/greenlight-engine/greenlight/pkg/persistence"
)

const approvalColumns = `id, tenant_id, entity_id, entity_type, step_name, requester_id,
	approver_id, status, priority, comment, document_title, created_at, decided_at, expires_at`

// ApprovalRepository stores approval records in PostgreSQL. Status
// transitions are conditional UPDATEs, so the database enforces the
// pending-only invariant even under concurrent decisions.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewApprovalRepository(db *sql.DB, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger.With("module", "postgresql_approvals"),
	}
}

func (r *ApprovalRepository) Save(ctx context.Context, record *models.ApprovalRecord) error {
	query := `
		INSERT INTO approvals (` + approvalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.TenantID, record.EntityID, record.EntityType,
		string(record.StepName), record.RequesterID, record.ApproverID,
		string(record.Status), string(record.Priority), record.Comment,
		record.DocumentTitle, record.CreatedAt, record.DecidedAt, record.ExpiresAt,
	)
	if err != nil {
		return persistence.NewApprovalError("Save", record.ID, err)
	}

	return nil
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`

	record, err := scanApproval(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewApprovalError("GetByID", id, persistence.ErrApprovalNotFound)
		}

		return nil, persistence.NewApprovalError("GetByID", id, err)
	}

	return record, nil
}

func (r *ApprovalRepository) FindByEntity(ctx context.Context, entityID, entityType string) ([]*models.ApprovalRecord, error) {
	query := `
		SELECT ` + approvalColumns + ` FROM approvals
		WHERE entity_id = $1 AND entity_type = $2
		ORDER BY created_at
	`

	return r.queryApprovals(ctx, query, entityID, entityType)
}

func (r *ApprovalRepository) FindByApprover(ctx context.Context, approverID string, status models.ApprovalStatus) ([]*models.ApprovalRecord, error) {
	query := `
		SELECT ` + approvalColumns + ` FROM approvals
		WHERE approver_id = $1 AND status = $2
		ORDER BY created_at
	`

	return r.queryApprovals(ctx, query, approverID, string(status))
}

func (r *ApprovalRepository) All(ctx context.Context) ([]*models.ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals ORDER BY created_at`

	return r.queryApprovals(ctx, query)
}

func (r *ApprovalRepository) Transition(
	ctx context.Context,
	id string,
	from, to models.ApprovalStatus,
	change persistence.TransitionChange,
) (*models.ApprovalRecord, error) {
	query := `
		UPDATE approvals
		SET status = $3,
			approver_id = CASE WHEN $4 = '' THEN approver_id ELSE $4 END,
			comment = CASE WHEN $5 = '' THEN comment ELSE $5 END,
			decided_at = $6
		WHERE id = $1 AND status = $2
		RETURNING ` + approvalColumns

	var decidedAt *time.Time
	if !change.DecidedAt.IsZero() {
		decidedAt = &change.DecidedAt
	}

	record, err := scanApproval(r.db.QueryRowContext(ctx, query,
		id, string(from), string(to), change.ApproverID, change.Comment, decidedAt))
	if err == nil {
		return record, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewApprovalError("Transition", id, err)
	}

	// No row matched: either the record is unknown or the CAS lost.
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}

	return nil, &persistence.StatusConflictError{ApprovalID: id, Status: current.Status}
}

func (r *ApprovalRepository) ExpirePendingAfter(ctx context.Context, entityID, entityType string, after time.Time) ([]string, error) {
	query := `
		UPDATE approvals
		SET status = $4, decided_at = NOW()
		WHERE entity_id = $1 AND entity_type = $2
			AND status = $3 AND created_at > $5
		RETURNING id
	`

	return r.updateReturningIDs(ctx, "ExpirePendingAfter", query,
		entityID, entityType,
		string(models.ApprovalStatusPending), string(models.ApprovalStatusExpired), after)
}

func (r *ApprovalRepository) EscalatePendingBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		UPDATE approvals
		SET status = $2, decided_at = NOW()
		WHERE status = $1 AND created_at < $3
		RETURNING id
	`

	return r.updateReturningIDs(ctx, "EscalatePendingBefore", query,
		string(models.ApprovalStatusPending), string(models.ApprovalStatusEscalated), cutoff)
}

func (r *ApprovalRepository) queryApprovals(ctx context.Context, query string, args ...any) ([]*models.ApprovalRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var records []*models.ApprovalRecord

	for rows.Next() {
		record, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approvals: %w", err)
	}

	return records, nil
}

func (r *ApprovalRepository) updateReturningIDs(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewApprovalError(op, "", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, persistence.NewApprovalError(op, "", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewApprovalError(op, "", err)
	}

	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row rowScanner) (*models.ApprovalRecord, error) {
	var (
		record    models.ApprovalRecord
		stepName  string
		status    string
		priority  string
		decidedAt sql.NullTime
	)

	err := row.Scan(
		&record.ID, &record.TenantID, &record.EntityID, &record.EntityType,
		&stepName, &record.RequesterID, &record.ApproverID,
		&status, &priority, &record.Comment, &record.DocumentTitle,
		&record.CreatedAt, &decidedAt, &record.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	record.StepName = models.StepName(stepName)
	record.Status = models.ApprovalStatus(status)
	record.Priority = models.ApprovalPriority(priority)

	if decidedAt.Valid {
		t := decidedAt.Time
		record.DecidedAt = &t
	}

	return &record, nil
}
