// Package persistence provides the data storage abstraction for approval
// records and rules.
package persistence

import (
	"context"
	"time"

	"github.com/greenlight-engine/greenlight/pkg/models"
)

// Persistence is the storage entry point the engine depends on. It does
// not prescribe a storage backend; memory, PostgreSQL, and Redis
// implementations ship with this module.
type Persistence interface {
	Approvals() ApprovalRepository
	Rules() RuleRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// TransitionChange carries the per-decision fields written together with
// a status transition.
type TransitionChange struct {
	ApproverID string
	Comment    string
	DecidedAt  time.Time
}

// ApprovalRepository stores approval records.
//
// Transition, ExpirePendingAfter, and EscalatePendingBefore are the
// concurrency contract: each executes its check-then-set as one atomic
// unit per record, so two concurrent decisions on the same record yield
// exactly one success, and a sweep can never resurrect or double-decide
// a record.
type ApprovalRepository interface {
	Save(ctx context.Context, record *models.ApprovalRecord) error
	GetByID(ctx context.Context, id string) (*models.ApprovalRecord, error)
	FindByEntity(ctx context.Context, entityID, entityType string) ([]*models.ApprovalRecord, error)
	FindByApprover(ctx context.Context, approverID string, status models.ApprovalStatus) ([]*models.ApprovalRecord, error)
	All(ctx context.Context) ([]*models.ApprovalRecord, error)

	// Transition atomically moves a record from status `from` to `to`,
	// applying change. It returns ErrApprovalNotFound for unknown IDs and
	// a StatusConflictError when the record is not in `from`.
	Transition(ctx context.Context, id string, from, to models.ApprovalStatus, change TransitionChange) (*models.ApprovalRecord, error)

	// ExpirePendingAfter expires every pending record of the entity whose
	// CreatedAt is strictly after the given time, returning affected IDs.
	// Records decided concurrently are left untouched.
	ExpirePendingAfter(ctx context.Context, entityID, entityType string, after time.Time) ([]string, error)

	// EscalatePendingBefore escalates every pending record created before
	// the cutoff, returning affected IDs.
	EscalatePendingBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// RuleRepository stores caller-defined approval rules.
type RuleRepository interface {
	Save(ctx context.Context, rule *models.ApprovalRule) error
	GetByID(ctx context.Context, id string) (*models.ApprovalRule, error)
	List(ctx context.Context) ([]*models.ApprovalRule, error)
	Delete(ctx context.Context, id string) error
}
