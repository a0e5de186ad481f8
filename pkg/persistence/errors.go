// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"

	"github.com/greenlight-engine/greenlight/pkg/models"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrApprovalNotFound indicates an approval record was not found by the given identifier.
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrRuleNotFound indicates a rule was not found by the given identifier.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrApprovalAlreadyExists indicates an approval record with the same identifier already exists.
	ErrApprovalAlreadyExists = errors.New("approval already exists")

	// ErrAlreadyDecided indicates a transition was attempted on a record
	// that has already left the expected state.
	ErrAlreadyDecided = errors.New("approval already decided")
)

// StatusConflictError reports a failed compare-and-swap transition, and
// carries the record's actual status so callers can build a precise
// message.
type StatusConflictError struct {
	ApprovalID string
	Status     models.ApprovalStatus
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("approval %s already %s", e.ApprovalID, e.Status)
}

func (e *StatusConflictError) Is(target error) bool {
	return target == ErrAlreadyDecided
}

// ApprovalError wraps approval-persistence errors with operation context.
type ApprovalError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Transition")
	ApprovalID string
	Err        error
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("%s operation failed for approval %s: %v", e.Op, e.ApprovalID, e.Err)
}

func (e *ApprovalError) Unwrap() error {
	return e.Err
}

func (e *ApprovalError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewApprovalError creates a new approval error with context.
func NewApprovalError(op, approvalID string, err error) *ApprovalError {
	return &ApprovalError{
		Op:         op,
		ApprovalID: approvalID,
		Err:        err,
	}
}

// IsApprovalNotFound checks if an error indicates an approval was not found.
func IsApprovalNotFound(err error) bool {
	return errors.Is(err, ErrApprovalNotFound)
}

// IsRuleNotFound checks if an error indicates a rule was not found.
func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}

// IsAlreadyDecided checks if an error indicates a failed status transition.
func IsAlreadyDecided(err error) bool {
	return errors.Is(err, ErrAlreadyDecided)
}
