// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/greenlight-engine/greenlight/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest      = errors.New("invalid request")
	ErrEntityIDRequired    = errors.New("entity ID is required")
	ErrEntityTypeRequired  = errors.New("entity type is required")
	ErrRequesterIDRequired = errors.New("requester ID is required")
	ErrApproverIDRequired  = errors.New("approver ID is required")
	ErrRuleNameRequired    = errors.New("rule name is required")
	ErrRuleFieldRequired   = errors.New("rule field is required")
	ErrUnknownCondition    = errors.New("unknown rule condition")
	ErrUnknownAction       = errors.New("unknown rule action")
	ErrInvalidThreshold    = errors.New("invalid rule threshold")

	// Not-found errors (404 Not Found).
	ErrApprovalNotFound = persistence.ErrApprovalNotFound
	ErrRuleNotFound     = persistence.ErrRuleNotFound

	// Business Logic Conflicts (409 Conflict).
	ErrAlreadyDecided = persistence.ErrAlreadyDecided
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEntityIDRequired) ||
		errors.Is(err, ErrEntityTypeRequired) ||
		errors.Is(err, ErrRequesterIDRequired) ||
		errors.Is(err, ErrApproverIDRequired) ||
		errors.Is(err, ErrRuleNameRequired) ||
		errors.Is(err, ErrRuleFieldRequired) ||
		errors.Is(err, ErrUnknownCondition) ||
		errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrInvalidThreshold)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrApprovalNotFound) || errors.Is(err, ErrRuleNotFound)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyDecided)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
