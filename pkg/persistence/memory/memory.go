// Package memory provides an in-memory persistence implementation for
// approval records and rules. It is the default for development and
// tests, and the reference implementation of the atomic transition
// contract.
package memory

import (
	"context"

	"github.com/greenlight-engine/greenlight/pkg/persistence"
)

// Persistence implements persistence.Persistence with mutex-guarded maps.
type Persistence struct {
	approvals *ApprovalRepository
	rules     *RuleRepository
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() persistence.Persistence {
	return &Persistence{
		approvals: NewApprovalRepository(),
		rules:     NewRuleRepository(),
	}
}

func (p *Persistence) Approvals() persistence.ApprovalRepository {
	return p.approvals
}

func (p *Persistence) Rules() persistence.RuleRepository {
	return p.rules
}

// HealthCheck always succeeds for the in-memory store.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
