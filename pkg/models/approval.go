package models

import "time"

// ApprovalStatus represents the lifecycle state of an approval record.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusEscalated ApprovalStatus = "escalated"
	ApprovalStatusExpired   ApprovalStatus = "expired"
)

// Valid reports whether the status is a known state.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected,
		ApprovalStatusEscalated, ApprovalStatusExpired:
		return true
	}

	return false
}

// Terminal reports whether no further transitions are allowed from this
// status. Every status except pending is terminal.
func (s ApprovalStatus) Terminal() bool {
	return s != ApprovalStatusPending
}

// ApprovalPriority is the urgency level of an approval record.
type ApprovalPriority string

const (
	PriorityLow    ApprovalPriority = "low"
	PriorityNormal ApprovalPriority = "normal"
	PriorityHigh   ApprovalPriority = "high"
	PriorityUrgent ApprovalPriority = "urgent"
)

// ParseApprovalPriority is lenient: unknown or empty values become normal.
func ParseApprovalPriority(raw string) ApprovalPriority {
	switch ApprovalPriority(raw) {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return ApprovalPriority(raw)
	}

	return PriorityNormal
}

// DefaultApprovalTimeout is how long a record stays actionable before it
// counts as expired for reporting.
const DefaultApprovalTimeout = 7 * 24 * time.Hour

// ApprovalRecord is one pending decision for one workflow step of one
// entity. A workflow instance creates one record per non-marker planned
// step. Records transition pending -> approved/rejected/escalated/expired
// and never leave a terminal state.
type ApprovalRecord struct {
	ID            string           `json:"id"`
	TenantID      string           `json:"tenant_id"`
	EntityID      string           `json:"entity_id"      validate:"required"`
	EntityType    string           `json:"entity_type"    validate:"required"`
	StepName      StepName         `json:"step_name"`
	RequesterID   string           `json:"requester_id"   validate:"required"`
	ApproverID    string           `json:"approver_id"`
	Status        ApprovalStatus   `json:"status"`
	Priority      ApprovalPriority `json:"priority"`
	Comment       string           `json:"comment,omitempty"`
	DocumentTitle string           `json:"document_title,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	DecidedAt     *time.Time       `json:"decided_at,omitempty"`
	ExpiresAt     time.Time        `json:"expires_at"`
}

// Decided reports whether a decision has been recorded.
func (r *ApprovalRecord) Decided() bool {
	return r.DecidedAt != nil
}

// Overdue reports whether the record has been pending longer than the
// given threshold at the reference time.
func (r *ApprovalRecord) Overdue(threshold time.Duration, now time.Time) bool {
	return r.Status == ApprovalStatusPending && now.Sub(r.CreatedAt) > threshold
}

// PastDeadline reports whether a still-pending record has outlived its
// expiry deadline.
func (r *ApprovalRecord) PastDeadline(now time.Time) bool {
	return r.Status == ApprovalStatusPending && now.After(r.ExpiresAt)
}

// DaysPending returns whole days since creation for pending records.
func (r *ApprovalRecord) DaysPending(now time.Time) int {
	if r.Status != ApprovalStatusPending {
		return 0
	}

	return int(now.Sub(r.CreatedAt).Hours() / 24)
}

// Clone returns a deep copy so stores can hand out records without
// sharing mutable state.
func (r *ApprovalRecord) Clone() *ApprovalRecord {
	clone := *r

	if r.DecidedAt != nil {
		decidedAt := *r.DecidedAt
		clone.DecidedAt = &decidedAt
	}

	return &clone
}
