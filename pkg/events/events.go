// Package events defines event types and structures for approval lifecycle notifications.
package events

import (
	"time"

	"github.com/greenlight-engine/greenlight/pkg/models"
)

type EventType string

// Kafka topics.
const NotificationTopic = "greenlight.notifications" // Topic for approval notifications

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Approval lifecycle events.
	ApprovalRequestedEvent EventType = "approval_request"
	ApprovalApprovedEvent  EventType = "approval_approved"
	ApprovalRejectedEvent  EventType = "approval_rejected"
	ApprovalEscalatedEvent EventType = "approval_escalated"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	TenantID   string         `json:"tenant_id,omitempty"`
	EntityID   string         `json:"entity_id"`
	EntityType string         `json:"entity_type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ApprovalRequested notifies an approver that a record awaits their
// decision.
type ApprovalRequested struct {
	BaseEvent

	ApprovalID    string                  `json:"approval_id"`
	StepName      models.StepName         `json:"step_name"`
	ApproverID    string                  `json:"approver_id"`
	RequesterID   string                  `json:"requester_id"`
	Priority      models.ApprovalPriority `json:"priority"`
	DocumentTitle string                  `json:"document_title,omitempty"`
	ExpiresAt     time.Time               `json:"expires_at"`
	ActionURL     string                  `json:"action_url,omitempty"`
}

func (a ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

// ApprovalApproved notifies the requester that a step was approved.
type ApprovalApproved struct {
	BaseEvent

	ApprovalID  string          `json:"approval_id"`
	StepName    models.StepName `json:"step_name"`
	ApproverID  string          `json:"approver_id"`
	RequesterID string          `json:"requester_id"`
	Comment     string          `json:"comment,omitempty"`
	AllApproved bool            `json:"all_approved"`
}

func (a ApprovalApproved) GetType() EventType {
	return ApprovalApprovedEvent
}

// ApprovalRejected notifies the requester that a step was rejected and
// the workflow instance halted.
type ApprovalRejected struct {
	BaseEvent

	ApprovalID  string          `json:"approval_id"`
	StepName    models.StepName `json:"step_name"`
	ApproverID  string          `json:"approver_id"`
	RequesterID string          `json:"requester_id"`
	Comment     string          `json:"comment,omitempty"`
	ExpiredIDs  []string        `json:"expired_ids,omitempty"`
}

func (a ApprovalRejected) GetType() EventType {
	return ApprovalRejectedEvent
}

// ApprovalEscalated notifies that an overdue record was flagged by the
// escalation sweep.
type ApprovalEscalated struct {
	BaseEvent

	ApprovalID  string          `json:"approval_id"`
	StepName    models.StepName `json:"step_name"`
	ApproverID  string          `json:"approver_id"`
	RequesterID string          `json:"requester_id"`
	DaysPending int             `json:"days_pending"`
}

func (a ApprovalEscalated) GetType() EventType {
	return ApprovalEscalatedEvent
}
