package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/greenlight-engine/greenlight/pkg/events"
	"github.com/greenlight-engine/greenlight/pkg/models"
	"github.com/greenlight-engine/greenlight/pkg/notification"
	"github.com/greenlight-engine/greenlight/pkg/persistence"
	"github.com/greenlight-engine/greenlight/pkg/workflow"
)

// Decision result codes carried in DecisionResult.Code.
const (
	CodeNotFound       = "not_found"
	CodeAlreadyDecided = "already_decided"
	CodeNotAuthorized  = "not_authorized"
)

// Approval is the approval request manager: it creates workflow
// instances, records decisions, and reports status. Decision outcomes
// that stem from the caller (unknown record, terminal record, wrong
// approver) come back as a DecisionResult, not an error; errors are
// reserved for persistence failures.
type Approval struct {
	persistence persistence.Persistence
	dispatcher  notification.Dispatcher
	logger      *slog.Logger
	timeout     time.Duration
	now         func() time.Time
}

// NewApproval creates the approval service. A non-positive timeout falls
// back to the default record expiry of seven days.
func NewApproval(
	store persistence.Persistence,
	dispatcher notification.Dispatcher,
	timeout time.Duration,
	logger *slog.Logger,
) *Approval {
	if timeout <= 0 {
		timeout = models.DefaultApprovalTimeout
	}

	return &Approval{
		persistence: store,
		dispatcher:  dispatcher,
		logger:      logger.With("module", "approval_service"),
		timeout:     timeout,
		now:         time.Now,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Approval) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// RuleDefinition is the caller-facing shape of an approval rule, as
// accepted by the rule API and per-instance custom rules.
type RuleDefinition struct {
	Name        string `json:"name"        validate:"required,min=1"`
	Field       string `json:"field"       validate:"required"`
	Condition   string `json:"condition"   validate:"required"`
	Threshold   any    `json:"threshold"`
	Action      string `json:"action"      validate:"required"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
}

func (d RuleDefinition) toRule() (models.ApprovalRule, error) {
	if d.Name == "" {
		return models.ApprovalRule{}, ErrRuleNameRequired
	}

	if d.Field == "" {
		return models.ApprovalRule{}, ErrRuleFieldRequired
	}

	condition := models.RuleCondition(d.Condition)
	if !condition.Valid() {
		return models.ApprovalRule{}, fmt.Errorf("%w: %q", ErrUnknownCondition, d.Condition)
	}

	action, err := models.ParseRuleAction(d.Action)
	if err != nil {
		return models.ApprovalRule{}, fmt.Errorf("%w: %q", ErrUnknownAction, d.Action)
	}

	if err := validateThreshold(condition, d.Threshold); err != nil {
		return models.ApprovalRule{}, err
	}

	return models.ApprovalRule{
		Name:        d.Name,
		Field:       d.Field,
		Condition:   condition,
		Threshold:   d.Threshold,
		Action:      action,
		Description: d.Description,
		Priority:    d.Priority,
	}, nil
}

// validateThreshold rejects thresholds a numeric comparison could never
// match. Other conditions accept any threshold.
func validateThreshold(condition models.RuleCondition, threshold any) error {
	if condition != models.ConditionGreaterThan && condition != models.ConditionLessThan {
		return nil
	}

	switch value := threshold.(type) {
	case int, int32, int64, float32, float64:
		return nil
	case json.Number:
		if _, err := value.Float64(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
		}

		return nil
	default:
		return fmt.Errorf("%w: %s requires a numeric threshold, got %T", ErrInvalidThreshold, condition, threshold)
	}
}

// CreateInstanceRequest describes a new workflow instance for one entity.
// Approvers maps planned step names to approver IDs; steps without a
// mapping are skipped with a warning.
type CreateInstanceRequest struct {
	TenantID      string            `json:"tenant_id"`
	EntityID      string            `json:"entity_id"    validate:"required"`
	EntityType    string            `json:"entity_type"  validate:"required"`
	RequesterID   string            `json:"requester_id" validate:"required"`
	Template      string            `json:"template"`
	Priority      string            `json:"priority"`
	DocumentTitle string            `json:"document_title"`
	Context       map[string]any    `json:"context"`
	Approvers     map[string]string `json:"approvers"`
	CustomRules   []RuleDefinition  `json:"custom_rules"`
}

// InstanceResult reports the planned steps and the approval records a
// workflow instance produced.
type InstanceResult struct {
	EntityID     string                   `json:"entity_id"`
	EntityType   string                   `json:"entity_type"`
	Template     string                   `json:"template"`
	Steps        []models.StepName        `json:"steps"`
	SkippedSteps []models.StepName        `json:"skipped_steps,omitempty"`
	Approvals    []*models.ApprovalRecord `json:"approvals"`
}

// CreateWorkflowInstance plans the step sequence for the entity context
// and creates one pending approval record per planned approval step with
// a mapped approver. Stored rules and the request's custom rules both
// join the template's seeded rules before evaluation.
func (s *Approval) CreateWorkflowInstance(ctx context.Context, req CreateInstanceRequest) (*InstanceResult, error) {
	const op = "CreateWorkflowInstance"

	if req.EntityID == "" {
		return nil, NewValidationError(op, "entity_id_required", "entity ID is required", ErrEntityIDRequired)
	}

	if req.EntityType == "" {
		return nil, NewValidationError(op, "entity_type_required", "entity type is required", ErrEntityTypeRequired)
	}

	if req.RequesterID == "" {
		return nil, NewValidationError(op, "requester_id_required", "requester ID is required", ErrRequesterIDRequired)
	}

	engine := workflow.NewEngine(req.TenantID, req.Template, s.logger)

	stored, err := s.persistence.Rules().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored rules: %w", err)
	}

	for _, rule := range stored {
		engine.AddRule(*rule)
	}

	for _, definition := range req.CustomRules {
		rule, err := definition.toRule()
		if err != nil {
			return nil, NewValidationError(op, "invalid_rule", err.Error(), err)
		}

		engine.AddRule(rule)
	}

	steps := engine.Steps(req.Context)
	now := s.now()
	priority := models.ParseApprovalPriority(req.Priority)

	result := &InstanceResult{
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
		Template:   engine.Template().Name,
		Steps:      steps,
		Approvals:  make([]*models.ApprovalRecord, 0, len(steps)),
	}

	for _, step := range steps {
		if step.IsMarker() {
			continue
		}

		approverID := req.Approvers[string(step)]
		if approverID == "" {
			s.logger.WarnContext(ctx, "No approver mapped for step, skipping",
				"entity_id", req.EntityID, "step", step)

			result.SkippedSteps = append(result.SkippedSteps, step)

			continue
		}

		// Each record is stamped strictly later than the one before it,
		// so a rejection cascade expires exactly the later steps.
		createdAt := now.Add(time.Duration(len(result.Approvals)) * time.Millisecond)

		record := &models.ApprovalRecord{
			ID:            uuid.NewString(),
			TenantID:      req.TenantID,
			EntityID:      req.EntityID,
			EntityType:    req.EntityType,
			StepName:      step,
			RequesterID:   req.RequesterID,
			ApproverID:    approverID,
			Status:        models.ApprovalStatusPending,
			Priority:      priority,
			DocumentTitle: req.DocumentTitle,
			CreatedAt:     createdAt,
			ExpiresAt:     createdAt.Add(s.timeout),
		}

		if err := s.persistence.Approvals().Save(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to save approval for step %s: %w", step, err)
		}

		result.Approvals = append(result.Approvals, record)

		s.dispatcher.Dispatch(ctx, record.EntityID, events.ApprovalRequested{
			BaseEvent:     s.baseEvent(events.ApprovalRequestedEvent, record),
			ApprovalID:    record.ID,
			StepName:      record.StepName,
			ApproverID:    record.ApproverID,
			RequesterID:   record.RequesterID,
			Priority:      record.Priority,
			DocumentTitle: record.DocumentTitle,
			ExpiresAt:     record.ExpiresAt,
			ActionURL:     "/approvals/" + record.ID,
		})
	}

	s.logger.InfoContext(ctx, "Created workflow instance",
		"entity_id", req.EntityID, "entity_type", req.EntityType,
		"template", result.Template, "approvals", len(result.Approvals),
		"skipped", len(result.SkippedSteps))

	return result, nil
}

// DecisionResult is the structured outcome of an approve or reject call.
// OK is false when the decision could not be applied for a caller-side
// reason; Code then distinguishes not_found, already_decided, and
// not_authorized.
type DecisionResult struct {
	OK       bool                   `json:"ok"`
	Code     string                 `json:"code,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Approval *models.ApprovalRecord `json:"approval,omitempty"`
}

func decisionFailure(code, message string) *DecisionResult {
	return &DecisionResult{OK: false, Code: code, Message: message}
}

// Approve records an approval decision on a pending record. The final
// pending check runs inside the repository transition, so two concurrent
// decisions yield exactly one success.
func (s *Approval) Approve(ctx context.Context, approvalID, approverID, comment string) (*DecisionResult, error) {
	const op = "Approve"

	_, result, err := s.authorizeDecision(ctx, op, approvalID, approverID)
	if result != nil || err != nil {
		return result, err
	}

	updated, err := s.persistence.Approvals().Transition(ctx, approvalID,
		models.ApprovalStatusPending, models.ApprovalStatusApproved,
		persistence.TransitionChange{ApproverID: approverID, Comment: comment, DecidedAt: s.now()})
	if err != nil {
		return s.transitionFailure(op, approvalID, err)
	}

	status, err := s.Status(ctx, updated.EntityID, updated.EntityType)
	if err != nil {
		return nil, fmt.Errorf("failed to compute entity status: %w", err)
	}

	s.dispatcher.Dispatch(ctx, updated.EntityID, events.ApprovalApproved{
		BaseEvent:   s.baseEvent(events.ApprovalApprovedEvent, updated),
		ApprovalID:  updated.ID,
		StepName:    updated.StepName,
		ApproverID:  updated.ApproverID,
		RequesterID: updated.RequesterID,
		Comment:     updated.Comment,
		AllApproved: status.AllApproved,
	})

	s.logger.InfoContext(ctx, "Approval recorded",
		"approval_id", approvalID, "approver_id", approverID,
		"step", updated.StepName, "all_approved", status.AllApproved)

	return &DecisionResult{OK: true, Approval: updated}, nil
}

// Reject records a rejection and expires every later pending record of
// the same entity, halting the workflow instance. Records decided
// concurrently with the cascade keep their decision.
func (s *Approval) Reject(ctx context.Context, approvalID, approverID, comment string) (*DecisionResult, error) {
	const op = "Reject"

	_, result, err := s.authorizeDecision(ctx, op, approvalID, approverID)
	if result != nil || err != nil {
		return result, err
	}

	updated, err := s.persistence.Approvals().Transition(ctx, approvalID,
		models.ApprovalStatusPending, models.ApprovalStatusRejected,
		persistence.TransitionChange{ApproverID: approverID, Comment: comment, DecidedAt: s.now()})
	if err != nil {
		return s.transitionFailure(op, approvalID, err)
	}

	expired, err := s.persistence.Approvals().ExpirePendingAfter(ctx,
		updated.EntityID, updated.EntityType, updated.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to expire remaining approvals: %w", err)
	}

	s.dispatcher.Dispatch(ctx, updated.EntityID, events.ApprovalRejected{
		BaseEvent:   s.baseEvent(events.ApprovalRejectedEvent, updated),
		ApprovalID:  updated.ID,
		StepName:    updated.StepName,
		ApproverID:  updated.ApproverID,
		RequesterID: updated.RequesterID,
		Comment:     updated.Comment,
		ExpiredIDs:  expired,
	})

	s.logger.InfoContext(ctx, "Approval rejected",
		"approval_id", approvalID, "approver_id", approverID,
		"step", updated.StepName, "expired", len(expired))

	return &DecisionResult{OK: true, Approval: updated}, nil
}

// authorizeDecision resolves the record and checks the caller may decide
// it. The pending check here is advisory; the repository transition is
// authoritative.
func (s *Approval) authorizeDecision(
	ctx context.Context,
	op, approvalID, approverID string,
) (*models.ApprovalRecord, *DecisionResult, error) {
	if approverID == "" {
		return nil, nil, NewValidationError(op, "approver_id_required", "approver ID is required", ErrApproverIDRequired)
	}

	record, err := s.persistence.Approvals().GetByID(ctx, approvalID)
	if err != nil {
		if persistence.IsApprovalNotFound(err) {
			return nil, decisionFailure(CodeNotFound, fmt.Sprintf("approval %s not found", approvalID)), nil
		}

		return nil, nil, fmt.Errorf("failed to load approval %s: %w", approvalID, err)
	}

	// The status check precedes the assignment check: a decided record
	// reports its decision to any caller.
	if record.Status.Terminal() {
		return nil, decisionFailure(CodeAlreadyDecided,
			fmt.Sprintf("approval %s already %s", approvalID, record.Status)), nil
	}

	if record.ApproverID != approverID {
		return nil, decisionFailure(CodeNotAuthorized,
			fmt.Sprintf("approver %s is not assigned to approval %s", approverID, approvalID)), nil
	}

	return record, nil, nil
}

// transitionFailure maps a failed repository transition to a decision
// result where the cause is caller-side, and to an error otherwise.
func (s *Approval) transitionFailure(op, approvalID string, err error) (*DecisionResult, error) {
	var conflict *persistence.StatusConflictError
	if errors.As(err, &conflict) {
		return decisionFailure(CodeAlreadyDecided,
			fmt.Sprintf("approval %s already %s", approvalID, conflict.Status)), nil
	}

	if persistence.IsApprovalNotFound(err) {
		return decisionFailure(CodeNotFound, fmt.Sprintf("approval %s not found", approvalID)), nil
	}

	return nil, fmt.Errorf("%s transition failed for approval %s: %w", op, approvalID, err)
}

// EntityStatus summarizes an entity's approval progress.
type EntityStatus struct {
	EntityID       string                   `json:"entity_id"`
	EntityType     string                   `json:"entity_type"`
	Total          int                      `json:"total"`
	Approved       int                      `json:"approved"`
	Pending        int                      `json:"pending"`
	Rejected       int                      `json:"rejected"`
	AllApproved    bool                     `json:"all_approved"`
	CompletionRate float64                  `json:"completion_rate"`
	Approvals      []*models.ApprovalRecord `json:"approvals"`
}

// Status reports the approval progress of one entity.
func (s *Approval) Status(ctx context.Context, entityID, entityType string) (*EntityStatus, error) {
	records, err := s.persistence.Approvals().FindByEntity(ctx, entityID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to load approvals for %s %s: %w", entityType, entityID, err)
	}

	status := &EntityStatus{
		EntityID:   entityID,
		EntityType: entityType,
		Total:      len(records),
		Approvals:  records,
	}

	for _, record := range records {
		switch record.Status {
		case models.ApprovalStatusApproved:
			status.Approved++
		case models.ApprovalStatusPending:
			status.Pending++
		case models.ApprovalStatusRejected:
			status.Rejected++
		}
	}

	status.AllApproved = status.Total > 0 && status.Approved == status.Total

	if status.Total > 0 {
		status.CompletionRate = round2(float64(status.Approved) / float64(status.Total) * 100)
	}

	return status, nil
}

// PendingApproval is one pending record on an approver's work list.
type PendingApproval struct {
	Approval    *models.ApprovalRecord `json:"approval"`
	DaysPending int                    `json:"days_pending"`
}

// ListPending returns the approver's pending records, oldest first.
func (s *Approval) ListPending(ctx context.Context, approverID string) ([]PendingApproval, error) {
	if approverID == "" {
		return nil, NewValidationError("ListPending", "approver_id_required", "approver ID is required", ErrApproverIDRequired)
	}

	records, err := s.persistence.Approvals().FindByApprover(ctx, approverID, models.ApprovalStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending approvals for %s: %w", approverID, err)
	}

	now := s.now()
	pending := make([]PendingApproval, 0, len(records))

	for _, record := range records {
		pending = append(pending, PendingApproval{
			Approval:    record,
			DaysPending: record.DaysPending(now),
		})
	}

	return pending, nil
}

// ListByApprover returns the approver's records in the given status.
func (s *Approval) ListByApprover(ctx context.Context, approverID string, status models.ApprovalStatus) ([]*models.ApprovalRecord, error) {
	if approverID == "" {
		return nil, NewValidationError("ListByApprover", "approver_id_required", "approver ID is required", ErrApproverIDRequired)
	}

	records, err := s.persistence.Approvals().FindByApprover(ctx, approverID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to load approvals for %s: %w", approverID, err)
	}

	return records, nil
}

// Statistics aggregates counts and rates over all approval records.
type Statistics struct {
	TotalRequests        int     `json:"total_requests"`
	Approved             int     `json:"approved"`
	Rejected             int     `json:"rejected"`
	Pending              int     `json:"pending"`
	Expired              int     `json:"expired"`
	Escalated            int     `json:"escalated"`
	ApprovalRate         float64 `json:"approval_rate"`
	RejectionRate        float64 `json:"rejection_rate"`
	AvgApprovalTimeHours float64 `json:"avg_approval_time_hours"`
	TotalRules           int     `json:"total_rules"`
}

// Statistics reports engine-wide approval metrics. Rates are percentages
// of all records; the average approval time is the mean over approved
// records and zero when none exist.
func (s *Approval) Statistics(ctx context.Context) (*Statistics, error) {
	records, err := s.persistence.Approvals().All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load approvals: %w", err)
	}

	rules, err := s.persistence.Rules().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	stats := &Statistics{
		TotalRequests: len(records),
		TotalRules:    len(rules),
	}

	var totalApprovalHours float64

	for _, record := range records {
		switch record.Status {
		case models.ApprovalStatusApproved:
			stats.Approved++

			if record.DecidedAt != nil {
				totalApprovalHours += record.DecidedAt.Sub(record.CreatedAt).Hours()
			}
		case models.ApprovalStatusRejected:
			stats.Rejected++
		case models.ApprovalStatusPending:
			stats.Pending++
		case models.ApprovalStatusExpired:
			stats.Expired++
		case models.ApprovalStatusEscalated:
			stats.Escalated++
		}
	}

	if stats.TotalRequests > 0 {
		stats.ApprovalRate = round2(float64(stats.Approved) / float64(stats.TotalRequests) * 100)
		stats.RejectionRate = round2(float64(stats.Rejected) / float64(stats.TotalRequests) * 100)
	}

	if stats.Approved > 0 {
		stats.AvgApprovalTimeHours = round2(totalApprovalHours / float64(stats.Approved))
	}

	return stats, nil
}

// EscalateOverdue sweeps every record pending longer than thresholdDays
// into the escalated state and notifies per escalated record. The sweep
// is idempotent: escalated records are terminal and never picked up
// again.
func (s *Approval) EscalateOverdue(ctx context.Context, thresholdDays int) ([]string, error) {
	if thresholdDays <= 0 {
		thresholdDays = 3
	}

	now := s.now()
	cutoff := now.Add(-time.Duration(thresholdDays) * 24 * time.Hour)

	escalated, err := s.persistence.Approvals().EscalatePendingBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to escalate overdue approvals: %w", err)
	}

	for _, id := range escalated {
		record, err := s.persistence.Approvals().GetByID(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "Escalated approval vanished before notification", "approval_id", id, "error", err)

			continue
		}

		s.dispatcher.Dispatch(ctx, record.EntityID, events.ApprovalEscalated{
			BaseEvent:   s.baseEvent(events.ApprovalEscalatedEvent, record),
			ApprovalID:  record.ID,
			StepName:    record.StepName,
			ApproverID:  record.ApproverID,
			RequesterID: record.RequesterID,
			DaysPending: int(now.Sub(record.CreatedAt).Hours() / 24),
		})
	}

	if len(escalated) > 0 {
		s.logger.InfoContext(ctx, "Escalated overdue approvals",
			"count", len(escalated), "threshold_days", thresholdDays)
	}

	return escalated, nil
}

// CreateRule validates and persists an approval rule.
func (s *Approval) CreateRule(ctx context.Context, definition RuleDefinition) (*models.ApprovalRule, error) {
	const op = "CreateRule"

	rule, err := definition.toRule()
	if err != nil {
		return nil, NewValidationError(op, "invalid_rule", err.Error(), err)
	}

	rule.ID = uuid.NewString()
	rule.CreatedAt = s.now()

	if err := s.persistence.Rules().Save(ctx, &rule); err != nil {
		return nil, fmt.Errorf("failed to save rule %s: %w", rule.Name, err)
	}

	s.logger.InfoContext(ctx, "Created rule",
		"rule_id", rule.ID, "rule", rule.Name, "action", rule.Action, "priority", rule.Priority)

	return &rule, nil
}

// SeedRules persists a named built-in rule set (contract_approval,
// vendor_onboarding, change_order). Seeded rules behave like any stored
// rule and apply to every new workflow instance.
func (s *Approval) SeedRules(ctx context.Context, setName string) (int, error) {
	rules, ok := models.RuleSetByName(setName)
	if !ok {
		return 0, NewValidationError("SeedRules", "unknown_rule_set",
			fmt.Sprintf("unknown rule set %q", setName), ErrInvalidRequest)
	}

	for i := range rules {
		rules[i].ID = uuid.NewString()
		rules[i].CreatedAt = s.now()

		if err := s.persistence.Rules().Save(ctx, &rules[i]); err != nil {
			return 0, fmt.Errorf("failed to seed rule %s: %w", rules[i].Name, err)
		}
	}

	s.logger.InfoContext(ctx, "Seeded rule set", "set", setName, "rules", len(rules))

	return len(rules), nil
}

// ListRules returns all stored rules in priority order.
func (s *Approval) ListRules(ctx context.Context) ([]*models.ApprovalRule, error) {
	rules, err := s.persistence.Rules().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	return rules, nil
}

// DeleteRule removes a stored rule.
func (s *Approval) DeleteRule(ctx context.Context, id string) error {
	if err := s.persistence.Rules().Delete(ctx, id); err != nil {
		if persistence.IsRuleNotFound(err) {
			return err
		}

		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}

	return nil
}

// Templates returns the built-in workflow templates.
func (s *Approval) Templates() []models.WorkflowTemplate {
	names := models.TemplateNames()
	templates := make([]models.WorkflowTemplate, 0, len(names))

	for _, name := range names {
		templates = append(templates, models.TemplateByName(name))
	}

	return templates
}

func (s *Approval) baseEvent(eventType events.EventType, record *models.ApprovalRecord) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  s.now(),
		TenantID:   record.TenantID,
		EntityID:   record.EntityID,
		EntityType: record.EntityType,
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
