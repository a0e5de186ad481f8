// Package models defines the core domain models for rule-driven approval workflows.
package models

import "fmt"

// StepName identifies a step in an approval workflow.
type StepName string

const (
	StepSubmission        StepName = "submission"
	StepInitialReview     StepName = "initial_review"
	StepManagerApproval   StepName = "manager_approval"
	StepLegalReview       StepName = "legal_review"
	StepFinanceApproval   StepName = "finance_approval"
	StepExecutiveApproval StepName = "executive_approval"
	StepFinalApproval     StepName = "final_approval"
	StepCompleted         StepName = "completed"
	StepRejected          StepName = "rejected"
)

// IsMarker reports whether the step is a workflow marker rather than an
// approval stage. Markers never get approval records.
func (s StepName) IsMarker() bool {
	return s == StepSubmission || s == StepCompleted || s == StepRejected
}

// RequiresApproval reports whether an approval record must be created for
// this step.
func (s StepName) RequiresApproval() bool {
	return !s.IsMarker()
}

// RuleAction is the closed set of action tags a matching rule can emit.
// The planner switches over these exhaustively.
type RuleAction string

const (
	ActionAddLegalReview       RuleAction = "add_legal_review"
	ActionAddFinanceApproval   RuleAction = "add_finance_approval"
	ActionAddExecutiveApproval RuleAction = "add_executive_approval"
	ActionEscalateToExecutive  RuleAction = "escalate_to_executive"

	// Informational tags carried by seeded rule sets. They parse and are
	// reported by rule evaluation but cause no step insertion.
	ActionStandardApproval    RuleAction = "standard_approval"
	ActionManagerApproval     RuleAction = "manager_approval"
	ActionAddComplianceReview RuleAction = "add_compliance_review"
)

var knownActions = map[RuleAction]struct{}{
	ActionAddLegalReview:       {},
	ActionAddFinanceApproval:   {},
	ActionAddExecutiveApproval: {},
	ActionEscalateToExecutive:  {},
	ActionStandardApproval:     {},
	ActionManagerApproval:      {},
	ActionAddComplianceReview:  {},
}

// Valid reports whether the action is a known tag.
func (a RuleAction) Valid() bool {
	_, ok := knownActions[a]

	return ok
}

// ParseRuleAction converts a raw tag into a RuleAction.
func ParseRuleAction(raw string) (RuleAction, error) {
	action := RuleAction(raw)
	if !action.Valid() {
		return "", fmt.Errorf("unknown rule action %q", raw)
	}

	return action, nil
}
