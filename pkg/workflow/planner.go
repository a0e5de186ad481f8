// Package workflow implements rule evaluation and dynamic step planning
// for approval workflows.
package workflow

import (
	"slices"

	"github.com/greenlight-engine/greenlight/pkg/models"
)

// Plan expands a base step sequence with the steps demanded by the given
// actions. The base slice is never mutated and every insertion is
// idempotent: planning the same actions twice yields the same sequence.
//
// Inserted steps resolve from most-operational to most-authoritative so
// cheaper reviewers reject before expensive escalation: legal review sits
// before manager approval, finance before final approval, and executive
// approval immediately before the terminal step.
func Plan(baseSteps []models.StepName, actions []models.RuleAction) []models.StepName {
	steps := slices.Clone(baseSteps)

	for _, action := range actions {
		switch action {
		case models.ActionAddLegalReview:
			steps = insertBefore(steps, models.StepLegalReview, models.StepManagerApproval)
		case models.ActionAddFinanceApproval:
			steps = insertBefore(steps, models.StepFinanceApproval, models.StepFinalApproval)
		case models.ActionAddExecutiveApproval, models.ActionEscalateToExecutive:
			steps = insertSecondToLast(steps, models.StepExecutiveApproval)
		case models.ActionStandardApproval, models.ActionManagerApproval, models.ActionAddComplianceReview:
			// Informational tags; no structural change.
		}
	}

	return steps
}

// ApprovalSteps filters a planned sequence down to the steps that need an
// approval record, dropping workflow markers.
func ApprovalSteps(steps []models.StepName) []models.StepName {
	filtered := make([]models.StepName, 0, len(steps))

	for _, step := range steps {
		if step.RequiresApproval() {
			filtered = append(filtered, step)
		}
	}

	return filtered
}

// insertBefore places step immediately before the first occurrence of
// anchor. When the anchor is absent the step goes immediately before the
// terminal step instead. Present steps are left alone.
func insertBefore(steps []models.StepName, step, anchor models.StepName) []models.StepName {
	if slices.Contains(steps, step) {
		return steps
	}

	idx := slices.Index(steps, anchor)
	if idx < 0 {
		return insertSecondToLast(steps, step)
	}

	return slices.Insert(steps, idx, step)
}

// insertSecondToLast places step immediately before the terminal step.
func insertSecondToLast(steps []models.StepName, step models.StepName) []models.StepName {
	if slices.Contains(steps, step) {
		return steps
	}

	if len(steps) == 0 {
		return []models.StepName{step}
	}

	return slices.Insert(steps, len(steps)-1, step)
}
