package models

import "slices"

// WorkflowTemplate is a named base step sequence plus the rules seeded
// with it. The built-in templates are immutable; callers always receive
// copies.
type WorkflowTemplate struct {
	Name      string         `json:"name"`
	BaseSteps []StepName     `json:"base_steps"`
	Rules     []ApprovalRule `json:"rules"`
}

// Clone returns a deep copy of the template.
func (t WorkflowTemplate) Clone() WorkflowTemplate {
	return WorkflowTemplate{
		Name:      t.Name,
		BaseSteps: slices.Clone(t.BaseSteps),
		Rules:     slices.Clone(t.Rules),
	}
}

const DefaultTemplateName = "standard"

var builtinTemplates = map[string]WorkflowTemplate{
	"simple": {
		Name: "simple",
		BaseSteps: []StepName{
			StepSubmission,
			StepManagerApproval,
			StepCompleted,
		},
	},
	"standard": {
		Name: "standard",
		BaseSteps: []StepName{
			StepSubmission,
			StepInitialReview,
			StepManagerApproval,
			StepFinalApproval,
			StepCompleted,
		},
	},
	"comprehensive": {
		Name: "comprehensive",
		BaseSteps: []StepName{
			StepSubmission,
			StepInitialReview,
			StepManagerApproval,
			StepLegalReview,
			StepFinanceApproval,
			StepExecutiveApproval,
			StepFinalApproval,
			StepCompleted,
		},
	},
	"value_based": {
		Name: "value_based",
		BaseSteps: []StepName{
			StepSubmission,
			StepInitialReview,
			StepManagerApproval,
			StepFinalApproval,
			StepCompleted,
		},
		Rules: []ApprovalRule{
			{
				Name:      "High Value Contract",
				Condition: ConditionGreaterThan,
				Field:     "contract_value",
				Threshold: 1_000_000,
				Action:    ActionAddLegalReview,
				Priority:  1,
			},
			{
				Name:      "Very High Value Contract",
				Condition: ConditionGreaterThan,
				Field:     "contract_value",
				Threshold: 5_000_000,
				Action:    ActionAddExecutiveApproval,
				Priority:  2,
			},
		},
	},
	"type_based": {
		Name: "type_based",
		BaseSteps: []StepName{
			StepSubmission,
			StepInitialReview,
			StepManagerApproval,
			StepFinalApproval,
			StepCompleted,
		},
		Rules: []ApprovalRule{
			{
				Name:      "NDA Requires Legal",
				Condition: ConditionEquals,
				Field:     "contract_type",
				Threshold: "NDA",
				Action:    ActionAddLegalReview,
				Priority:  1,
			},
			{
				Name:      "Vendor Agreement Requires Finance",
				Condition: ConditionEquals,
				Field:     "contract_type",
				Threshold: "Vendor Agreement",
				Action:    ActionAddFinanceApproval,
				Priority:  2,
			},
		},
	},
}

// TemplateByName returns a copy of the named built-in template. Unknown
// names fall back to the standard template.
func TemplateByName(name string) WorkflowTemplate {
	template, ok := builtinTemplates[name]
	if !ok {
		template = builtinTemplates[DefaultTemplateName]
	}

	return template.Clone()
}

// TemplateNames lists the built-in template names, sorted.
func TemplateNames() []string {
	names := make([]string, 0, len(builtinTemplates))
	for name := range builtinTemplates {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
