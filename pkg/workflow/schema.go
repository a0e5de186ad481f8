package workflow

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ruleDefinitionSchema constrains caller-supplied rule definitions before
// they are bound into a model. Threshold is deliberately open: it may be
// a scalar or a set depending on the condition.
var ruleDefinitionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name": map[string]any{
			"type":      "string",
			"minLength": 1,
		},
		"field": map[string]any{
			"type":      "string",
			"minLength": 1,
		},
		"condition": map[string]any{
			"type": "string",
			"enum": []string{
				"greater_than", "less_than", "equals",
				"in_list", "not_in_list", "contains",
			},
		},
		"threshold": map[string]any{},
		"action": map[string]any{
			"type": "string",
			"enum": []string{
				"add_legal_review", "add_finance_approval",
				"add_executive_approval", "escalate_to_executive",
				"standard_approval", "manager_approval", "add_compliance_review",
			},
		},
		"description": map[string]any{
			"type": "string",
		},
		"priority": map[string]any{
			"type":    "integer",
			"minimum": 0,
		},
	},
	"required":             []string{"name", "field", "condition", "action"},
	"additionalProperties": false,
}

// ValidateRuleDefinition validates a raw rule definition against the rule
// schema.
func ValidateRuleDefinition(definition map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(ruleDefinitionSchema)
	dataLoader := gojsonschema.NewGoLoader(definition)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("invalid rule definition: %s", strings.Join(errors, "; "))
	}

	return nil
}
