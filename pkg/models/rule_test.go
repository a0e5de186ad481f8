package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApprovalRule_Matches_GreaterThan(t *testing.T) {
	rule := &ApprovalRule{
		Name:      "High Value",
		Field:     "contract_value",
		Condition: ConditionGreaterThan,
		Threshold: 1_000_000,
		Action:    ActionAddLegalReview,
	}

	assert.True(t, rule.Matches(map[string]any{"contract_value": 2_000_000}))
	assert.True(t, rule.Matches(map[string]any{"contract_value": 1_000_001.5}))
	assert.False(t, rule.Matches(map[string]any{"contract_value": 1_000_000}))
	assert.False(t, rule.Matches(map[string]any{"contract_value": 500_000}))

	// Missing field never matches.
	assert.False(t, rule.Matches(map[string]any{"contract_type": "NDA"}))

	// Non-numeric value never matches, and is not an error.
	assert.False(t, rule.Matches(map[string]any{"contract_value": "a lot"}))

	// JSON numbers decoded with UseNumber still compare.
	assert.True(t, rule.Matches(map[string]any{"contract_value": json.Number("2000000")}))
}

func TestApprovalRule_Matches_LessThan(t *testing.T) {
	rule := &ApprovalRule{
		Field:     "change_amount",
		Condition: ConditionLessThan,
		Threshold: 50_000,
	}

	assert.True(t, rule.Matches(map[string]any{"change_amount": 10_000}))
	assert.False(t, rule.Matches(map[string]any{"change_amount": 50_000}))
	assert.False(t, rule.Matches(map[string]any{"change_amount": 60_000}))
}

func TestApprovalRule_Matches_Equals(t *testing.T) {
	rule := &ApprovalRule{
		Field:     "contract_type",
		Condition: ConditionEquals,
		Threshold: "NDA",
	}

	assert.True(t, rule.Matches(map[string]any{"contract_type": "NDA"}))
	assert.False(t, rule.Matches(map[string]any{"contract_type": "MSA"}))

	// Numeric equality crosses int/float representations.
	numeric := &ApprovalRule{Field: "level", Condition: ConditionEquals, Threshold: 3}
	assert.True(t, numeric.Matches(map[string]any{"level": 3.0}))
}

func TestApprovalRule_Matches_Membership(t *testing.T) {
	in := &ApprovalRule{
		Field:     "vendor_type",
		Condition: ConditionInList,
		Threshold: []string{"High Risk", "New Vendor"},
	}

	assert.True(t, in.Matches(map[string]any{"vendor_type": "High Risk"}))
	assert.False(t, in.Matches(map[string]any{"vendor_type": "Preferred"}))

	notIn := &ApprovalRule{
		Field:     "region",
		Condition: ConditionNotInList,
		Threshold: []any{"EU", "US"},
	}

	assert.True(t, notIn.Matches(map[string]any{"region": "APAC"}))
	assert.False(t, notIn.Matches(map[string]any{"region": "EU"}))

	// A missing field never matches, not even for NOT_IN.
	assert.False(t, notIn.Matches(map[string]any{}))
}

func TestApprovalRule_Matches_Contains(t *testing.T) {
	rule := &ApprovalRule{
		Field:     "counterparty",
		Condition: ConditionContains,
		Threshold: "Holdings",
	}

	assert.True(t, rule.Matches(map[string]any{"counterparty": "Acme Holdings Ltd"}))
	assert.False(t, rule.Matches(map[string]any{"counterparty": "Acme Ltd"}))
}

func TestApprovalRule_Matches_UnknownCondition(t *testing.T) {
	rule := &ApprovalRule{
		Field:     "contract_value",
		Condition: RuleCondition("matches_regex"),
		Threshold: 1,
	}

	assert.False(t, rule.Matches(map[string]any{"contract_value": 100}))
}

func TestParseRuleAction(t *testing.T) {
	action, err := ParseRuleAction("add_legal_review")
	assert.NoError(t, err)
	assert.Equal(t, ActionAddLegalReview, action)

	_, err = ParseRuleAction("launch_missiles")
	assert.Error(t, err)
}
