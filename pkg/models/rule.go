package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// RuleCondition is the comparison operator of an approval rule.
type RuleCondition string

const (
	ConditionGreaterThan RuleCondition = "greater_than"
	ConditionLessThan    RuleCondition = "less_than"
	ConditionEquals      RuleCondition = "equals"
	ConditionInList      RuleCondition = "in_list"
	ConditionNotInList   RuleCondition = "not_in_list"
	ConditionContains    RuleCondition = "contains"
)

// Valid reports whether the condition is a known operator.
func (c RuleCondition) Valid() bool {
	switch c {
	case ConditionGreaterThan, ConditionLessThan, ConditionEquals,
		ConditionInList, ConditionNotInList, ConditionContains:
		return true
	}

	return false
}

// ApprovalRule is a named predicate over one field of an entity context.
// Matching rules emit their action tag for the step planner. Rules are
// immutable once created.
type ApprovalRule struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"        validate:"required,min=1"`
	Field       string        `json:"field"       validate:"required"`
	Condition   RuleCondition `json:"condition"   validate:"required"`
	Threshold   any           `json:"threshold"`
	Action      RuleAction    `json:"action"      validate:"required"`
	Description string        `json:"description,omitempty"`
	Priority    int           `json:"priority"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Matches reports whether the rule's condition holds for the given entity
// context. A missing or nil field never matches, and a non-numeric value
// under a numeric condition never matches; neither is an error. Unknown
// conditions never match.
func (r *ApprovalRule) Matches(context map[string]any) bool {
	value, ok := context[r.Field]
	if !ok || value == nil {
		return false
	}

	switch r.Condition {
	case ConditionGreaterThan:
		left, lok := toFloat(value)
		right, rok := toFloat(r.Threshold)

		return lok && rok && left > right
	case ConditionLessThan:
		left, lok := toFloat(value)
		right, rok := toFloat(r.Threshold)

		return lok && rok && left < right
	case ConditionEquals:
		return equalValues(value, r.Threshold)
	case ConditionInList:
		return inList(value, r.Threshold)
	case ConditionNotInList:
		return !inList(value, r.Threshold)
	case ConditionContains:
		return strings.Contains(stringify(value), stringify(r.Threshold))
	}

	return false
}

// toFloat coerces the usual JSON and Go numeric shapes into a float64.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		parsed, err := v.Float64()

		return parsed, err == nil
	}

	return 0, false
}

// equalValues compares numerically when both sides are numbers, so a JSON
// float context value still equals an integer threshold.
func equalValues(left, right any) bool {
	leftNum, lok := toFloat(left)
	rightNum, rok := toFloat(right)

	if lok && rok {
		return leftNum == rightNum
	}

	return reflect.DeepEqual(left, right)
}

// inList treats the threshold as a set and tests membership.
func inList(value, threshold any) bool {
	switch set := threshold.(type) {
	case []any:
		for _, member := range set {
			if equalValues(value, member) {
				return true
			}
		}
	case []string:
		for _, member := range set {
			if equalValues(value, member) {
				return true
			}
		}
	default:
		// Degenerate single-element set.
		return equalValues(value, threshold)
	}

	return false
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", value)
}
