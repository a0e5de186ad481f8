package workflow

import (
	"log/slog"
	"slices"
	"sort"

	"github.com/greenlight-engine/greenlight/pkg/models"
)

// Engine evaluates a workflow template's rules against an entity context
// and plans the resulting step sequence. Each instance owns a copy of the
// template's rule set, so per-instance customization never leaks into the
// shared built-in templates.
type Engine struct {
	tenantID string
	template models.WorkflowTemplate
	rules    []models.ApprovalRule
	logger   *slog.Logger
}

// NewEngine creates an engine for a tenant from a named built-in
// template. Unknown template names fall back to the standard template.
func NewEngine(tenantID, templateName string, logger *slog.Logger) *Engine {
	template := models.TemplateByName(templateName)

	engine := &Engine{
		tenantID: tenantID,
		template: template,
		rules:    slices.Clone(template.Rules),
		logger: logger.With(
			"module", "workflow_engine",
			"tenant_id", tenantID,
			"template", template.Name,
		),
	}
	engine.sortRules()

	return engine
}

// Template returns a copy of the engine's template.
func (e *Engine) Template() models.WorkflowTemplate {
	return e.template.Clone()
}

// Rules returns the engine's rules in evaluation order.
func (e *Engine) Rules() []models.ApprovalRule {
	return slices.Clone(e.rules)
}

// AddRule appends a custom rule and re-sorts the set by priority.
func (e *Engine) AddRule(rule models.ApprovalRule) {
	e.rules = append(e.rules, rule)
	e.sortRules()

	e.logger.Info("Added rule", "rule", rule.Name, "action", rule.Action, "priority", rule.Priority)
}

// EvaluateRules runs every rule against the context and returns the
// action tags of the matching ones, in rule priority order. Duplicate
// tags are preserved; the planner is idempotent to them.
func (e *Engine) EvaluateRules(context map[string]any) []models.RuleAction {
	actions := make([]models.RuleAction, 0, len(e.rules))

	for i := range e.rules {
		rule := &e.rules[i]

		if !rule.Action.Valid() {
			e.logger.Warn("Skipping rule with unknown action", "rule", rule.Name, "action", rule.Action)

			continue
		}

		if !rule.Condition.Valid() {
			e.logger.Warn("Skipping rule with unknown condition", "rule", rule.Name, "condition", rule.Condition)

			continue
		}

		if rule.Matches(context) {
			actions = append(actions, rule.Action)
			e.logger.Debug("Rule matched", "rule", rule.Name, "action", rule.Action)
		}
	}

	return actions
}

// Steps plans the workflow step sequence for the given entity context. A
// nil context plans the bare template.
func (e *Engine) Steps(context map[string]any) []models.StepName {
	var actions []models.RuleAction
	if context != nil {
		actions = e.EvaluateRules(context)
	}

	return Plan(e.template.BaseSteps, actions)
}

// sortRules orders ascending by priority, stable so insertion order
// breaks ties.
func (e *Engine) sortRules() {
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority < e.rules[j].Priority
	})
}
