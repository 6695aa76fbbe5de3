// Package rules merges an agent definition with the global rule matrix
// into the effective configuration for one conversation event.
package rules

import (
	"fmt"
	"maps"

	"github.com/Knetic/govaluate"

	"github.com/voicebridge/voicebridge/internal/configstore"
	"github.com/voicebridge/voicebridge/internal/domain"
)

// ResolvedStep is one executable step with its parameters fully merged.
type ResolvedStep struct {
	Name       string
	Capability string
	Params     map[string]any
	DependsOn  []string
}

// EffectiveConfig is the read-only result of resolving one event against
// one agent and one matrix snapshot. It lives for a single run.
type EffectiveConfig struct {
	AgentID  string
	Trigger  string
	Template string
	Steps    []ResolvedStep
}

// NoOp reports whether resolution selected nothing to execute.
func (e *EffectiveConfig) NoOp() bool {
	return len(e.Steps) == 0
}

// ResolutionError indicates the merge cannot produce a valid effective
// configuration, typically a triggered action whose capability the agent
// never declared.
type ResolutionError struct {
	AgentID string
	Trigger string
	Message string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %q for agent %q: %s", e.Trigger, e.AgentID, e.Message)
}

// Resolve produces the effective configuration for one event. It is pure:
// identical inputs always yield an identical result. An unknown trigger
// resolves to a no-op.
func Resolve(agent *configstore.AgentConfig, matrix *configstore.RuleMatrix, eventType string, ev *domain.ConversationEvent) (*EffectiveConfig, error) {
	eff := &EffectiveConfig{AgentID: agent.ID, Trigger: eventType}

	templateName, ok := selectTemplate(agent, matrix, eventType, ev)
	if !ok {
		return eff, nil
	}

	tmpl, ok := matrix.Template(templateName)
	if !ok {
		// Load-time validation rules this out for stored definitions.
		return nil, &ResolutionError{AgentID: agent.ID, Trigger: eventType,
			Message: fmt.Sprintf("unknown template %q", templateName)}
	}

	eff.Template = templateName
	eff.Steps = make([]ResolvedStep, 0, len(tmpl.Steps))
	for _, step := range tmpl.Steps {
		// Logging needs no declaration; everything else does.
		if step.Capability != "log" && !agent.HasCapability(step.Capability) {
			return nil, &ResolutionError{AgentID: agent.ID, Trigger: eventType,
				Message: fmt.Sprintf("step %q requires undeclared capability %q", step.Name, step.Capability)}
		}
		eff.Steps = append(eff.Steps, ResolvedStep{
			Name:       step.Name,
			Capability: step.Capability,
			Params:     mergeParams(step.Params, agent.Settings[step.Capability]),
			DependsOn:  append([]string(nil), step.DependsOn...),
		})
	}
	return eff, nil
}

// selectTemplate picks the action template for the event. An agent rule
// for the trigger always wins; otherwise matrix rules are scanned in
// declared order and the first match wins.
func selectTemplate(agent *configstore.AgentConfig, matrix *configstore.RuleMatrix, eventType string, ev *domain.ConversationEvent) (string, bool) {
	if name, ok := agent.Rules[eventType]; ok {
		return name, true
	}
	for _, rule := range matrix.Rules {
		if rule.Trigger != eventType {
			continue
		}
		if rule.Condition != "" && !conditionHolds(rule.Condition, ev) {
			continue
		}
		return rule.Action, true
	}
	return "", false
}

// conditionHolds evaluates a matrix rule condition against the event
// payload. Evaluation errors, including references to absent fields,
// count as no match.
func conditionHolds(condition string, ev *domain.ConversationEvent) bool {
	expr, err := govaluate.NewEvaluableExpression(condition)
	if err != nil {
		return false
	}

	params := map[string]any{
		"type":   ev.Type,
		"agent":  ev.AgentID,
		"caller": ev.Caller,
		"called": ev.Called,
	}
	for k, v := range ev.Payload {
		params[k] = v
	}

	result, err := expr.Evaluate(params)
	if err != nil {
		return false
	}
	hold, ok := result.(bool)
	return ok && hold
}

// mergeParams overlays agent settings on template params. The agent
// value wins for any key both define.
func mergeParams(template, agent map[string]any) map[string]any {
	merged := make(map[string]any, len(template)+len(agent))
	maps.Copy(merged, template)
	maps.Copy(merged, agent)
	return merged
}
