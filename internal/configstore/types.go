// Package configstore loads agent definitions and the global rule matrix
// from disk and serves them as immutable snapshots.
package configstore

import "time"

// Known capability names. A definition referencing anything else is
// rejected at load time.
var knownCapabilities = map[string]bool{
	"mail":      true,
	"calendar":  true,
	"location":  true,
	"sheets":    true,
	"analytics": true,
	"billing":   true,
	"log":       true,
}

// AgentConfig is one agent definition, loaded from a single JSON file.
// Immutable once loaded; a reload replaces the whole snapshot.
type AgentConfig struct {
	ID              string                    `json:"id"`
	Name            string                    `json:"name,omitempty"`
	PlatformAgentID string                    `json:"platformAgentId,omitempty"`
	Capabilities    []string                  `json:"capabilities"`
	Rules           map[string]string         `json:"rules,omitempty"`
	Settings        map[string]map[string]any `json:"settings,omitempty"`
	PanelUser       string                    `json:"panelUser,omitempty"`
	PanelPassHash   string                    `json:"panelPassHash,omitempty"`
}

// HasCapability reports whether the agent declared the given capability.
func (a *AgentConfig) HasCapability(name string) bool {
	for _, c := range a.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// Rule is one entry in the global matrix. Rules are evaluated in declared
// order; the first rule whose trigger and condition match wins.
type Rule struct {
	Name      string `json:"name"`
	Trigger   string `json:"trigger"`
	Condition string `json:"condition,omitempty"`
	Action    string `json:"action"`
}

// ActionStep is one step of an action template. Steps with no DependsOn
// entries at the same depth may run concurrently.
type ActionStep struct {
	Name       string         `json:"name"`
	Capability string         `json:"capability"`
	Params     map[string]any `json:"params,omitempty"`
	DependsOn  []string       `json:"dependsOn,omitempty"`
}

// ActionTemplate is a named, ordered list of steps.
type ActionTemplate struct {
	Steps []ActionStep `json:"steps"`
}

// RuleMatrix is the company-wide rule set plus the action templates the
// rules (and agent overrides) reference.
type RuleMatrix struct {
	Rules     []Rule                    `json:"rules"`
	Templates map[string]ActionTemplate `json:"templates"`
}

// Template returns the named action template.
func (m *RuleMatrix) Template(name string) (ActionTemplate, bool) {
	t, ok := m.Templates[name]
	return t, ok
}

// Snapshot is one complete, self-consistent view of all agent definitions
// and the rule matrix. Snapshots are never mutated after creation.
type Snapshot struct {
	Agents   map[string]*AgentConfig
	Matrix   *RuleMatrix
	Version  uint64
	LoadedAt time.Time
}

// Agent looks up an agent by id.
func (s *Snapshot) Agent(id string) (*AgentConfig, bool) {
	a, ok := s.Agents[id]
	return a, ok
}

// AgentByPlatformID looks up an agent by the voice platform's identifier.
func (s *Snapshot) AgentByPlatformID(platformID string) (*AgentConfig, bool) {
	for _, a := range s.Agents {
		if a.PlatformAgentID == platformID {
			return a, true
		}
	}
	return nil, false
}

// AgentByPanelUser looks up an agent by its panel login name.
func (s *Snapshot) AgentByPanelUser(user string) (*AgentConfig, bool) {
	for _, a := range s.Agents {
		if a.PanelUser != "" && a.PanelUser == user {
			return a, true
		}
	}
	return nil, false
}
