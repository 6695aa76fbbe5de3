package configstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Knetic/govaluate"

	"github.com/voicebridge/voicebridge/internal/logging"
)

// Store serves agent definitions and the rule matrix. Readers always see
// a complete snapshot; Reload swaps the snapshot atomically so in-flight
// work keeps the generation it started with.
type Store struct {
	agentsDir  string
	matrixPath string
	log        *logging.Logger

	snap    atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// New creates a Store for the given agents directory and matrix file.
// Call Load before serving lookups.
func New(agentsDir, matrixPath string, log *logging.Logger) *Store {
	return &Store{
		agentsDir:  agentsDir,
		matrixPath: matrixPath,
		log:        log.Sub("configstore"),
	}
}

// Load reads all definitions from disk and installs the first snapshot.
func (s *Store) Load() error {
	return s.Reload()
}

// Reload re-reads every definition and swaps the snapshot. On any parse
// or validation error the current snapshot is kept unchanged.
func (s *Store) Reload() error {
	matrix, err := loadMatrix(s.matrixPath)
	if err != nil {
		return err
	}

	agents, err := loadAgents(s.agentsDir, matrix)
	if err != nil {
		return err
	}

	snap := &Snapshot{
		Agents:   agents,
		Matrix:   matrix,
		Version:  s.version.Add(1),
		LoadedAt: time.Now(),
	}
	s.snap.Store(snap)

	s.log.Info().
		Int("agents", len(agents)).
		Int("rules", len(matrix.Rules)).
		Uint64("version", snap.Version).
		Msg("config snapshot loaded")
	return nil
}

// Snapshot returns the current snapshot. Nil before the first Load.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// GetAgent looks up an agent in the current snapshot.
func (s *Store) GetAgent(id string) (*AgentConfig, error) {
	snap := s.snap.Load()
	if snap == nil {
		return nil, ErrNotFound
	}
	a, ok := snap.Agent(id)
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func loadMatrix(path string) (*RuleMatrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InvalidConfigError{Source: filepath.Base(path), Message: "cannot read matrix file", Err: err}
	}

	var matrix RuleMatrix
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&matrix); err != nil {
		return nil, &InvalidConfigError{Source: filepath.Base(path), Message: "malformed matrix", Err: err}
	}

	if matrix.Templates == nil {
		matrix.Templates = map[string]ActionTemplate{}
	}

	seen := map[string]bool{}
	for i, rule := range matrix.Rules {
		src := filepath.Base(path)
		if rule.Name == "" {
			return nil, &InvalidConfigError{Source: src, Message: fmt.Sprintf("rule %d has no name", i)}
		}
		if seen[rule.Name] {
			return nil, &InvalidConfigError{Source: src, Message: fmt.Sprintf("duplicate rule name %q", rule.Name)}
		}
		seen[rule.Name] = true
		if rule.Trigger == "" {
			return nil, &InvalidConfigError{Source: src, Message: fmt.Sprintf("rule %q has no trigger", rule.Name)}
		}
		if _, ok := matrix.Templates[rule.Action]; !ok {
			return nil, &InvalidConfigError{Source: src, Message: fmt.Sprintf("rule %q references unknown template %q", rule.Name, rule.Action)}
		}
		if rule.Condition != "" {
			if _, err := govaluate.NewEvaluableExpression(rule.Condition); err != nil {
				return nil, &InvalidConfigError{Source: src, Message: fmt.Sprintf("rule %q has a bad condition", rule.Name), Err: err}
			}
		}
	}

	for name, tmpl := range matrix.Templates {
		if err := validateTemplate(name, tmpl); err != nil {
			return nil, &InvalidConfigError{Source: filepath.Base(path), Message: err.Error()}
		}
	}

	return &matrix, nil
}

func validateTemplate(name string, tmpl ActionTemplate) error {
	if len(tmpl.Steps) == 0 {
		return fmt.Errorf("template %q has no steps", name)
	}
	steps := map[string]bool{}
	for _, step := range tmpl.Steps {
		if step.Name == "" {
			return fmt.Errorf("template %q has an unnamed step", name)
		}
		if steps[step.Name] {
			return fmt.Errorf("template %q has duplicate step %q", name, step.Name)
		}
		if !knownCapabilities[step.Capability] {
			return fmt.Errorf("template %q step %q references unknown capability %q", name, step.Name, step.Capability)
		}
		steps[step.Name] = true
	}
	// Dependencies must point at earlier steps so templates cannot cycle.
	declared := map[string]bool{}
	for _, step := range tmpl.Steps {
		for _, dep := range step.DependsOn {
			if !declared[dep] {
				return fmt.Errorf("template %q step %q depends on %q which is not an earlier step", name, step.Name, dep)
			}
		}
		declared[step.Name] = true
	}
	return nil
}

func loadAgents(dir string, matrix *RuleMatrix) (map[string]*AgentConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*AgentConfig{}, nil
		}
		return nil, &InvalidConfigError{Source: dir, Message: "cannot read agents directory", Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		// Files prefixed with "_" are scratch copies, not agents.
		if strings.HasPrefix(e.Name(), "_") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	agents := make(map[string]*AgentConfig, len(names))
	for _, name := range names {
		agent, err := loadAgent(filepath.Join(dir, name), matrix)
		if err != nil {
			return nil, err
		}
		if _, dup := agents[agent.ID]; dup {
			return nil, &InvalidConfigError{Source: name, Message: fmt.Sprintf("duplicate agent id %q", agent.ID)}
		}
		agents[agent.ID] = agent
	}
	return agents, nil
}

func loadAgent(path string, matrix *RuleMatrix) (*AgentConfig, error) {
	src := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InvalidConfigError{Source: src, Message: "cannot read agent file", Err: err}
	}

	var agent AgentConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&agent); err != nil {
		return nil, &InvalidConfigError{Source: src, Message: "malformed agent definition", Err: err}
	}

	if agent.ID == "" {
		return nil, &InvalidConfigError{Source: src, Message: "missing id"}
	}
	for _, cap := range agent.Capabilities {
		if !knownCapabilities[cap] {
			return nil, &InvalidConfigError{Source: src, Message: fmt.Sprintf("agent %q declares unknown capability %q", agent.ID, cap)}
		}
	}
	for trigger, tmpl := range agent.Rules {
		if trigger == "" {
			return nil, &InvalidConfigError{Source: src, Message: fmt.Sprintf("agent %q has an empty trigger", agent.ID)}
		}
		if _, ok := matrix.Templates[tmpl]; !ok {
			return nil, &InvalidConfigError{Source: src, Message: fmt.Sprintf("agent %q rule %q references unknown template %q", agent.ID, trigger, tmpl)}
		}
	}
	for cap := range agent.Settings {
		if !knownCapabilities[cap] {
			return nil, &InvalidConfigError{Source: src, Message: fmt.Sprintf("agent %q has settings for unknown capability %q", agent.ID, cap)}
		}
	}

	return &agent, nil
}
