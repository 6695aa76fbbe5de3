// Package adapter defines the capability interface the workflow executor
// calls and the adapters backing each external service.
package adapter

import (
	"context"
	"sort"
	"sync"

	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/logging"
)

// Invocation is one adapter call: the resolved step parameters, the event
// that triggered the run, and the outcomes of completed dependency steps.
type Invocation struct {
	Step       string
	Capability string
	Params     map[string]any
	Event      *domain.ConversationEvent
	Results    map[string]domain.Outcome
}

// Param returns a string parameter, or fallback when absent or not a
// string.
func (inv *Invocation) Param(key, fallback string) string {
	if v, ok := inv.Params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Adapter performs one external capability. Perform returns a transient
// or terminal error on failure; the executor decides whether to retry.
type Adapter interface {
	Name() string
	Perform(ctx context.Context, inv Invocation) (domain.Outcome, error)
}

// Registry holds the adapters registered for this process, keyed by
// capability name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	log      *logging.Logger
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		log:      log.Sub("adapters"),
	}
}

// Register adds an adapter under its capability name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
	r.log.Info().Str("capability", a.Name()).Msg("adapter registered")
}

// Get returns the adapter for a capability.
func (r *Registry) Get(capability string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[capability]
	return a, ok
}

// List returns the registered capability names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered adapters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
