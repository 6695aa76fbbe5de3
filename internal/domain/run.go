package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

// ActionStatus is the state of one action within a workflow run.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionRunning   ActionStatus = "running"
	ActionRetrying  ActionStatus = "retrying"
	ActionSucceeded ActionStatus = "succeeded"
	ActionFailed    ActionStatus = "failed"
	// ActionSkipped marks an action whose dependency failed or whose run
	// was cancelled before it could be scheduled.
	ActionSkipped ActionStatus = "skipped"
)

// Terminal reports whether the status is a terminal action state.
func (s ActionStatus) Terminal() bool {
	return s == ActionSucceeded || s == ActionFailed || s == ActionSkipped
}

// RunStatus is the terminal state of a workflow run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	// RunCompleted means every action succeeded.
	RunCompleted RunStatus = "completed"
	// RunPartial means some independent actions failed after exhausting
	// retries while others succeeded.
	RunPartial RunStatus = "partial"
	// RunAborted means a required dependency failed, so dependents never
	// executed, or resolution failed before any adapter was invoked.
	RunAborted RunStatus = "aborted"
	// RunCancelled means the run was superseded (e.g. duplicate webhook
	// delivery) before all actions were scheduled.
	RunCancelled RunStatus = "cancelled"
)

// Outcome is the result payload returned by a service adapter.
type Outcome struct {
	Data map[string]any `json:"data,omitempty"`
}

// ActionAttempt is one entry in a run's ordered attempt log.
type ActionAttempt struct {
	Action    string       `json:"action"`
	Attempt   int          `json:"attempt"`
	Status    ActionStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// WorkflowRun is one execution of the action pipeline for a single event.
// Attempt log appends are synchronized because independent actions may
// record concurrently.
type WorkflowRun struct {
	ID         string    `json:"id"`
	EventID    string    `json:"eventId"`
	AgentID    string    `json:"agentId"`
	EventType  string    `json:"eventType"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`

	mu        sync.Mutex
	attempts  []ActionAttempt
	outcomes  map[string]Outcome
	cancelled atomic.Bool
}

// NewWorkflowRun creates a run in the running state.
func NewWorkflowRun(id string, ev ConversationEvent) *WorkflowRun {
	return &WorkflowRun{
		ID:        id,
		EventID:   ev.ID,
		AgentID:   ev.AgentID,
		EventType: ev.Type,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
		outcomes:  make(map[string]Outcome),
	}
}

// Record appends an attempt entry to the run log.
func (r *WorkflowRun) Record(action string, attempt int, status ActionStatus, err error) {
	entry := ActionAttempt{
		Action:    action,
		Attempt:   attempt,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.mu.Lock()
	r.attempts = append(r.attempts, entry)
	r.mu.Unlock()
}

// SetOutcome stores the result of a succeeded action so dependents can
// observe it.
func (r *WorkflowRun) SetOutcome(action string, out Outcome) {
	r.mu.Lock()
	r.outcomes[action] = out
	r.mu.Unlock()
}

// OutcomeOf returns the stored outcome for an action.
func (r *WorkflowRun) OutcomeOf(action string) (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.outcomes[action]
	return out, ok
}

// Outcomes returns a copy of all recorded outcomes keyed by action name.
func (r *WorkflowRun) Outcomes() map[string]Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[string]Outcome, len(r.outcomes))
	for k, v := range r.outcomes {
		cp[k] = v
	}
	return cp
}

// Attempts returns a copy of the ordered attempt log.
func (r *WorkflowRun) Attempts() []ActionAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]ActionAttempt, len(r.attempts))
	copy(cp, r.attempts)
	return cp
}

// LastStatusOf returns the most recent attempt status recorded for an action.
func (r *WorkflowRun) LastStatusOf(action string) (ActionStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.attempts) - 1; i >= 0; i-- {
		if r.attempts[i].Action == action {
			return r.attempts[i].Status, true
		}
	}
	return "", false
}

// Cancel flags the run as superseded. The executor stops scheduling new
// actions; attempts already in flight complete and record their outcome.
func (r *WorkflowRun) Cancel() {
	r.cancelled.Store(true)
}

// Cancelled reports whether the run was superseded.
func (r *WorkflowRun) Cancelled() bool {
	return r.cancelled.Load()
}

// Finish marks the run terminal with the given status.
func (r *WorkflowRun) Finish(status RunStatus) {
	r.Status = status
	r.FinishedAt = time.Now().UTC()
}
