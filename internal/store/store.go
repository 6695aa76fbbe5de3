package store

import (
	"context"
	"errors"
	"time"

	"github.com/voicebridge/voicebridge/internal/adapter"
	"github.com/voicebridge/voicebridge/internal/domain"
)

// ErrNotFound indicates a missing run.
var ErrNotFound = errors.New("run not found")

// RunRecord is an archived workflow run.
type RunRecord struct {
	ID         string                 `json:"id"`
	EventID    string                 `json:"eventId"`
	AgentID    string                 `json:"agentId"`
	EventType  string                 `json:"eventType"`
	Status     domain.RunStatus       `json:"status"`
	Error      string                 `json:"error,omitempty"`
	Attempts   []domain.ActionAttempt `json:"attempts"`
	Outcomes   map[string]domain.Outcome `json:"outcomes"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt,omitempty"`
}

// UsageSummary aggregates an agent's consumption over a period.
type UsageSummary struct {
	AgentID string  `json:"agentId"`
	Calls   int     `json:"calls"`
	Minutes float64 `json:"minutes"`
	Credits float64 `json:"credits"`
}

// Store is the persistence surface used by the dispatcher, the panel,
// and the retention sweep. Backed by SQLite or by process memory.
type Store interface {
	adapter.UsageRecorder
	adapter.InvoiceRecorder

	// SaveRun archives a run. Saving the same run id again replaces the
	// archived record.
	SaveRun(ctx context.Context, run *domain.WorkflowRun) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context, agentID string, limit int) ([]RunRecord, error)

	// MarkEvent records a webhook delivery and reports whether this is
	// the first time the event id was seen.
	MarkEvent(ctx context.Context, eventID string, receivedAt time.Time) (bool, error)

	// PruneBefore deletes archived runs, ledger entries, usage, and
	// invoice lines older than cutoff. Returns rows removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	UsageSummary(ctx context.Context, agentID string, from, to time.Time) (UsageSummary, error)
	ListInvoiceLines(ctx context.Context, agentID string, from, to time.Time) ([]adapter.InvoiceLine, error)

	Close() error
}

// snapshotRun flattens a live run into its archive form.
func snapshotRun(run *domain.WorkflowRun) RunRecord {
	return RunRecord{
		ID:         run.ID,
		EventID:    run.EventID,
		AgentID:    run.AgentID,
		EventType:  run.EventType,
		Status:     run.Status,
		Error:      run.Error,
		Attempts:   run.Attempts(),
		Outcomes:   run.Outcomes(),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}
