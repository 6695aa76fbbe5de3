package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/voicebridge/voicebridge/internal/adapter"
	"github.com/voicebridge/voicebridge/internal/domain"
)

// MemoryStore implements Store in process memory. Used for tests and for
// the "memory" storage backend.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     map[string]RunRecord
	seen     map[string]time.Time
	usage    []adapter.UsageRecord
	invoices []adapter.InvoiceLine
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]RunRecord),
		seen: make(map[string]time.Time),
	}
}

// SaveRun implements Store.
func (m *MemoryStore) SaveRun(_ context.Context, run *domain.WorkflowRun) error {
	rec := snapshotRun(run)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[rec.ID] = rec
	return nil
}

// GetRun implements Store.
func (m *MemoryStore) GetRun(_ context.Context, id string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[id]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListRuns implements Store.
func (m *MemoryStore) ListRuns(_ context.Context, agentID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recs []RunRecord
	for _, rec := range m.runs {
		if rec.AgentID == agentID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// MarkEvent implements Store.
func (m *MemoryStore) MarkEvent(_ context.Context, eventID string, receivedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.seen[eventID]; dup {
		return false, nil
	}
	m.seen[eventID] = receivedAt
	return true, nil
}

// PruneBefore implements Store.
func (m *MemoryStore) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for id, rec := range m.runs {
		if rec.StartedAt.Before(cutoff) {
			delete(m.runs, id)
			total++
		}
	}
	for id, at := range m.seen {
		if at.Before(cutoff) {
			delete(m.seen, id)
			total++
		}
	}
	kept := m.usage[:0]
	for _, rec := range m.usage {
		if rec.At.Before(cutoff) {
			total++
			continue
		}
		kept = append(kept, rec)
	}
	m.usage = kept
	keptInv := m.invoices[:0]
	for _, line := range m.invoices {
		if line.At.Before(cutoff) {
			total++
			continue
		}
		keptInv = append(keptInv, line)
	}
	m.invoices = keptInv
	return total, nil
}

// RecordUsage implements adapter.UsageRecorder.
func (m *MemoryStore) RecordUsage(_ context.Context, rec adapter.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, rec)
	return nil
}

// UsageSummary implements Store.
func (m *MemoryStore) UsageSummary(_ context.Context, agentID string, from, to time.Time) (UsageSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := UsageSummary{AgentID: agentID}
	for _, rec := range m.usage {
		if rec.AgentID != agentID || rec.At.Before(from) || !rec.At.Before(to) {
			continue
		}
		sum.Calls++
		sum.Minutes += float64(rec.DurationSec) / 60
		sum.Credits += rec.Credits
	}
	return sum, nil
}

// RecordInvoiceLine implements adapter.InvoiceRecorder.
func (m *MemoryStore) RecordInvoiceLine(_ context.Context, line adapter.InvoiceLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices = append(m.invoices, line)
	return nil
}

// ListInvoiceLines implements Store.
func (m *MemoryStore) ListInvoiceLines(_ context.Context, agentID string, from, to time.Time) ([]adapter.InvoiceLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lines []adapter.InvoiceLine
	for _, line := range m.invoices {
		if line.AgentID != agentID || line.At.Before(from) || !line.At.Before(to) {
			continue
		}
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].At.Before(lines[j].At) })
	return lines, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
