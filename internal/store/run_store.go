package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voicebridge/voicebridge/internal/adapter"
	"github.com/voicebridge/voicebridge/internal/domain"
)

// SQLiteStore implements Store backed by SQLite.
type SQLiteStore struct {
	db *DB
}

// NewSQLiteStore creates a store using the given database.
func NewSQLiteStore(db *DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// SaveRun implements Store.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.WorkflowRun) error {
	rec := snapshotRun(run)

	attempts, err := json.Marshal(rec.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}
	outcomes, err := json.Marshal(rec.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	finished := ""
	if !rec.FinishedAt.IsZero() {
		finished = rec.FinishedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO runs (id, event_id, agent_id, event_type, status, error, attempts, outcomes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			attempts = excluded.attempts,
			outcomes = excluded.outcomes,
			finished_at = excluded.finished_at`,
		rec.ID, rec.EventID, rec.AgentID, rec.EventType, string(rec.Status), rec.Error,
		string(attempts), string(outcomes),
		rec.StartedAt.UTC().Format(time.RFC3339Nano), finished,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun implements Store.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT id, event_id, agent_id, event_type, status, error, attempts, outcomes, started_at, finished_at
		FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return RunRecord{}, ErrNotFound
	}
	return rec, err
}

// ListRuns implements Store. Runs come back newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, agentID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, event_id, agent_id, event_type, status, error, attempts, outcomes, started_at, finished_at
		FROM runs WHERE agent_id = ? ORDER BY started_at DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs for %s: %w", agentID, err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var status, attempts, outcomes, started, finished string
	if err := row.Scan(&rec.ID, &rec.EventID, &rec.AgentID, &rec.EventType,
		&status, &rec.Error, &attempts, &outcomes, &started, &finished); err != nil {
		return RunRecord{}, err
	}

	rec.Status = domain.RunStatus(status)
	if err := json.Unmarshal([]byte(attempts), &rec.Attempts); err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal attempts for run %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(outcomes), &rec.Outcomes); err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal outcomes for run %s: %w", rec.ID, err)
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished != "" {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	}
	return rec, nil
}

// MarkEvent implements Store.
func (s *SQLiteStore) MarkEvent(ctx context.Context, eventID string, receivedAt time.Time) (bool, error) {
	res, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO events_seen (event_id, received_at) VALUES (?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		eventID, receivedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("mark event %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PruneBefore implements Store.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := cutoff.UTC().Format(time.RFC3339Nano)
	var total int64
	for _, stmt := range []string{
		"DELETE FROM runs WHERE started_at < ?",
		"DELETE FROM events_seen WHERE received_at < ?",
		"DELETE FROM usage WHERE at < ?",
		"DELETE FROM invoice_lines WHERE at < ?",
	} {
		res, err := s.db.sql.ExecContext(ctx, stmt, ts)
		if err != nil {
			return total, fmt.Errorf("prune: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	s.db.log.Info().Int64("rows", total).Str("cutoff", ts).Msg("retention sweep done")
	return total, nil
}

// RecordUsage implements adapter.UsageRecorder.
func (s *SQLiteStore) RecordUsage(ctx context.Context, rec adapter.UsageRecord) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO usage (agent_id, event_id, event_type, duration_sec, credits, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.AgentID, rec.EventID, rec.EventType, rec.DurationSec, rec.Credits,
		rec.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// UsageSummary implements Store.
func (s *SQLiteStore) UsageSummary(ctx context.Context, agentID string, from, to time.Time) (UsageSummary, error) {
	sum := UsageSummary{AgentID: agentID}
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(duration_sec), 0), COALESCE(SUM(credits), 0)
		FROM usage WHERE agent_id = ? AND at >= ? AND at < ?`,
		agentID, from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano),
	).Scan(&sum.Calls, &sum.Minutes, &sum.Credits)
	if err != nil {
		return UsageSummary{}, fmt.Errorf("usage summary for %s: %w", agentID, err)
	}
	sum.Minutes /= 60
	return sum, nil
}

// RecordInvoiceLine implements adapter.InvoiceRecorder.
func (s *SQLiteStore) RecordInvoiceLine(ctx context.Context, line adapter.InvoiceLine) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO invoice_lines (agent_id, event_id, credits, amount, currency, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		line.AgentID, line.EventID, line.Credits, line.Amount, line.Currency,
		line.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record invoice line: %w", err)
	}
	return nil
}

// ListInvoiceLines implements Store.
func (s *SQLiteStore) ListInvoiceLines(ctx context.Context, agentID string, from, to time.Time) ([]adapter.InvoiceLine, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT agent_id, event_id, credits, amount, currency, at
		FROM invoice_lines WHERE agent_id = ? AND at >= ? AND at < ?
		ORDER BY at`,
		agentID, from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("list invoice lines for %s: %w", agentID, err)
	}
	defer rows.Close()

	var lines []adapter.InvoiceLine
	for rows.Next() {
		var line adapter.InvoiceLine
		var at string
		if err := rows.Scan(&line.AgentID, &line.EventID, &line.Credits, &line.Amount, &line.Currency, &at); err != nil {
			return nil, err
		}
		line.At, _ = time.Parse(time.RFC3339Nano, at)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
