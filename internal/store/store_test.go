package store

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebridge/voicebridge/internal/adapter"
	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/logging"
)

// eachBackend runs the test against both store implementations.
func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("sqlite", func(t *testing.T) {
		db, err := Open(":memory:", logging.New(io.Discard, "silent"))
		require.NoError(t, err)
		s := NewSQLiteStore(db)
		defer s.Close()
		fn(t, s)
	})

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
}

func sampleRun(id string, started time.Time) *domain.WorkflowRun {
	run := domain.NewWorkflowRun(id, domain.ConversationEvent{
		ID:      "ev-" + id,
		AgentID: "A1",
		Type:    "missed_call",
	})
	run.StartedAt = started
	run.Record("email", 1, domain.ActionRunning, nil)
	run.SetOutcome("email", domain.Outcome{Data: map[string]any{"messageId": "m1"}})
	run.Record("email", 1, domain.ActionSucceeded, nil)
	run.Finish(domain.RunCompleted)
	return run
}

func TestSaveAndGetRun(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		run := sampleRun("run-1", time.Now().UTC())
		require.NoError(t, s.SaveRun(ctx, run))

		rec, err := s.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, "ev-run-1", rec.EventID)
		assert.Equal(t, domain.RunCompleted, rec.Status)
		require.Len(t, rec.Attempts, 2)
		assert.Equal(t, domain.ActionSucceeded, rec.Attempts[1].Status)
		assert.Equal(t, "m1", rec.Outcomes["email"].Data["messageId"])

		_, err = s.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSaveRunTwiceReplaces(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		run := domain.NewWorkflowRun("run-1", domain.ConversationEvent{ID: "ev-1", AgentID: "A1", Type: "post_call"})
		require.NoError(t, s.SaveRun(ctx, run))

		run.Record("append", 1, domain.ActionRunning, nil)
		run.Record("append", 1, domain.ActionSucceeded, nil)
		run.Finish(domain.RunCompleted)
		require.NoError(t, s.SaveRun(ctx, run))

		rec, err := s.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunCompleted, rec.Status)
		assert.Len(t, rec.Attempts, 2)
	})
}

func TestListRunsNewestFirst(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.SaveRun(ctx, sampleRun("run-old", base)))
		require.NoError(t, s.SaveRun(ctx, sampleRun("run-new", base.Add(time.Hour))))

		recs, err := s.ListRuns(ctx, "A1", 10)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "run-new", recs[0].ID)

		recs, err = s.ListRuns(ctx, "A1", 1)
		require.NoError(t, err)
		assert.Len(t, recs, 1)

		recs, err = s.ListRuns(ctx, "other", 10)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestMarkEventDeduplicates(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now().UTC()

		first, err := s.MarkEvent(ctx, "ev-1", now)
		require.NoError(t, err)
		assert.True(t, first)

		again, err := s.MarkEvent(ctx, "ev-1", now)
		require.NoError(t, err)
		assert.False(t, again)

		other, err := s.MarkEvent(ctx, "ev-2", now)
		require.NoError(t, err)
		assert.True(t, other)
	})
}

func TestPruneBefore(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		recent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, s.SaveRun(ctx, sampleRun("run-old", old)))
		require.NoError(t, s.SaveRun(ctx, sampleRun("run-new", recent)))
		_, err := s.MarkEvent(ctx, "ev-old", old)
		require.NoError(t, err)
		require.NoError(t, s.RecordUsage(ctx, adapter.UsageRecord{AgentID: "A1", EventID: "ev-old", At: old}))

		n, err := s.PruneBefore(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		_, err = s.GetRun(ctx, "run-old")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetRun(ctx, "run-new")
		assert.NoError(t, err)
	})
}

func TestUsageSummary(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, s.RecordUsage(ctx, adapter.UsageRecord{
			AgentID: "A1", EventID: "ev-1", EventType: "post_call",
			DurationSec: 90, Credits: 10, At: base,
		}))
		require.NoError(t, s.RecordUsage(ctx, adapter.UsageRecord{
			AgentID: "A1", EventID: "ev-2", EventType: "post_call",
			DurationSec: 30, Credits: 5, At: base.Add(time.Hour),
		}))
		require.NoError(t, s.RecordUsage(ctx, adapter.UsageRecord{
			AgentID: "A2", EventID: "ev-3", EventType: "post_call",
			DurationSec: 600, Credits: 99, At: base,
		}))

		sum, err := s.UsageSummary(ctx, "A1", base, base.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Calls)
		assert.InDelta(t, 2.0, sum.Minutes, 1e-9)
		assert.InDelta(t, 15.0, sum.Credits, 1e-9)

		// Out-of-window records are excluded.
		sum, err = s.UsageSummary(ctx, "A1", base.AddDate(0, 0, 1), base.AddDate(0, 0, 2))
		require.NoError(t, err)
		assert.Equal(t, 0, sum.Calls)
	})
}

func TestInvoiceLines(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, s.RecordInvoiceLine(ctx, adapter.InvoiceLine{
			AgentID: "A1", EventID: "ev-2", Credits: 5, Amount: 0.01, Currency: "USD", At: base.Add(time.Hour),
		}))
		require.NoError(t, s.RecordInvoiceLine(ctx, adapter.InvoiceLine{
			AgentID: "A1", EventID: "ev-1", Credits: 10, Amount: 0.02, Currency: "USD", At: base,
		}))

		lines, err := s.ListInvoiceLines(ctx, "A1", base, base.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, lines, 2)
		// Ordered by time.
		assert.Equal(t, "ev-1", lines[0].EventID)
		assert.Equal(t, "ev-2", lines[1].EventID)
	})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db, err := Open(":memory:", logging.New(io.Discard, "silent"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.migrate())
	require.NoError(t, db.migrate())
}
