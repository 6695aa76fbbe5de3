package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowRun_RecordOrder(t *testing.T) {
	ev := ConversationEvent{ID: "evt-1", AgentID: "a1", Type: "missed_call", ReceivedAt: time.Now()}
	run := NewWorkflowRun("run-1", ev)

	run.Record("mail", 1, ActionRunning, nil)
	run.Record("mail", 1, ActionRetrying, errors.New("timeout"))
	run.Record("mail", 2, ActionSucceeded, nil)

	attempts := run.Attempts()
	require.Len(t, attempts, 3)
	assert.Equal(t, ActionRunning, attempts[0].Status)
	assert.Equal(t, ActionRetrying, attempts[1].Status)
	assert.Equal(t, "timeout", attempts[1].Error)
	assert.Equal(t, ActionSucceeded, attempts[2].Status)
	assert.Equal(t, 2, attempts[2].Attempt)
}

func TestWorkflowRun_LastStatusOf(t *testing.T) {
	run := NewWorkflowRun("run-1", ConversationEvent{ID: "evt-1"})

	_, ok := run.LastStatusOf("mail")
	assert.False(t, ok)

	run.Record("mail", 1, ActionRunning, nil)
	run.Record("sheets", 1, ActionRunning, nil)
	run.Record("mail", 1, ActionFailed, errors.New("boom"))

	st, ok := run.LastStatusOf("mail")
	require.True(t, ok)
	assert.Equal(t, ActionFailed, st)
}

func TestWorkflowRun_Outcomes(t *testing.T) {
	run := NewWorkflowRun("run-1", ConversationEvent{ID: "evt-1"})

	run.SetOutcome("calendar", Outcome{Data: map[string]any{"available": true}})

	out, ok := run.OutcomeOf("calendar")
	require.True(t, ok)
	assert.Equal(t, true, out.Data["available"])

	all := run.Outcomes()
	assert.Len(t, all, 1)

	// Mutating the copy must not affect the run.
	delete(all, "calendar")
	_, ok = run.OutcomeOf("calendar")
	assert.True(t, ok)
}

func TestWorkflowRun_Finish(t *testing.T) {
	run := NewWorkflowRun("run-1", ConversationEvent{ID: "evt-1"})
	assert.Equal(t, RunRunning, run.Status)
	assert.True(t, run.FinishedAt.IsZero())

	run.Finish(RunPartial)
	assert.Equal(t, RunPartial, run.Status)
	assert.False(t, run.FinishedAt.IsZero())
}

func TestActionStatus_Terminal(t *testing.T) {
	assert.True(t, ActionSucceeded.Terminal())
	assert.True(t, ActionFailed.Terminal())
	assert.True(t, ActionSkipped.Terminal())
	assert.False(t, ActionPending.Terminal())
	assert.False(t, ActionRunning.Terminal())
	assert.False(t, ActionRetrying.Terminal())
}
