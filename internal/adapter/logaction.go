package adapter

import (
	"context"

	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/logging"
)

// LogAdapter records the event in the process log. It backs the "log"
// capability and is always registered.
type LogAdapter struct {
	log *logging.Logger
}

// NewLogAdapter creates the log adapter.
func NewLogAdapter(log *logging.Logger) *LogAdapter {
	return &LogAdapter{log: log.Sub("action.log")}
}

// Name implements Adapter.
func (a *LogAdapter) Name() string { return "log" }

// Perform implements Adapter. It never fails.
func (a *LogAdapter) Perform(_ context.Context, inv Invocation) (domain.Outcome, error) {
	a.log.Info().
		Str("event", inv.Event.ID).
		Str("agent", inv.Event.AgentID).
		Str("type", inv.Event.Type).
		Str("caller", inv.Event.Caller).
		Msg("event logged")
	return domain.Outcome{Data: map[string]any{"logged": true}}, nil
}
