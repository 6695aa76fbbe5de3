package adapter

import (
	"context"
	"time"

	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/logging"
)

// UsageRecord is one call's consumption, extracted from the event.
type UsageRecord struct {
	AgentID     string
	EventID     string
	EventType   string
	DurationSec int
	Credits     float64
	At          time.Time
}

// UsageRecorder persists usage records. Implemented by the store.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec UsageRecord) error
}

// AnalyticsAdapter records per-call consumption for the agent panel.
type AnalyticsAdapter struct {
	recorder UsageRecorder
	log      *logging.Logger
}

// NewAnalyticsAdapter creates the analytics adapter.
func NewAnalyticsAdapter(recorder UsageRecorder, log *logging.Logger) *AnalyticsAdapter {
	return &AnalyticsAdapter{recorder: recorder, log: log.Sub("action.analytics")}
}

// Name implements Adapter.
func (a *AnalyticsAdapter) Name() string { return "analytics" }

// Perform implements Adapter.
func (a *AnalyticsAdapter) Perform(ctx context.Context, inv Invocation) (domain.Outcome, error) {
	ev := inv.Event
	rec := UsageRecord{
		AgentID:     ev.AgentID,
		EventID:     ev.ID,
		EventType:   ev.Type,
		DurationSec: intPayload(ev.Payload, "duration"),
		Credits:     floatPayload(ev.Payload, "credits", "cost"),
		At:          ev.ReceivedAt,
	}
	if err := a.recorder.RecordUsage(ctx, rec); err != nil {
		return domain.Outcome{}, Classify("analytics", err)
	}

	a.log.Debug().Str("event", ev.ID).Float64("credits", rec.Credits).Msg("usage recorded")
	return domain.Outcome{Data: map[string]any{
		"durationSec": rec.DurationSec,
		"credits":     rec.Credits,
	}}, nil
}

// intPayload reads a numeric payload field as an int. JSON numbers
// arrive as float64.
func intPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// floatPayload reads the first present numeric field among keys.
func floatPayload(payload map[string]any, keys ...string) float64 {
	for _, key := range keys {
		switch v := payload[key].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
	}
	return 0
}
