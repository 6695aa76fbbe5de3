package gateway

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voicebridge/voicebridge/internal/domain"
)

var (
	ErrBadPayload     = errors.New("malformed event payload")
	ErrMissingAgentID = errors.New("event payload carries no agent id")
)

// NormalizeEvent parses a raw webhook body into a ConversationEvent.
// Platform payloads vary by event version: the interesting fields may sit
// at the top level or nested under "data", the agent id may be flat or an
// object, and the transcript may be a turn list or plain text.
func NormalizeEvent(body []byte, receivedAt time.Time) (*domain.ConversationEvent, error) {
	var outer map[string]any
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, ErrBadPayload
	}

	root := outer
	if nested, ok := outer["data"].(map[string]any); ok {
		root = nested
	}

	agentID := stringField(root, "agent_id")
	if agentID == "" {
		if agent, ok := root["agent"].(map[string]any); ok {
			agentID = stringField(agent, "id")
		}
	}
	if agentID == "" {
		agentID = stringField(outer, "agent_id")
	}
	if agentID == "" {
		return nil, ErrMissingAgentID
	}

	eventType := stringField(root, "type")
	if eventType == "" {
		eventType = stringField(root, "event_type")
	}
	if eventType == "" {
		eventType = stringField(outer, "type")
	}

	id := stringField(root, "conversation_id")
	if id == "" {
		id = stringField(root, "event_id")
	}
	if id == "" {
		id = uuid.New().String()
	}

	caller, called := callerNumbers(root)

	return &domain.ConversationEvent{
		ID:         id,
		AgentID:    agentID,
		Type:       eventType,
		Transcript: transcriptText(root),
		Caller:     caller,
		Called:     called,
		Payload:    root,
		ReceivedAt: receivedAt,
		Raw:        json.RawMessage(body),
	}, nil
}

// transcriptText flattens a transcript into the user-side text. Turn lists
// keep only entries with role "user"; a plain string passes through.
func transcriptText(root map[string]any) string {
	raw, ok := root["transcript"]
	if !ok {
		raw = root["transcription"]
	}

	switch t := raw.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		var parts []string
		for _, entry := range t {
			turn, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if stringField(turn, "role") != "user" {
				continue
			}
			if msg := strings.TrimSpace(stringField(turn, "message")); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// callerNumbers pulls the caller and called numbers from the conversation
// initiation block's dynamic variables.
func callerNumbers(root map[string]any) (caller, called string) {
	clientData, ok := root["conversation_initiation_client_data"].(map[string]any)
	if !ok {
		return "", ""
	}
	dyn, ok := clientData["dynamic_variables"].(map[string]any)
	if !ok {
		return "", ""
	}
	caller = strings.TrimSpace(stringField(dyn, "system__caller_id"))
	called = strings.TrimSpace(stringField(dyn, "system__called_number"))
	return caller, called
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
