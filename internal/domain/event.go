// Package domain defines the core types shared across the dispatch pipeline.
package domain

import (
	"encoding/json"
	"time"
)

// ConversationEvent is a normalized inbound event from the voice platform.
// It is immutable once received; the gateway populates every field before
// handing it to the dispatcher.
type ConversationEvent struct {
	// ID uniquely identifies one webhook delivery. Redeliveries of the
	// same conversation carry the same ID and are treated as duplicates.
	ID string `json:"id"`

	// AgentID is the platform-side agent identifier from the payload.
	AgentID string `json:"agentId"`

	// Type classifies the event (e.g. "post_call", "missed_call",
	// "address_request").
	Type string `json:"type"`

	// Transcript is the concatenated user-side text of the conversation.
	Transcript string `json:"transcript,omitempty"`

	// Caller and Called are the phone numbers involved, when present.
	Caller string `json:"caller,omitempty"`
	Called string `json:"called,omitempty"`

	// Payload carries the remaining free-form key/value data of the event.
	Payload map[string]any `json:"payload,omitempty"`

	// ReceivedAt is the gateway arrival timestamp.
	ReceivedAt time.Time `json:"receivedAt"`

	// Raw preserves the original webhook body for archival.
	Raw json.RawMessage `json:"raw,omitempty"`
}
