// Package realtime fans conversation events out to subscribed clients.
// Delivery is at-most-once to currently connected listeners; there is no
// replay log, a reconnecting client re-fetches history over HTTP.
package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Event types on the per-conversation topic.
const (
	EventTyping          = "typing"
	EventStateChanged    = "state_changed"
	EventMessageReceived = "message_received"
)

// MessagePayload is the message snapshot carried by message_received events.
type MessagePayload struct {
	ID               uuid.UUID      `json:"id"`
	Content          string         `json:"content"`
	IsFromUser       bool           `json:"is_from_user"`
	SentAt           time.Time      `json:"sent_at"`
	SuggestedOptions []string       `json:"suggested_options,omitempty"`
	Extracted        map[string]any `json:"extracted,omitempty"`
}

// Event is one realtime notification on a conversation topic.
type Event struct {
	Type           string          `json:"type"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	TypingActive   bool            `json:"typing_active,omitempty"`
	State          string          `json:"state,omitempty"`
	Message        *MessagePayload `json:"message,omitempty"`
}

// Publisher is the outbound boundary the orchestrator and the webhook
// handler emit through. Implementations are best-effort: a stalled or
// unavailable transport must never fail the caller's request.
type Publisher interface {
	PublishTyping(conversationID uuid.UUID, active bool)
	PublishStateChanged(conversationID uuid.UUID, state string)
	PublishMessage(conversationID uuid.UUID, msg MessagePayload)
}

// NopPublisher discards all events; used in tests and when realtime is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishTyping(uuid.UUID, bool)            {}
func (NopPublisher) PublishStateChanged(uuid.UUID, string)    {}
func (NopPublisher) PublishMessage(uuid.UUID, MessagePayload) {}
