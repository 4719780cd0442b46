package conversation

import (
	"time"

	"github.com/google/uuid"
)

// State is the current node of the conversation state machine. Transitions
// are applied verbatim from the NLU suggestion or from the webhook status
// mapping; the state machine itself does not validate edges.
type State string

const (
	StateGreeting              State = "greeting"
	StateCollectingInfo        State = "collecting_info"
	StateSelectingProfessional State = "selecting_professional"
	StateConfirmingDetails     State = "confirming_details"
	StateBookingComplete       State = "booking_complete"
	StateError                 State = "error"
)

// IsValid reports whether s is one of the known states.
func (s State) IsValid() bool {
	switch s {
	case StateGreeting, StateCollectingInfo, StateSelectingProfessional,
		StateConfirmingDetails, StateBookingComplete, StateError:
		return true
	}
	return false
}

// Known context keys accumulated across turns. Anything else the NLU
// extracts is kept in the context map as-is.
const (
	ContextKeyProfessionalID    = "professional_id"
	ContextKeyServiceType       = "service_type"
	ContextKeyPreferredDateTime = "preferred_datetime"
	ContextKeyNotes             = "notes"
)

// Conversation is a stateful dialogue session between one user and the assistant.
type Conversation struct {
	ID             uuid.UUID      `json:"id"`
	UserID         string         `json:"user_id"`
	State          State          `json:"state"`
	DetectedIntent string         `json:"detected_intent,omitempty"`
	ContextData    map[string]any `json:"context_data"`
	IsActive       bool           `json:"is_active"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
}

// Message is a single immutable dialogue turn entry.
type Message struct {
	ID               uuid.UUID `json:"id"`
	ConversationID   uuid.UUID `json:"conversation_id"`
	Content          string    `json:"content"`
	IsFromUser       bool      `json:"is_from_user"`
	SuggestedOptions []string  `json:"suggested_options,omitempty"`
	SelectedOption   string    `json:"selected_option,omitempty"`
	SentAt           time.Time `json:"sent_at"`
}

// TurnResult is returned to the API layer after a processed user turn.
type TurnResult struct {
	ConversationID   uuid.UUID `json:"conversation_id"`
	MessageID        uuid.UUID `json:"message_id"`
	Reply            string    `json:"reply"`
	SuggestedOptions []string  `json:"suggested_options,omitempty"`
	State            State     `json:"state"`
	BookingCompleted bool      `json:"booking_completed"`
	FinalOrderID     string    `json:"final_order_id,omitempty"`
}
