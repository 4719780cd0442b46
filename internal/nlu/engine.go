// Package nlu is the boundary to the natural-language understanding engine.
// Given the turn's message plus conversation state, accumulated context and
// reference data, the engine proposes a reply, a next state and extracted
// booking fields. The engine's output is untrusted: the parser is tolerant
// and the draft layer re-coerces every extracted value.
package nlu

import (
	"context"
	"errors"

	"github.com/bookline-ai/bookline/internal/directory"
)

// ErrEngineFailure wraps transport or model failures. A failed interpretation
// fails the turn; it is never retried inline.
var ErrEngineFailure = errors.New("nlu: engine failure")

// Request is everything the engine sees for one turn.
type Request struct {
	ConversationID string
	Message        string
	SelectedOption string
	State          string
	Context        map[string]any
	Professionals  []directory.Professional
	Services       []directory.ServiceConfig
}

// Suggestion is the engine's structured proposal for the turn.
type Suggestion struct {
	Reply            string         `json:"reply"`
	NextState        string         `json:"next_state,omitempty"`
	DetectedIntent   string         `json:"detected_intent,omitempty"`
	Extracted        map[string]any `json:"extracted,omitempty"`
	SuggestedOptions []string       `json:"suggested_options,omitempty"`
	BookingComplete  bool           `json:"booking_complete,omitempty"`
}

// BookingOption is one quick-start suggestion shown before a conversation begins.
type BookingOption struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

// Engine interprets user turns.
type Engine interface {
	Interpret(ctx context.Context, req Request) (*Suggestion, error)
}
