package nlu

import (
	"context"
	"strings"
)

// StubEngine is a deterministic engine used in development when no API key
// is configured. It walks the booking flow one state per turn without any
// real understanding.
type StubEngine struct{}

// NewStubEngine returns the stub implementation.
func NewStubEngine() *StubEngine {
	return &StubEngine{}
}

// Interpret advances the state machine one step and echoes intent.
func (s *StubEngine) Interpret(_ context.Context, req Request) (*Suggestion, error) {
	switch req.State {
	case "", "greeting":
		return &Suggestion{
			Reply:            "Hi! What kind of appointment are you looking for?",
			NextState:        "collecting_info",
			DetectedIntent:   "book_appointment",
			SuggestedOptions: []string{"Consultation", "Follow-up"},
		}, nil
	case "collecting_info":
		extracted := map[string]any{"service_type": strings.ToLower(strings.TrimSpace(req.Message))}
		return &Suggestion{
			Reply:          "Got it. Which professional would you like?",
			NextState:      "selecting_professional",
			DetectedIntent: "book_appointment",
			Extracted:      extracted,
		}, nil
	case "selecting_professional":
		return &Suggestion{
			Reply:     "When would you like to come in?",
			NextState: "confirming_details",
		}, nil
	default:
		return &Suggestion{
			Reply:           "You're all set!",
			NextState:       "booking_complete",
			BookingComplete: true,
		}, nil
	}
}
