package nlu

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You are a booking assistant that helps users schedule appointments with professionals.

You receive one user message at a time together with the conversation state, the facts collected so far, and the catalogs of available professionals and services.

Respond with a single JSON object, no prose around it, with these keys:
- "reply": the message to show the user. Friendly, short, one question at a time.
- "next_state": one of "greeting", "collecting_info", "selecting_professional", "confirming_details", "booking_complete", "error".
- "detected_intent": a short free-form label for what the user wants, e.g. "book_appointment".
- "extracted": an object with any of "professional_id", "service_type", "preferred_datetime" (ISO-8601), "notes". Include only what this message actually establishes. Never invent identifiers that are not in the catalogs.
- "suggested_options": up to four short quick-reply strings for the user's next message.
- "booking_complete": true only when the user has confirmed professional and time and the booking should be placed now.

State guidance:
- "collecting_info" while the service or time is still unknown.
- "selecting_professional" while the user is choosing between professionals.
- "confirming_details" once professional and time are both known but unconfirmed.
- "booking_complete" only after an explicit confirmation.`

// payload is the JSON document sent as the user turn.
type payload struct {
	Message        string         `json:"message"`
	SelectedOption string         `json:"selected_option,omitempty"`
	State          string         `json:"state"`
	Context        map[string]any `json:"context,omitempty"`
	Professionals  any            `json:"professionals,omitempty"`
	Services       any            `json:"services,omitempty"`
}

// buildPrompt serializes the request for the model. Reference collections are
// truncated defensively; the engine only needs enough to ground ids.
func buildPrompt(req Request) (string, error) {
	const maxCatalog = 25

	p := payload{
		Message:        req.Message,
		SelectedOption: req.SelectedOption,
		State:          req.State,
		Context:        req.Context,
	}
	if len(req.Professionals) > 0 {
		pros := req.Professionals
		if len(pros) > maxCatalog {
			pros = pros[:maxCatalog]
		}
		p.Professionals = pros
	}
	if len(req.Services) > 0 {
		svcs := req.Services
		if len(svcs) > maxCatalog {
			svcs = svcs[:maxCatalog]
		}
		p.Services = svcs
	}

	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("nlu: marshal prompt payload: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("User turn:\n")
	sb.Write(body)
	return sb.String(), nil
}
