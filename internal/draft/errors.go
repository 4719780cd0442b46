package draft

import "errors"

var (
	// ErrNotFound is returned when no draft matches the lookup.
	ErrNotFound = errors.New("draft not found")

	// ErrIncomplete is returned by Submit when required fields are missing.
	// The draft stays in draft status.
	ErrIncomplete = errors.New("draft missing required fields")

	// ErrTerminal is returned when mutating a submitted or cancelled draft.
	ErrTerminal = errors.New("draft already terminal")

	// ErrSchedulingUnavailable is returned when the external scheduling
	// service call cannot complete; the draft stays submittable for retry.
	ErrSchedulingUnavailable = errors.New("scheduling service unavailable")
)
