package conversation

import "errors"

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrUnauthorized is returned when the caller does not own the conversation.
	ErrUnauthorized = errors.New("conversation not owned by caller")

	// ErrUpstreamFailure is returned when the NLU engine or the scheduling
	// service fails mid-turn. Side effects committed before the failure
	// point (the appended user message, applied context merges) stay.
	ErrUpstreamFailure = errors.New("upstream service failure")

	// ErrLockTimeout is returned when the per-conversation lock cannot be
	// acquired before the configured deadline.
	ErrLockTimeout = errors.New("conversation lock timeout")
)
