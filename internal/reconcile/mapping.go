package reconcile

import (
	"strings"

	"github.com/bookline-ai/bookline/internal/conversation"
)

// External order statuses the scheduling service reports. Anything outside
// this set maps to the error state rather than being rejected.
const (
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Outcome is the conversation-side effect of one external status change.
type Outcome struct {
	NextState        conversation.State
	Message          string
	SuggestedOptions []string
}

// MapStatus translates an external order status into a state transition and
// the ledger entry announcing it. The function is total: unknown statuses
// produce the error outcome instead of failing.
func MapStatus(status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusConfirmed:
		return Outcome{
			NextState: conversation.StateBookingComplete,
			Message:   "Great news! Your appointment has been confirmed by the professional. You'll receive the details shortly.",
			SuggestedOptions: []string{
				"View my booking",
				"Book another appointment",
			},
		}
	case StatusRejected:
		return Outcome{
			NextState: conversation.StateSelectingProfessional,
			Message:   "Unfortunately the professional couldn't take this appointment. Would you like to pick a different professional or another time?",
			SuggestedOptions: []string{
				"Choose another professional",
				"Pick a different time",
			},
		}
	case StatusCompleted:
		return Outcome{
			NextState: conversation.StateBookingComplete,
			Message:   "Your appointment has been completed. Thanks for booking with us!",
		}
	case StatusCancelled:
		return Outcome{
			NextState: conversation.StateGreeting,
			Message:   "Your appointment was cancelled. Let me know whenever you'd like to book again.",
		}
	default:
		return Outcome{
			NextState: conversation.StateError,
			Message:   "Something unexpected happened with your booking. Please contact support or start a new booking.",
		}
	}
}
