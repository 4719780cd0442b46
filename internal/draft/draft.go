// Package draft owns the lifecycle of a booking intent collected during a
// conversation: merge-only field accumulation, submission to the external
// scheduling service, and cancellation.
package draft

import (
	"time"

	"github.com/google/uuid"
)

// Status is the draft lifecycle stage. After submission the external
// scheduling service owns the booking; the draft becomes read-only history.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further mutation is allowed.
func (s Status) Terminal() bool {
	return s == StatusSubmitted || s == StatusCancelled
}

// Draft is an in-progress booking intent tied to one conversation.
// All fields are optional until submission.
type Draft struct {
	ID                uuid.UUID  `json:"id"`
	ConversationID    uuid.UUID  `json:"conversation_id"`
	UserID            string     `json:"user_id"`
	ProfessionalID    string     `json:"professional_id,omitempty"`
	ServiceType       string     `json:"service_type,omitempty"`
	PreferredDateTime *time.Time `json:"preferred_datetime,omitempty"`
	ClientNotes       string     `json:"client_notes,omitempty"`
	Status            Status     `json:"status"`
	FinalOrderID      string     `json:"final_order_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// MissingRequired lists the required submission fields not yet populated.
func (d *Draft) MissingRequired() []string {
	var missing []string
	if d.ProfessionalID == "" {
		missing = append(missing, "professional_id")
	}
	if d.PreferredDateTime == nil || d.PreferredDateTime.IsZero() {
		missing = append(missing, "preferred_datetime")
	}
	return missing
}

// Fields is a partial update; empty members leave the stored value untouched.
type Fields struct {
	ProfessionalID    string
	ServiceType       string
	PreferredDateTime *time.Time
	ClientNotes       string
}

// Empty reports whether the update carries nothing to merge.
func (f Fields) Empty() bool {
	return f.ProfessionalID == "" && f.ServiceType == "" && f.PreferredDateTime == nil && f.ClientNotes == ""
}
