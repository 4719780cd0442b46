package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bookline-ai/bookline/internal/directory"
	"github.com/bookline-ai/bookline/pkg/logging"
)

// ProfessionalDirectory resolves the assigned professional's contact details.
type ProfessionalDirectory interface {
	Professionals(ctx context.Context) ([]directory.Professional, error)
}

// BookingAlert carries everything the professional needs to know about a
// freshly submitted booking.
type BookingAlert struct {
	OrderID           string
	ProfessionalID    string
	ServiceType       string
	PreferredDateTime time.Time
	Notes             string
}

// Service alerts professionals about new bookings. Every call is best
// effort: the orchestrator logs a failure and moves on, a booking is never
// rolled back because an email bounced.
type Service struct {
	email     EmailSender
	directory ProfessionalDirectory
	logger    *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, dir ProfessionalDirectory, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, directory: dir, logger: logger}
}

// NotifyBookingSubmitted emails the assigned professional about a new order.
func (s *Service) NotifyBookingSubmitted(ctx context.Context, alert BookingAlert) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping booking alert", "order_id", alert.OrderID)
		return nil
	}

	pro, err := s.lookupProfessional(ctx, alert.ProfessionalID)
	if err != nil {
		return fmt.Errorf("notify: resolve professional: %w", err)
	}
	if pro.Email == "" {
		s.logger.Warn("notify: professional has no contact email, skipping",
			"professional_id", alert.ProfessionalID,
			"order_id", alert.OrderID,
		)
		return nil
	}

	msg := EmailMessage{
		To:      pro.Email,
		ToName:  pro.Name,
		Subject: "New booking request",
		Body:    buildAlertBody(pro, alert),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send booking alert: %w", err)
	}

	s.logger.Info("notify: booking alert sent",
		"professional_id", alert.ProfessionalID,
		"order_id", alert.OrderID,
	)
	return nil
}

func (s *Service) lookupProfessional(ctx context.Context, id string) (*directory.Professional, error) {
	if s.directory == nil {
		return nil, fmt.Errorf("directory not configured")
	}
	pros, err := s.directory.Professionals(ctx)
	if err != nil {
		return nil, err
	}
	for i := range pros {
		if pros[i].ID == id {
			return &pros[i], nil
		}
	}
	return nil, fmt.Errorf("professional %q not found", id)
}

func buildAlertBody(pro *directory.Professional, alert BookingAlert) string {
	body := fmt.Sprintf("Hi %s,\n\nYou have a new booking request (order %s).\n", pro.Name, alert.OrderID)
	if alert.ServiceType != "" {
		body += fmt.Sprintf("Service: %s\n", alert.ServiceType)
	}
	if !alert.PreferredDateTime.IsZero() {
		body += fmt.Sprintf("Requested time: %s\n", alert.PreferredDateTime.Format(time.RFC1123))
	}
	if alert.Notes != "" {
		body += fmt.Sprintf("Notes: %s\n", alert.Notes)
	}
	body += "\nPlease confirm or reject the request in your scheduling dashboard.\n"
	return body
}
