package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bookline-ai/bookline/internal/scheduling"
	"github.com/bookline-ai/bookline/pkg/logging"
)

var draftTracer = otel.Tracer("bookline.internal.draft")

// Storage is the persistence surface the manager needs; *Store implements
// it, tests fake it.
type Storage interface {
	GetOrCreate(ctx context.Context, conversationID uuid.UUID, userID string) (*Draft, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Draft, error)
	OpenByConversation(ctx context.Context, conversationID uuid.UUID) (*Draft, error)
	LatestByConversation(ctx context.Context, conversationID uuid.UUID) (*Draft, error)
	ByOrderRef(ctx context.Context, orderRef string) (*Draft, error)
	Merge(ctx context.Context, id uuid.UUID, fields Fields) (*Draft, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID, orderID string) (*Draft, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (*Draft, error)
}

// Manager drives the draft lifecycle.
type Manager struct {
	store      Storage
	scheduling scheduling.OrderCreator
	logger     *logging.Logger
}

// NewManager constructs a draft manager.
func NewManager(store Storage, orders scheduling.OrderCreator, logger *logging.Logger) *Manager {
	if store == nil {
		panic("draft: storage required")
	}
	if orders == nil {
		panic("draft: order creator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{store: store, scheduling: orders, logger: logger}
}

// GetOrCreate returns the conversation's open draft, creating it on first use.
func (m *Manager) GetOrCreate(ctx context.Context, conversationID uuid.UUID, userID string) (*Draft, error) {
	return m.store.GetOrCreate(ctx, conversationID, userID)
}

// GetByID returns a draft by id.
func (m *Manager) GetByID(ctx context.Context, id uuid.UUID) (*Draft, error) {
	return m.store.GetByID(ctx, id)
}

// OpenByConversation returns the open draft for a conversation.
func (m *Manager) OpenByConversation(ctx context.Context, conversationID uuid.UUID) (*Draft, error) {
	return m.store.OpenByConversation(ctx, conversationID)
}

// LatestByConversation returns the most recent draft regardless of status.
func (m *Manager) LatestByConversation(ctx context.Context, conversationID uuid.UUID) (*Draft, error) {
	return m.store.LatestByConversation(ctx, conversationID)
}

// ByOrderRef locates a submitted draft by its external order reference.
func (m *Manager) ByOrderRef(ctx context.Context, orderRef string) (*Draft, error) {
	return m.store.ByOrderRef(ctx, orderRef)
}

// MergeExtracted coerces an untrusted NLU extraction map into typed fields
// and merges the parseable ones. Unparseable values are skipped with a warn
// log, never an error; fields absent from the map stay untouched.
func (m *Manager) MergeExtracted(ctx context.Context, draftID uuid.UUID, extracted map[string]any) (*Draft, error) {
	fields := Fields{}
	for key, raw := range extracted {
		switch key {
		case "professional_id":
			if v, ok := coerceString(raw); ok && v != "" {
				fields.ProfessionalID = v
			} else {
				m.logSkip(draftID, key, raw)
			}
		case "service_type":
			if v, ok := coerceString(raw); ok && v != "" {
				fields.ServiceType = v
			} else {
				m.logSkip(draftID, key, raw)
			}
		case "preferred_datetime":
			if t, ok := coerceTime(raw); ok {
				fields.PreferredDateTime = &t
			} else {
				m.logSkip(draftID, key, raw)
			}
		case "notes":
			if v, ok := coerceString(raw); ok && v != "" {
				fields.ClientNotes = v
			} else {
				m.logSkip(draftID, key, raw)
			}
		}
	}

	if fields.Empty() {
		return m.store.GetByID(ctx, draftID)
	}
	return m.store.Merge(ctx, draftID, fields)
}

func (m *Manager) logSkip(draftID uuid.UUID, key string, raw any) {
	m.logger.Warn("skipping uncoercible extracted value",
		"draft_id", draftID,
		"field", key,
		"value_type", fmt.Sprintf("%T", raw),
	)
}

// Merge applies a typed partial update directly.
func (m *Manager) Merge(ctx context.Context, draftID uuid.UUID, fields Fields) (*Draft, error) {
	if fields.Empty() {
		return m.store.GetByID(ctx, draftID)
	}
	return m.store.Merge(ctx, draftID, fields)
}

// Submit validates required fields, creates the order downstream, and marks
// the draft submitted. On ErrSchedulingUnavailable the draft stays in draft
// status so the caller can retry.
func (m *Manager) Submit(ctx context.Context, draftID uuid.UUID) (*Draft, error) {
	ctx, span := draftTracer.Start(ctx, "draft.submit")
	defer span.End()
	span.SetAttributes(attribute.String("bookline.draft_id", draftID.String()))

	d, err := m.store.GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if d.Status.Terminal() {
		return nil, ErrTerminal
	}
	if missing := d.MissingRequired(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrIncomplete, missing)
	}

	order, err := m.scheduling.CreateOrder(ctx, scheduling.CreateOrderRequest{
		DraftID:        d.ID.String(),
		UserID:         d.UserID,
		ProfessionalID: d.ProfessionalID,
		ServiceType:    d.ServiceType,
		ScheduledFor:   derefTime(d.PreferredDateTime),
		Notes:          d.ClientNotes,
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, scheduling.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrSchedulingUnavailable, err)
		}
		return nil, err
	}

	submitted, err := m.store.MarkSubmitted(ctx, draftID, order.ID)
	if err != nil {
		// The order exists downstream but the local transition failed; the
		// idempotency key on retry prevents a duplicate order.
		span.RecordError(err)
		return nil, err
	}

	m.logger.Info("draft submitted",
		"draft_id", submitted.ID,
		"conversation_id", submitted.ConversationID,
		"order_id", submitted.FinalOrderID,
	)
	return submitted, nil
}

// Cancel transitions an open draft to cancelled.
func (m *Manager) Cancel(ctx context.Context, draftID uuid.UUID) (*Draft, error) {
	cancelled, err := m.store.MarkCancelled(ctx, draftID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("draft cancelled", "draft_id", cancelled.ID, "conversation_id", cancelled.ConversationID)
	return cancelled, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
