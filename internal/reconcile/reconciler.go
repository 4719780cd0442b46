package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bookline-ai/bookline/internal/conversation"
	"github.com/bookline-ai/bookline/internal/draft"
	"github.com/bookline-ai/bookline/internal/observability/metrics"
	"github.com/bookline-ai/bookline/internal/realtime"
	"github.com/bookline-ai/bookline/pkg/logging"
)

var tracer = otel.Tracer("bookline.internal.reconcile")

// DraftLookup resolves a submitted draft from the order reference the
// scheduling service echoes back.
type DraftLookup interface {
	ByOrderRef(ctx context.Context, orderRef string) (*draft.Draft, error)
}

// ConversationWriter applies the mapped state transition.
type ConversationWriter interface {
	ApplyState(ctx context.Context, id uuid.UUID, state conversation.State) error
	TouchActivity(ctx context.Context, id uuid.UUID) error
}

// LedgerAppender records the status announcement in the conversation.
type LedgerAppender interface {
	Append(ctx context.Context, in conversation.AppendInput) (*conversation.Message, error)
}

// DedupStore remembers already-applied (order, status) pairs. A nil store
// disables dedup; redeliveries then append duplicate ledger entries.
type DedupStore interface {
	AlreadyApplied(ctx context.Context, orderRef, status string) (bool, error)
	MarkApplied(ctx context.Context, orderRef, status string) (bool, error)
}

// Reconciler maps asynchronous order status changes from the scheduling
// service onto conversation state and ledger entries. It trusts only that
// the referenced order exists; everything else about the caller is untrusted.
type Reconciler struct {
	drafts    DraftLookup
	convos    ConversationWriter
	ledger    LedgerAppender
	locker    conversation.Locker
	publisher realtime.Publisher
	processed DedupStore
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
}

// NewReconciler wires the reconciliation service.
func NewReconciler(
	drafts DraftLookup,
	convos ConversationWriter,
	ledger LedgerAppender,
	locker conversation.Locker,
	publisher realtime.Publisher,
	processed DedupStore,
	m *metrics.ConversationMetrics,
	logger *logging.Logger,
) *Reconciler {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		drafts:    drafts,
		convos:    convos,
		ledger:    ledger,
		locker:    locker,
		publisher: publisher,
		processed: processed,
		metrics:   m,
		logger:    logger,
	}
}

// HandleStatusChange processes one webhook delivery. An unknown order
// reference is a successful no-op so duplicate, stale, or foreign events
// never fail. The draft's field content is never touched here; the external
// service owns the order once it has been submitted.
func (r *Reconciler) HandleStatusChange(ctx context.Context, orderRef, status string) error {
	ctx, span := tracer.Start(ctx, "reconcile.HandleStatusChange")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_ref", orderRef),
		attribute.String("status", status),
	)

	d, err := r.drafts.ByOrderRef(ctx, orderRef)
	if err != nil {
		if errors.Is(err, draft.ErrNotFound) {
			r.logger.Info("reconcile: unknown order reference, ignoring",
				"order_ref", orderRef,
				"status", status,
			)
			r.metrics.ObserveWebhook(status, "unknown_ref")
			return nil
		}
		r.metrics.ObserveWebhook(status, "error")
		return fmt.Errorf("reconcile: lookup draft: %w", err)
	}

	release, err := r.locker.Acquire(ctx, d.ConversationID)
	if err != nil {
		r.metrics.ObserveWebhook(status, "error")
		return fmt.Errorf("reconcile: acquire conversation lock: %w", err)
	}
	defer release()

	// Duplicate detection and recording straddle the apply: the pair is only
	// recorded after the ledger entry and state transition land, so a failed
	// apply leaves redelivery free to try again. The conversation lock keeps
	// check-then-mark race-free against a concurrent duplicate.
	if r.processed != nil {
		seen, err := r.processed.AlreadyApplied(ctx, orderRef, status)
		if err != nil {
			r.metrics.ObserveWebhook(status, "error")
			return fmt.Errorf("reconcile: dedup check: %w", err)
		}
		if seen {
			r.logger.Info("reconcile: duplicate delivery, ignoring",
				"order_ref", orderRef,
				"status", status,
			)
			r.metrics.ObserveWebhook(status, "duplicate")
			return nil
		}
	}

	outcome := MapStatus(status)

	msg, err := r.ledger.Append(ctx, conversation.AppendInput{
		ConversationID:   d.ConversationID,
		Content:          outcome.Message,
		IsFromUser:       false,
		SuggestedOptions: outcome.SuggestedOptions,
	})
	if err != nil {
		r.metrics.ObserveWebhook(status, "error")
		return fmt.Errorf("reconcile: append status message: %w", err)
	}

	if err := r.convos.ApplyState(ctx, d.ConversationID, outcome.NextState); err != nil {
		r.metrics.ObserveWebhook(status, "error")
		return fmt.Errorf("reconcile: apply state: %w", err)
	}
	if err := r.convos.TouchActivity(ctx, d.ConversationID); err != nil {
		r.logger.Warn("reconcile: touch activity", "error", err, "conversation_id", d.ConversationID)
	}

	if r.processed != nil {
		if _, err := r.processed.MarkApplied(ctx, orderRef, status); err != nil {
			// The transition already landed. Failing now would ask for a
			// redelivery that appends the announcement twice, so the miss is
			// only logged; a later duplicate is the lesser harm.
			r.logger.Warn("reconcile: record processed event",
				"error", err,
				"order_ref", orderRef,
				"status", status,
			)
		}
	}

	r.publisher.PublishStateChanged(d.ConversationID, string(outcome.NextState))
	r.publisher.PublishMessage(d.ConversationID, realtime.MessagePayload{
		ID:               msg.ID,
		Content:          msg.Content,
		IsFromUser:       false,
		SentAt:           msg.SentAt,
		SuggestedOptions: msg.SuggestedOptions,
	})

	r.logger.Info("reconcile: order status applied",
		"order_ref", orderRef,
		"status", status,
		"conversation_id", d.ConversationID,
		"next_state", outcome.NextState,
	)
	r.metrics.ObserveWebhook(status, "applied")
	return nil
}
