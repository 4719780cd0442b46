package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bookline-ai/bookline/internal/directory"
	"github.com/bookline-ai/bookline/internal/draft"
	"github.com/bookline-ai/bookline/internal/nlu"
	"github.com/bookline-ai/bookline/internal/notify"
	"github.com/bookline-ai/bookline/internal/observability/metrics"
	"github.com/bookline-ai/bookline/internal/realtime"
	"github.com/bookline-ai/bookline/pkg/logging"
)

var tracer = otel.Tracer("bookline.internal.conversation")

// ConversationStore is the persistence surface the orchestrator needs from
// the conversation side; *Store implements it, tests fake it.
type ConversationStore interface {
	StartOrResume(ctx context.Context, userID string) (*Conversation, error)
	ForceNew(ctx context.Context, userID string) (*Conversation, error)
	ActiveForUser(ctx context.Context, userID string) (*Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)
	GetOwned(ctx context.Context, id uuid.UUID, userID string) (*Conversation, error)
	ApplyState(ctx context.Context, id uuid.UUID, state State) error
	SetDetectedIntent(ctx context.Context, id uuid.UUID, intent string) error
	MergeContext(ctx context.Context, id uuid.UUID, partial map[string]any) error
	TouchActivity(ctx context.Context, id uuid.UUID) error
}

// MessageLedger is the append-only dialogue store.
type MessageLedger interface {
	Append(ctx context.Context, in AppendInput) (*Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]Message, error)
}

// DraftManager is the booking-draft surface the orchestrator drives.
type DraftManager interface {
	GetOrCreate(ctx context.Context, conversationID uuid.UUID, userID string) (*draft.Draft, error)
	OpenByConversation(ctx context.Context, conversationID uuid.UUID) (*draft.Draft, error)
	MergeExtracted(ctx context.Context, draftID uuid.UUID, extracted map[string]any) (*draft.Draft, error)
	Submit(ctx context.Context, draftID uuid.UUID) (*draft.Draft, error)
}

// Notifier alerts the assigned professional after a successful submission.
type Notifier interface {
	NotifyBookingSubmitted(ctx context.Context, alert notify.BookingAlert) error
}

// TurnInput is one inbound user message.
type TurnInput struct {
	UserID         string
	ConversationID *uuid.UUID
	Message        string
	SelectedOption string
}

// Orchestrator sequences a full user turn: resolve conversation, append the
// user message, consult the NLU engine, apply its suggestion, persist the
// reply, fan out realtime events, and finalize the booking when the
// conversation reaches completion. All conversation and draft writes happen
// under the per-conversation lock so concurrent turns and webhook
// reconciliations cannot interleave.
type Orchestrator struct {
	convos    ConversationStore
	ledger    MessageLedger
	drafts    DraftManager
	engine    nlu.Engine
	directory directory.Reader
	locker    Locker
	publisher realtime.Publisher
	notifier  Notifier
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
}

// OrchestratorDeps collects the orchestrator's collaborators.
type OrchestratorDeps struct {
	Convos    ConversationStore
	Ledger    MessageLedger
	Drafts    DraftManager
	Engine    nlu.Engine
	Directory directory.Reader
	Locker    Locker
	Publisher realtime.Publisher
	Notifier  Notifier
	Metrics   *metrics.ConversationMetrics
	Logger    *logging.Logger
}

// NewOrchestrator wires the turn pipeline.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Convos == nil || deps.Ledger == nil || deps.Drafts == nil || deps.Engine == nil {
		panic("conversation: orchestrator requires store, ledger, drafts and engine")
	}
	if deps.Locker == nil {
		deps.Locker = NewMemoryLocker()
	}
	if deps.Publisher == nil {
		deps.Publisher = realtime.NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Orchestrator{
		convos:    deps.Convos,
		ledger:    deps.Ledger,
		drafts:    deps.Drafts,
		engine:    deps.Engine,
		directory: deps.Directory,
		locker:    deps.Locker,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// StartOrResume returns the user's active conversation, creating one if none
// exists.
func (o *Orchestrator) StartOrResume(ctx context.Context, userID string) (*Conversation, error) {
	return o.convos.StartOrResume(ctx, userID)
}

// ForceNew deactivates the user's active conversation, if any, and creates a
// fresh one.
func (o *Orchestrator) ForceNew(ctx context.Context, userID string) (*Conversation, error) {
	return o.convos.ForceNew(ctx, userID)
}

// ActiveForUser returns the caller's active conversation.
func (o *Orchestrator) ActiveForUser(ctx context.Context, userID string) (*Conversation, error) {
	return o.convos.ActiveForUser(ctx, userID)
}

// ListMessages returns a conversation's full history, oldest first, after an
// ownership check.
func (o *Orchestrator) ListMessages(ctx context.Context, conversationID uuid.UUID, userID string) ([]Message, error) {
	if _, err := o.convos.GetOwned(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return o.ledger.ListByConversation(ctx, conversationID)
}

// HandleUserTurn processes one inbound message end to end. The user's ledger
// append is a durable side effect: a later NLU failure fails the turn but
// does not roll the message back.
func (o *Orchestrator) HandleUserTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	ctx, span := tracer.Start(ctx, "conversation.HandleUserTurn")
	defer span.End()

	conv, err := o.resolveConversation(ctx, in)
	if err != nil {
		o.observeTurn("resolve_failed", "")
		return nil, err
	}
	span.SetAttributes(attribute.String("bookline.conversation_id", conv.ID.String()))

	release, err := o.locker.Acquire(ctx, conv.ID)
	if err != nil {
		o.observeTurn("lock_failed", string(conv.State))
		return nil, fmt.Errorf("conversation: acquire turn lock: %w", err)
	}
	defer release()

	// State may have moved while we waited on the lock.
	conv, err = o.convos.Get(ctx, conv.ID)
	if err != nil {
		o.observeTurn("resolve_failed", "")
		return nil, err
	}

	o.publisher.PublishTyping(conv.ID, true)
	defer o.publisher.PublishTyping(conv.ID, false)

	userMsg, err := o.ledger.Append(ctx, AppendInput{
		ConversationID: conv.ID,
		Content:        in.Message,
		IsFromUser:     true,
		SelectedOption: in.SelectedOption,
	})
	if err != nil {
		o.observeTurn("append_failed", string(conv.State))
		return nil, err
	}
	if err := o.convos.TouchActivity(ctx, conv.ID); err != nil {
		o.logger.Warn("touch activity", "error", err, "conversation_id", conv.ID)
	}
	o.publisher.PublishMessage(conv.ID, realtime.MessagePayload{
		ID:             userMsg.ID,
		Content:        userMsg.Content,
		IsFromUser:     true,
		SentAt:         userMsg.SentAt,
	})

	var openDraft *draft.Draft
	if conv.State == StateCollectingInfo {
		openDraft, err = o.drafts.GetOrCreate(ctx, conv.ID, in.UserID)
		if err != nil {
			o.observeTurn("draft_failed", string(conv.State))
			return nil, err
		}
	} else {
		openDraft, err = o.drafts.OpenByConversation(ctx, conv.ID)
		if err != nil && !errors.Is(err, draft.ErrNotFound) {
			o.observeTurn("draft_failed", string(conv.State))
			return nil, err
		}
	}

	professionals, services := o.fetchReferenceData(ctx, conv.ID)

	suggestion, err := o.interpret(ctx, conv, in, professionals, services)
	if err != nil {
		o.observeTurn("nlu_failed", string(conv.State))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}

	nextState := conv.State
	if suggestion.NextState != "" {
		// Applied verbatim; the engine is the transition authority.
		nextState = State(suggestion.NextState)
		if err := o.convos.ApplyState(ctx, conv.ID, nextState); err != nil {
			o.observeTurn("apply_failed", string(conv.State))
			return nil, err
		}
		if nextState != conv.State {
			o.publisher.PublishStateChanged(conv.ID, string(nextState))
		}
	}
	if suggestion.DetectedIntent != "" {
		if err := o.convos.SetDetectedIntent(ctx, conv.ID, suggestion.DetectedIntent); err != nil {
			o.logger.Warn("set detected intent", "error", err, "conversation_id", conv.ID)
		}
	}
	if len(suggestion.Extracted) > 0 {
		if err := o.convos.MergeContext(ctx, conv.ID, suggestion.Extracted); err != nil {
			o.observeTurn("apply_failed", string(nextState))
			return nil, err
		}
		// A turn that just moved into collecting_info already carries
		// extracted fields; open the draft now so they are not lost.
		if openDraft == nil && nextState == StateCollectingInfo {
			if openDraft, err = o.drafts.GetOrCreate(ctx, conv.ID, in.UserID); err != nil {
				o.observeTurn("draft_failed", string(nextState))
				return nil, err
			}
		}
		if openDraft != nil && !openDraft.Status.Terminal() {
			if openDraft, err = o.drafts.MergeExtracted(ctx, openDraft.ID, suggestion.Extracted); err != nil {
				o.observeTurn("apply_failed", string(nextState))
				return nil, err
			}
		}
	}

	aiMsg, err := o.ledger.Append(ctx, AppendInput{
		ConversationID:   conv.ID,
		Content:          suggestion.Reply,
		IsFromUser:       false,
		SuggestedOptions: suggestion.SuggestedOptions,
	})
	if err != nil {
		o.observeTurn("append_failed", string(nextState))
		return nil, err
	}
	if err := o.convos.TouchActivity(ctx, conv.ID); err != nil {
		o.logger.Warn("touch activity", "error", err, "conversation_id", conv.ID)
	}
	o.publisher.PublishMessage(conv.ID, realtime.MessagePayload{
		ID:               aiMsg.ID,
		Content:          aiMsg.Content,
		IsFromUser:       false,
		SentAt:           aiMsg.SentAt,
		SuggestedOptions: aiMsg.SuggestedOptions,
		Extracted:        suggestion.Extracted,
	})

	result := &TurnResult{
		ConversationID:   conv.ID,
		MessageID:        aiMsg.ID,
		Reply:            aiMsg.Content,
		SuggestedOptions: aiMsg.SuggestedOptions,
		State:            nextState,
	}

	if (nextState == StateBookingComplete || suggestion.BookingComplete) && openDraft != nil && !openDraft.Status.Terminal() {
		o.finalizeBooking(ctx, openDraft, result)
	}

	o.observeTurn("ok", string(nextState))
	return result, nil
}

func (o *Orchestrator) resolveConversation(ctx context.Context, in TurnInput) (*Conversation, error) {
	if in.ConversationID != nil {
		return o.convos.GetOwned(ctx, *in.ConversationID, in.UserID)
	}
	conv, err := o.convos.ActiveForUser(ctx, in.UserID)
	if err == nil {
		return conv, nil
	}
	if errors.Is(err, ErrNotFound) {
		return o.convos.StartOrResume(ctx, in.UserID)
	}
	return nil, err
}

// fetchReferenceData loads the professional and service catalogs. Either
// collection may come back empty; the turn proceeds regardless.
func (o *Orchestrator) fetchReferenceData(ctx context.Context, conversationID uuid.UUID) ([]directory.Professional, []directory.ServiceConfig) {
	if o.directory == nil {
		return nil, nil
	}
	professionals, err := o.directory.Professionals(ctx)
	if err != nil {
		o.logger.Warn("fetch professionals", "error", err, "conversation_id", conversationID)
	}
	services, err := o.directory.Services(ctx)
	if err != nil {
		o.logger.Warn("fetch services", "error", err, "conversation_id", conversationID)
	}
	return professionals, services
}

func (o *Orchestrator) interpret(ctx context.Context, conv *Conversation, in TurnInput, professionals []directory.Professional, services []directory.ServiceConfig) (*nlu.Suggestion, error) {
	started := time.Now()
	suggestion, err := o.engine.Interpret(ctx, nlu.Request{
		ConversationID: conv.ID.String(),
		Message:        in.Message,
		SelectedOption: in.SelectedOption,
		State:          string(conv.State),
		Context:        conv.ContextData,
		Professionals:  professionals,
		Services:       services,
	})
	o.metrics.ObserveNLULatency(time.Since(started).Seconds())
	return suggestion, err
}

// finalizeBooking submits the open draft and alerts the professional. The
// AI reply is already persisted at this point, so a submission failure is
// reported through the result flags rather than failing the turn.
func (o *Orchestrator) finalizeBooking(ctx context.Context, openDraft *draft.Draft, result *TurnResult) {
	submitted, err := o.drafts.Submit(ctx, openDraft.ID)
	if err != nil {
		o.metrics.ObserveSubmission("failed")
		o.logger.Error("submit draft at completion",
			"error", err,
			"draft_id", openDraft.ID,
			"conversation_id", openDraft.ConversationID,
		)
		return
	}
	o.metrics.ObserveSubmission("ok")

	result.BookingCompleted = true
	result.FinalOrderID = submitted.FinalOrderID

	if o.notifier == nil {
		return
	}
	alert := notify.BookingAlert{
		OrderID:        submitted.FinalOrderID,
		ProfessionalID: submitted.ProfessionalID,
		ServiceType:    submitted.ServiceType,
		Notes:          submitted.ClientNotes,
	}
	if submitted.PreferredDateTime != nil {
		alert.PreferredDateTime = *submitted.PreferredDateTime
	}
	if err := o.notifier.NotifyBookingSubmitted(ctx, alert); err != nil {
		o.logger.Warn("notify professional",
			"error", err,
			"order_id", submitted.FinalOrderID,
			"professional_id", submitted.ProfessionalID,
		)
	}
}

func (o *Orchestrator) observeTurn(outcome, state string) {
	o.metrics.ObserveTurn(outcome, state)
}
