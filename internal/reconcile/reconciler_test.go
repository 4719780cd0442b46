package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline-ai/bookline/internal/conversation"
	"github.com/bookline-ai/bookline/internal/draft"
	"github.com/bookline-ai/bookline/internal/realtime"
	"github.com/bookline-ai/bookline/pkg/logging"
)

type fakeDraftLookup struct {
	byRef map[string]*draft.Draft
	err   error
}

func (f *fakeDraftLookup) ByOrderRef(_ context.Context, orderRef string) (*draft.Draft, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.byRef[orderRef]
	if !ok {
		return nil, draft.ErrNotFound
	}
	return d, nil
}

type fakeConvWriter struct {
	states   []conversation.State
	touched  int
	applyErr error
}

func (f *fakeConvWriter) ApplyState(_ context.Context, _ uuid.UUID, state conversation.State) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.states = append(f.states, state)
	return nil
}

func (f *fakeConvWriter) TouchActivity(context.Context, uuid.UUID) error {
	f.touched++
	return nil
}

type fakeAppender struct {
	appended []conversation.AppendInput
	err      error
}

func (f *fakeAppender) Append(_ context.Context, in conversation.AppendInput) (*conversation.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.appended = append(f.appended, in)
	return &conversation.Message{
		ID:               uuid.New(),
		ConversationID:   in.ConversationID,
		Content:          in.Content,
		SuggestedOptions: in.SuggestedOptions,
		SentAt:           time.Now().UTC(),
	}, nil
}

type fakeDedup struct {
	seen     map[string]bool
	checkErr error
	markErr  error
}

func (f *fakeDedup) AlreadyApplied(_ context.Context, orderRef, status string) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.seen[orderRef+"|"+status], nil
}

func (f *fakeDedup) MarkApplied(_ context.Context, orderRef, status string) (bool, error) {
	if f.markErr != nil {
		return false, f.markErr
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	key := orderRef + "|" + status
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

type stateRecorder struct {
	realtime.NopPublisher
	states   []string
	messages []realtime.MessagePayload
}

func (s *stateRecorder) PublishStateChanged(_ uuid.UUID, state string) {
	s.states = append(s.states, state)
}

func (s *stateRecorder) PublishMessage(_ uuid.UUID, msg realtime.MessagePayload) {
	s.messages = append(s.messages, msg)
}

type reconcilerFixture struct {
	lookup    *fakeDraftLookup
	convos    *fakeConvWriter
	ledger    *fakeAppender
	dedup     *fakeDedup
	publisher *stateRecorder
	rec       *Reconciler
}

func newReconcilerFixture(seed ...*draft.Draft) *reconcilerFixture {
	f := &reconcilerFixture{
		lookup:    &fakeDraftLookup{byRef: make(map[string]*draft.Draft)},
		convos:    &fakeConvWriter{},
		ledger:    &fakeAppender{},
		dedup:     &fakeDedup{},
		publisher: &stateRecorder{},
	}
	for _, d := range seed {
		f.lookup.byRef[d.FinalOrderID] = d
	}
	f.rec = NewReconciler(
		f.lookup, f.convos, f.ledger,
		conversation.NewMemoryLocker(),
		f.publisher, f.dedup, nil, logging.Default(),
	)
	return f
}

func submittedDraft(orderRef string) *draft.Draft {
	return &draft.Draft{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		UserID:         "user-1",
		Status:         draft.StatusSubmitted,
		FinalOrderID:   orderRef,
	}
}

func TestHandleStatusChange_Applied(t *testing.T) {
	d := submittedDraft("order-1")
	f := newReconcilerFixture(d)

	err := f.rec.HandleStatusChange(context.Background(), "order-1", "confirmed")
	require.NoError(t, err)

	require.Len(t, f.convos.states, 1)
	assert.Equal(t, conversation.StateBookingComplete, f.convos.states[0])
	require.Len(t, f.ledger.appended, 1)
	assert.Equal(t, d.ConversationID, f.ledger.appended[0].ConversationID)
	assert.False(t, f.ledger.appended[0].IsFromUser)
	assert.NotEmpty(t, f.ledger.appended[0].Content)
	assert.Equal(t, 1, f.convos.touched)

	require.Len(t, f.publisher.states, 1)
	assert.Equal(t, "booking_complete", f.publisher.states[0])
	require.Len(t, f.publisher.messages, 1)
	assert.Equal(t, f.ledger.appended[0].Content, f.publisher.messages[0].Content)
}

func TestHandleStatusChange_UnknownRefIsNoOp(t *testing.T) {
	f := newReconcilerFixture()

	err := f.rec.HandleStatusChange(context.Background(), "never-seen", "confirmed")
	require.NoError(t, err, "unknown order references are swallowed, not failed")

	assert.Empty(t, f.convos.states)
	assert.Empty(t, f.ledger.appended)
	assert.Empty(t, f.publisher.states)
}

func TestHandleStatusChange_DuplicateDeliveryIsNoOp(t *testing.T) {
	d := submittedDraft("order-1")
	f := newReconcilerFixture(d)

	require.NoError(t, f.rec.HandleStatusChange(context.Background(), "order-1", "confirmed"))
	require.NoError(t, f.rec.HandleStatusChange(context.Background(), "order-1", "confirmed"))

	assert.Len(t, f.convos.states, 1, "the second delivery applies nothing")
	assert.Len(t, f.ledger.appended, 1)
}

func TestHandleStatusChange_DistinctStatusesBothApply(t *testing.T) {
	d := submittedDraft("order-1")
	f := newReconcilerFixture(d)

	require.NoError(t, f.rec.HandleStatusChange(context.Background(), "order-1", "confirmed"))
	require.NoError(t, f.rec.HandleStatusChange(context.Background(), "order-1", "completed"))

	require.Len(t, f.convos.states, 2)
	assert.Equal(t, conversation.StateBookingComplete, f.convos.states[0])
	assert.Equal(t, conversation.StateBookingComplete, f.convos.states[1])
	assert.Len(t, f.ledger.appended, 2)
}

func TestHandleStatusChange_RejectedReopensSelection(t *testing.T) {
	d := submittedDraft("order-1")
	f := newReconcilerFixture(d)

	require.NoError(t, f.rec.HandleStatusChange(context.Background(), "order-1", "rejected"))

	require.Len(t, f.convos.states, 1)
	assert.Equal(t, conversation.StateSelectingProfessional, f.convos.states[0])
	require.Len(t, f.ledger.appended, 1)
	assert.NotEmpty(t, f.ledger.appended[0].SuggestedOptions)
}

func TestHandleStatusChange_LookupFailurePropagates(t *testing.T) {
	f := newReconcilerFixture()
	f.lookup.err = errors.New("db down")

	err := f.rec.HandleStatusChange(context.Background(), "order-1", "confirmed")
	require.Error(t, err)
	assert.Empty(t, f.convos.states)
}

func TestHandleStatusChange_AppendFailureLeavesStateUntouched(t *testing.T) {
	d := submittedDraft("order-1")
	f := newReconcilerFixture(d)
	f.ledger.err = errors.New("db down")

	err := f.rec.HandleStatusChange(context.Background(), "order-1", "confirmed")
	require.Error(t, err)
	assert.Empty(t, f.convos.states, "state is applied only after the ledger entry lands")
}

func TestHandleStatusChange_RedeliveryAfterFailedApplyStillApplies(t *testing.T) {
	d := submittedDraft("order-1")
	f := newReconcilerFixture(d)

	f.ledger.err = errors.New("db down")
	require.Error(t, f.rec.HandleStatusChange(context.Background(), "order-1", "confirmed"))
	assert.Empty(t, f.dedup.seen, "a failed apply must not be recorded as processed")

	f.ledger.err = nil
	require.NoError(t, f.rec.HandleStatusChange(context.Background(), "order-1", "confirmed"))

	require.Len(t, f.convos.states, 1, "the redelivery applies the transition")
	assert.Equal(t, conversation.StateBookingComplete, f.convos.states[0])
	assert.Len(t, f.ledger.appended, 1)
}

func TestHandleStatusChange_MarkFailureIsNotFatal(t *testing.T) {
	d := submittedDraft("order-1")
	f := newReconcilerFixture(d)
	f.dedup.markErr = errors.New("db down")

	err := f.rec.HandleStatusChange(context.Background(), "order-1", "confirmed")
	require.NoError(t, err, "the transition landed; a missed dedup record only risks a later duplicate")

	require.Len(t, f.convos.states, 1)
	assert.Len(t, f.ledger.appended, 1)
}

func TestHandleStatusChange_DedupCheckFailurePropagates(t *testing.T) {
	d := submittedDraft("order-1")
	f := newReconcilerFixture(d)
	f.dedup.checkErr = errors.New("db down")

	err := f.rec.HandleStatusChange(context.Background(), "order-1", "confirmed")
	require.Error(t, err)
	assert.Empty(t, f.convos.states)
	assert.Empty(t, f.ledger.appended)
}

func TestHandleStatusChange_NilDedupStillApplies(t *testing.T) {
	d := submittedDraft("order-1")
	f := newReconcilerFixture(d)
	f.rec = NewReconciler(
		f.lookup, f.convos, f.ledger,
		conversation.NewMemoryLocker(),
		f.publisher, nil, nil, logging.Default(),
	)

	require.NoError(t, f.rec.HandleStatusChange(context.Background(), "order-1", "cancelled"))
	require.Len(t, f.convos.states, 1)
	assert.Equal(t, conversation.StateGreeting, f.convos.states[0])
}
