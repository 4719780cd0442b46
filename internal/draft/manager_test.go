package draft

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline-ai/bookline/internal/scheduling"
	"github.com/bookline-ai/bookline/pkg/logging"
)

// fakeStorage is an in-memory Storage for manager tests.
type fakeStorage struct {
	drafts map[uuid.UUID]*Draft
}

func newFakeStorage(seed ...*Draft) *fakeStorage {
	fs := &fakeStorage{drafts: make(map[uuid.UUID]*Draft)}
	for _, d := range seed {
		fs.drafts[d.ID] = d
	}
	return fs
}

func (f *fakeStorage) GetOrCreate(_ context.Context, conversationID uuid.UUID, userID string) (*Draft, error) {
	for _, d := range f.drafts {
		if d.ConversationID == conversationID && d.Status == StatusDraft {
			return d, nil
		}
	}
	d := &Draft{ID: uuid.New(), ConversationID: conversationID, UserID: userID, Status: StatusDraft, CreatedAt: time.Now()}
	f.drafts[d.ID] = d
	return d, nil
}

func (f *fakeStorage) GetByID(_ context.Context, id uuid.UUID) (*Draft, error) {
	d, ok := f.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (f *fakeStorage) OpenByConversation(_ context.Context, conversationID uuid.UUID) (*Draft, error) {
	for _, d := range f.drafts {
		if d.ConversationID == conversationID && d.Status == StatusDraft {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStorage) LatestByConversation(_ context.Context, conversationID uuid.UUID) (*Draft, error) {
	var latest *Draft
	for _, d := range f.drafts {
		if d.ConversationID != conversationID {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (f *fakeStorage) ByOrderRef(_ context.Context, orderRef string) (*Draft, error) {
	for _, d := range f.drafts {
		if d.FinalOrderID == orderRef {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStorage) Merge(_ context.Context, id uuid.UUID, fields Fields) (*Draft, error) {
	d, ok := f.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status.Terminal() {
		return nil, ErrTerminal
	}
	if fields.ProfessionalID != "" {
		d.ProfessionalID = fields.ProfessionalID
	}
	if fields.ServiceType != "" {
		d.ServiceType = fields.ServiceType
	}
	if fields.PreferredDateTime != nil {
		d.PreferredDateTime = fields.PreferredDateTime
	}
	if fields.ClientNotes != "" {
		d.ClientNotes = fields.ClientNotes
	}
	return d, nil
}

func (f *fakeStorage) MarkSubmitted(_ context.Context, id uuid.UUID, orderID string) (*Draft, error) {
	d, ok := f.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status.Terminal() {
		return nil, ErrTerminal
	}
	d.Status = StatusSubmitted
	d.FinalOrderID = orderID
	return d, nil
}

func (f *fakeStorage) MarkCancelled(_ context.Context, id uuid.UUID) (*Draft, error) {
	d, ok := f.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status.Terminal() {
		return nil, ErrTerminal
	}
	d.Status = StatusCancelled
	return d, nil
}

// fakeOrders records order creation calls.
type fakeOrders struct {
	err      error
	lastReq  scheduling.CreateOrderRequest
	callsLen int
}

func (f *fakeOrders) CreateOrder(_ context.Context, req scheduling.CreateOrderRequest) (*scheduling.Order, error) {
	f.callsLen++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &scheduling.Order{ID: "order-123", Status: "pending"}, nil
}

func openDraft(fields Fields) *Draft {
	d := &Draft{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		UserID:         "user-1",
		Status:         StatusDraft,
		CreatedAt:      time.Now(),
	}
	d.ProfessionalID = fields.ProfessionalID
	d.ServiceType = fields.ServiceType
	d.PreferredDateTime = fields.PreferredDateTime
	d.ClientNotes = fields.ClientNotes
	return d
}

func TestMergeExtracted_SkipsUncoercibleValues(t *testing.T) {
	d := openDraft(Fields{})
	store := newFakeStorage(d)
	mgr := NewManager(store, &fakeOrders{}, logging.Default())

	merged, err := mgr.MergeExtracted(context.Background(), d.ID, map[string]any{
		"professional_id":    "prof-7",
		"service_type":       42.0,               // not a string, skipped
		"preferred_datetime": "soonish maybe",    // unparseable, skipped
		"notes":              "ground floor",
		"unrelated_key":      "ignored entirely",
	})
	require.NoError(t, err)
	assert.Equal(t, "prof-7", merged.ProfessionalID)
	assert.Empty(t, merged.ServiceType)
	assert.Nil(t, merged.PreferredDateTime)
	assert.Equal(t, "ground floor", merged.ClientNotes)
}

func TestMergeExtracted_MergeOnlyAcrossTurns(t *testing.T) {
	d := openDraft(Fields{})
	store := newFakeStorage(d)
	mgr := NewManager(store, &fakeOrders{}, logging.Default())
	ctx := context.Background()

	_, err := mgr.MergeExtracted(ctx, d.ID, map[string]any{"professional_id": "prof-1"})
	require.NoError(t, err)

	merged, err := mgr.MergeExtracted(ctx, d.ID, map[string]any{"preferred_datetime": "2026-04-01T10:00:00Z"})
	require.NoError(t, err)

	assert.Equal(t, "prof-1", merged.ProfessionalID, "earlier field must survive later merges")
	require.NotNil(t, merged.PreferredDateTime)
	assert.Equal(t, 2026, merged.PreferredDateTime.Year())
}

func TestMergeExtracted_DisjointKeysCommute(t *testing.T) {
	ctx := context.Background()
	byProf := map[string]any{"professional_id": "prof-1"}
	byTime := map[string]any{"preferred_datetime": "2026-04-01T10:00:00Z"}

	merge := func(first, second map[string]any) *Draft {
		d := openDraft(Fields{})
		mgr := NewManager(newFakeStorage(d), &fakeOrders{}, logging.Default())
		_, err := mgr.MergeExtracted(ctx, d.ID, first)
		require.NoError(t, err)
		got, err := mgr.MergeExtracted(ctx, d.ID, second)
		require.NoError(t, err)
		return got
	}

	profFirst := merge(byProf, byTime)
	timeFirst := merge(byTime, byProf)

	assert.Equal(t, profFirst.ProfessionalID, timeFirst.ProfessionalID)
	require.NotNil(t, profFirst.PreferredDateTime)
	require.NotNil(t, timeFirst.PreferredDateTime)
	assert.True(t, profFirst.PreferredDateTime.Equal(*timeFirst.PreferredDateTime),
		"merge order over disjoint keys must not change the result")
	assert.Equal(t, "prof-1", profFirst.ProfessionalID)
}

func TestMergeExtracted_EmptyMapIsNoop(t *testing.T) {
	d := openDraft(Fields{ProfessionalID: "prof-1"})
	store := newFakeStorage(d)
	mgr := NewManager(store, &fakeOrders{}, logging.Default())

	got, err := mgr.MergeExtracted(context.Background(), d.ID, map[string]any{"service_type": 1.5})
	require.NoError(t, err)
	assert.Equal(t, "prof-1", got.ProfessionalID)
}

func TestSubmit_IncompleteDraft(t *testing.T) {
	d := openDraft(Fields{ProfessionalID: "prof-1"}) // no preferred_datetime
	store := newFakeStorage(d)
	orders := &fakeOrders{}
	mgr := NewManager(store, orders, logging.Default())

	_, err := mgr.Submit(context.Background(), d.ID)
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "preferred_datetime")
	assert.Equal(t, StatusDraft, store.drafts[d.ID].Status, "failed submit must leave the draft open")
	assert.Zero(t, orders.callsLen, "no downstream call on incomplete draft")
}

func TestSubmit_Success(t *testing.T) {
	when := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	d := openDraft(Fields{ProfessionalID: "prof-1", ServiceType: "cardiology", PreferredDateTime: &when})
	store := newFakeStorage(d)
	orders := &fakeOrders{}
	mgr := NewManager(store, orders, logging.Default())

	submitted, err := mgr.Submit(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, submitted.Status)
	assert.Equal(t, "order-123", submitted.FinalOrderID)
	assert.Equal(t, d.ID.String(), orders.lastReq.DraftID, "draft id doubles as the idempotency key")
	assert.Equal(t, when, orders.lastReq.ScheduledFor)
}

func TestSubmit_SchedulingUnavailable(t *testing.T) {
	when := time.Now().Add(24 * time.Hour)
	d := openDraft(Fields{ProfessionalID: "prof-1", PreferredDateTime: &when})
	store := newFakeStorage(d)
	mgr := NewManager(store, &fakeOrders{err: scheduling.ErrUnavailable}, logging.Default())

	_, err := mgr.Submit(context.Background(), d.ID)
	require.ErrorIs(t, err, ErrSchedulingUnavailable)
	assert.Equal(t, StatusDraft, store.drafts[d.ID].Status, "draft stays open for retry")
}

func TestSubmit_TerminalDraft(t *testing.T) {
	d := openDraft(Fields{})
	d.Status = StatusCancelled
	store := newFakeStorage(d)
	mgr := NewManager(store, &fakeOrders{}, logging.Default())

	_, err := mgr.Submit(context.Background(), d.ID)
	require.ErrorIs(t, err, ErrTerminal)
}

func TestCancel(t *testing.T) {
	d := openDraft(Fields{})
	store := newFakeStorage(d)
	mgr := NewManager(store, &fakeOrders{}, logging.Default())

	cancelled, err := mgr.Cancel(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = mgr.Cancel(context.Background(), d.ID)
	assert.True(t, errors.Is(err, ErrTerminal))
}
