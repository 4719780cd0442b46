package draft

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var draftCols = []string{
	"id", "conversation_id", "user_id", "professional_id", "service_type",
	"preferred_datetime", "client_notes", "status", "final_order_id", "created_at", "updated_at",
}

func draftRow(d *Draft) *pgxmock.Rows {
	return pgxmock.NewRows(draftCols).AddRow(
		d.ID, d.ConversationID, d.UserID, d.ProfessionalID, d.ServiceType,
		d.PreferredDateTime, d.ClientNotes, string(d.Status), d.FinalOrderID, d.CreatedAt, d.UpdatedAt,
	)
}

func TestStoreGetOrCreate_InsertsWhenNoneOpen(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	conversationID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM booking_drafts WHERE conversation_id`).
		WithArgs(conversationID, "draft").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO booking_drafts`).
		WithArgs(pgxmock.AnyArg(), conversationID, "user-1", "draft").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	store := NewStore(mock)
	d, err := store.GetOrCreate(context.Background(), conversationID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, conversationID, d.ConversationID)
	assert.Equal(t, StatusDraft, d.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetOrCreate_ReturnsExistingOpenDraft(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	existing := &Draft{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		UserID:         "user-1",
		Status:         StatusDraft,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	mock.ExpectQuery(`SELECT .* FROM booking_drafts WHERE conversation_id`).
		WithArgs(existing.ConversationID, "draft").
		WillReturnRows(draftRow(existing))

	store := NewStore(mock)
	d, err := store.GetOrCreate(context.Background(), existing.ConversationID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, d.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMerge_TerminalDraftClassified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	submitted := &Draft{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		UserID:         "user-1",
		Status:         StatusSubmitted,
		FinalOrderID:   "order-9",
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	// Guarded update matches zero rows, then the classifier re-reads the row.
	mock.ExpectQuery(`UPDATE booking_drafts SET`).
		WithArgs("prof-1", "", pgxmock.AnyArg(), "", submitted.ID, "draft").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM booking_drafts WHERE id`).
		WithArgs(submitted.ID).
		WillReturnRows(draftRow(submitted))

	store := NewStore(mock)
	_, err = store.Merge(context.Background(), submitted.ID, Fields{ProfessionalID: "prof-1"})
	require.ErrorIs(t, err, ErrTerminal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreByOrderRef_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM booking_drafts WHERE final_order_id`).
		WithArgs("order-unknown").
		WillReturnError(pgx.ErrNoRows)

	store := NewStore(mock)
	_, err = store.ByOrderRef(context.Background(), "order-unknown")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
