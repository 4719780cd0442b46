package reconcile

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessedStore_MarkAppliedFirstDelivery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO processed_status_events").
		WithArgs("order-1", "confirmed").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewProcessedStore(mock)
	first, err := store.MarkApplied(context.Background(), "order-1", "confirmed")
	require.NoError(t, err)
	assert.True(t, first)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedStore_MarkAppliedDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// ON CONFLICT DO NOTHING reports zero affected rows on a duplicate.
	mock.ExpectExec("INSERT INTO processed_status_events").
		WithArgs("order-1", "confirmed").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewProcessedStore(mock)
	first, err := store.MarkApplied(context.Background(), "order-1", "confirmed")
	require.NoError(t, err)
	assert.False(t, first)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedStore_AlreadyApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT 1 FROM processed_status_events").
		WithArgs("order-1", "confirmed").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	store := NewProcessedStore(mock)
	seen, err := store.AlreadyApplied(context.Background(), "order-1", "confirmed")
	require.NoError(t, err)
	assert.True(t, seen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedStore_AlreadyAppliedNotSeen(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT 1 FROM processed_status_events").
		WithArgs("order-1", "rejected").
		WillReturnError(pgx.ErrNoRows)

	store := NewProcessedStore(mock)
	seen, err := store.AlreadyApplied(context.Background(), "order-1", "rejected")
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, mock.ExpectationsWereMet())
}
