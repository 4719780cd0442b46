package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the pgx surface the processed store needs; *pgxpool.Pool and
// pgxmock both satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore records (order reference, status) pairs that were already
// applied, so a redelivered webhook becomes a no-op instead of appending a
// duplicate ledger message.
type ProcessedStore struct {
	db DB
}

// NewProcessedStore creates the dedup store.
func NewProcessedStore(db DB) *ProcessedStore {
	if db == nil {
		panic("reconcile: db required")
	}
	return &ProcessedStore{db: db}
}

// MarkApplied records the pair and reports whether this delivery was the
// first one. Callers hold the conversation lock, so first-delivery detection
// cannot race a concurrent duplicate.
func (s *ProcessedStore) MarkApplied(ctx context.Context, orderRef, status string) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		INSERT INTO processed_status_events (order_ref, status)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, orderRef, status)
	if err != nil {
		return false, fmt.Errorf("reconcile: mark applied: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// AlreadyApplied checks whether the pair was seen before without recording it.
func (s *ProcessedStore) AlreadyApplied(ctx context.Context, orderRef, status string) (bool, error) {
	var exists int
	err := s.db.QueryRow(ctx, `
		SELECT 1 FROM processed_status_events WHERE order_ref = $1 AND status = $2
	`, orderRef, status).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("reconcile: check applied: %w", err)
	}
	return true, nil
}
