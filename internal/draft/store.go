package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists booking drafts in PostgreSQL.
type Store struct {
	db DB
}

// NewStore creates a draft store backed by pgx.
func NewStore(db DB) *Store {
	if db == nil {
		panic("draft: db required")
	}
	return &Store{db: db}
}

const draftColumns = `id, conversation_id, user_id, professional_id, service_type,
		preferred_datetime, client_notes, status, final_order_id, created_at, updated_at`

// GetOrCreate returns the conversation's open draft, creating one when none
// exists. The partial unique index collapses concurrent creates.
func (s *Store) GetOrCreate(ctx context.Context, conversationID uuid.UUID, userID string) (*Draft, error) {
	d, err := s.OpenByConversation(ctx, conversationID)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO booking_drafts (id, conversation_id, user_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	var createdAt, updatedAt time.Time
	if err := s.db.QueryRow(ctx, query, id, conversationID, userID, string(StatusDraft)).Scan(&createdAt, &updatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return s.OpenByConversation(ctx, conversationID)
		}
		return nil, fmt.Errorf("draft: insert: %w", err)
	}
	return &Draft{
		ID:             id,
		ConversationID: conversationID,
		UserID:         userID,
		Status:         StatusDraft,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// GetByID returns a draft by id or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM booking_drafts WHERE id = $1`
	return s.scanOne(s.db.QueryRow(ctx, query, id))
}

// OpenByConversation returns the conversation's open draft or ErrNotFound.
func (s *Store) OpenByConversation(ctx context.Context, conversationID uuid.UUID) (*Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM booking_drafts WHERE conversation_id = $1 AND status = $2`
	return s.scanOne(s.db.QueryRow(ctx, query, conversationID, string(StatusDraft)))
}

// LatestByConversation returns the most recent draft regardless of status.
func (s *Store) LatestByConversation(ctx context.Context, conversationID uuid.UUID) (*Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM booking_drafts WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT 1`
	return s.scanOne(s.db.QueryRow(ctx, query, conversationID))
}

// ByOrderRef locates the draft submitted under the given external order
// reference. Webhook reconciliation uses this; ErrNotFound means the event
// is foreign and must be ignored.
func (s *Store) ByOrderRef(ctx context.Context, orderRef string) (*Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM booking_drafts WHERE final_order_id = $1 ORDER BY updated_at DESC LIMIT 1`
	return s.scanOne(s.db.QueryRow(ctx, query, orderRef))
}

// Merge applies only the populated fields; stored values are never cleared
// by an update that omits them.
func (s *Store) Merge(ctx context.Context, id uuid.UUID, fields Fields) (*Draft, error) {
	query := `
		UPDATE booking_drafts SET
			professional_id    = COALESCE(NULLIF($1, ''), professional_id),
			service_type       = COALESCE(NULLIF($2, ''), service_type),
			preferred_datetime = COALESCE($3, preferred_datetime),
			client_notes       = COALESCE(NULLIF($4, ''), client_notes),
			updated_at         = now()
		WHERE id = $5 AND status = $6
		RETURNING ` + draftColumns
	row := s.db.QueryRow(ctx, query,
		fields.ProfessionalID,
		fields.ServiceType,
		fields.PreferredDateTime,
		fields.ClientNotes,
		id,
		string(StatusDraft),
	)
	d, err := s.scanOne(row)
	if errors.Is(err, ErrNotFound) {
		return nil, s.classifyMiss(ctx, id)
	}
	return d, err
}

// MarkSubmitted transitions draft -> submitted with the external order id.
func (s *Store) MarkSubmitted(ctx context.Context, id uuid.UUID, orderID string) (*Draft, error) {
	query := `
		UPDATE booking_drafts SET status = $1, final_order_id = $2, updated_at = now()
		WHERE id = $3 AND status = $4
		RETURNING ` + draftColumns
	row := s.db.QueryRow(ctx, query, string(StatusSubmitted), orderID, id, string(StatusDraft))
	d, err := s.scanOne(row)
	if errors.Is(err, ErrNotFound) {
		return nil, s.classifyMiss(ctx, id)
	}
	return d, err
}

// MarkCancelled transitions draft -> cancelled.
func (s *Store) MarkCancelled(ctx context.Context, id uuid.UUID) (*Draft, error) {
	query := `
		UPDATE booking_drafts SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
		RETURNING ` + draftColumns
	row := s.db.QueryRow(ctx, query, string(StatusCancelled), id, string(StatusDraft))
	d, err := s.scanOne(row)
	if errors.Is(err, ErrNotFound) {
		return nil, s.classifyMiss(ctx, id)
	}
	return d, err
}

// classifyMiss distinguishes "no such draft" from "draft is terminal" after
// a guarded update matched zero rows.
func (s *Store) classifyMiss(ctx context.Context, id uuid.UUID) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status.Terminal() {
		return ErrTerminal
	}
	return ErrNotFound
}

func (s *Store) scanOne(row pgx.Row) (*Draft, error) {
	var (
		d         Draft
		status    string
		preferred *time.Time
	)
	err := row.Scan(
		&d.ID, &d.ConversationID, &d.UserID, &d.ProfessionalID, &d.ServiceType,
		&preferred, &d.ClientNotes, &status, &d.FinalOrderID, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("draft: scan: %w", err)
	}
	d.Status = Status(status)
	d.PreferredDateTime = preferred
	return &d, nil
}
