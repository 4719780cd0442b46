package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations in PostgreSQL.
type Store struct {
	db DB
}

// NewStore creates a conversation store backed by pgx.
func NewStore(db DB) *Store {
	if db == nil {
		panic("conversation: db required")
	}
	return &Store{db: db}
}

const conversationColumns = `id, user_id, state, detected_intent, context_data, is_active, started_at, last_activity_at`

// StartOrResume returns the user's active conversation, creating one when
// none exists. Concurrent calls converge on a single row through the partial
// unique index on (user_id) WHERE is_active.
func (s *Store) StartOrResume(ctx context.Context, userID string) (*Conversation, error) {
	conv, err := s.ActiveForUser(ctx, userID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	conv, err = s.insert(ctx, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Lost the race; another request created the active conversation.
			return s.ActiveForUser(ctx, userID)
		}
		return nil, err
	}
	return conv, nil
}

// ForceNew always creates a fresh conversation, deactivating any prior
// active one so the one-active invariant holds.
func (s *Store) ForceNew(ctx context.Context, userID string) (*Conversation, error) {
	if _, err := s.db.Exec(ctx,
		`UPDATE conversations SET is_active = FALSE, last_activity_at = now() WHERE user_id = $1 AND is_active`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("conversation: deactivate previous: %w", err)
	}
	return s.insert(ctx, userID)
}

func (s *Store) insert(ctx context.Context, userID string) (*Conversation, error) {
	id := uuid.New()
	query := `
		INSERT INTO conversations (id, user_id, state, context_data, is_active)
		VALUES ($1, $2, $3, '{}'::jsonb, TRUE)
		RETURNING started_at, last_activity_at
	`
	var startedAt, lastActivity time.Time
	if err := s.db.QueryRow(ctx, query, id, userID, string(StateGreeting)).Scan(&startedAt, &lastActivity); err != nil {
		return nil, fmt.Errorf("conversation: insert: %w", err)
	}
	return &Conversation{
		ID:             id,
		UserID:         userID,
		State:          StateGreeting,
		ContextData:    map[string]any{},
		IsActive:       true,
		StartedAt:      startedAt,
		LastActivityAt: lastActivity,
	}, nil
}

// ActiveForUser returns the caller's active conversation or ErrNotFound.
func (s *Store) ActiveForUser(ctx context.Context, userID string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_id = $1 AND is_active`
	return s.scanOne(s.db.QueryRow(ctx, query, userID))
}

// Get returns a conversation by id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	return s.scanOne(s.db.QueryRow(ctx, query, id))
}

// GetOwned returns the conversation if it exists and belongs to userID.
func (s *Store) GetOwned(ctx context.Context, id uuid.UUID, userID string) (*Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrUnauthorized
	}
	return conv, nil
}

// ApplyState overwrites the conversation state. The caller is one of the two
// transition authorities; no edge validation happens here.
func (s *Store) ApplyState(ctx context.Context, id uuid.UUID, state State) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE conversations SET state = $1, last_activity_at = now() WHERE id = $2`,
		string(state), id,
	)
	if err != nil {
		return fmt.Errorf("conversation: apply state: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDetectedIntent records the NLU's informational intent classification.
func (s *Store) SetDetectedIntent(ctx context.Context, id uuid.UUID, intent string) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE conversations SET detected_intent = $1 WHERE id = $2`,
		intent, id,
	); err != nil {
		return fmt.Errorf("conversation: set intent: %w", err)
	}
	return nil
}

// MergeContext upserts the partial map into context_data key-wise.
// The jsonb || operator makes the merge atomic per statement, so concurrent
// merges for the same conversation are last-write-wins per key.
func (s *Store) MergeContext(ctx context.Context, id uuid.UUID, partial map[string]any) error {
	if len(partial) == 0 {
		return nil
	}
	payload, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("conversation: marshal context: %w", err)
	}
	ct, err := s.db.Exec(ctx,
		`UPDATE conversations SET context_data = context_data || $1::jsonb, last_activity_at = now() WHERE id = $2`,
		payload, id,
	)
	if err != nil {
		return fmt.Errorf("conversation: merge context: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchActivity bumps last_activity_at; called by the orchestrator alongside
// every ledger append.
func (s *Store) TouchActivity(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE conversations SET last_activity_at = now() WHERE id = $1`,
		id,
	); err != nil {
		return fmt.Errorf("conversation: touch activity: %w", err)
	}
	return nil
}

func (s *Store) scanOne(row pgx.Row) (*Conversation, error) {
	var (
		conv    Conversation
		state   string
		rawCtx  []byte
	)
	err := row.Scan(
		&conv.ID, &conv.UserID, &state, &conv.DetectedIntent,
		&rawCtx, &conv.IsActive, &conv.StartedAt, &conv.LastActivityAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: scan: %w", err)
	}
	conv.State = State(state)
	conv.ContextData = map[string]any{}
	if len(rawCtx) > 0 {
		if err := json.Unmarshal(rawCtx, &conv.ContextData); err != nil {
			return nil, fmt.Errorf("conversation: decode context: %w", err)
		}
	}
	return &conv, nil
}
