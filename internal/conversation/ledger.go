package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Ledger is the append-only message store. No update or delete operations
// exist; retention is an external concern.
type Ledger struct {
	db     DB
	tracer trace.Tracer
}

// NewLedger creates a message ledger backed by pgx.
func NewLedger(db DB) *Ledger {
	if db == nil {
		panic("conversation: db required")
	}
	return &Ledger{db: db, tracer: tracer}
}

// AppendInput describes one entry to append.
type AppendInput struct {
	ConversationID   uuid.UUID
	Content          string
	IsFromUser       bool
	SuggestedOptions []string
	SelectedOption   string
}

// Append inserts a message and returns it. Ordering within a conversation
// follows sent_at, which is assigned here; callers sequence their appends.
func (l *Ledger) Append(ctx context.Context, in AppendInput) (*Message, error) {
	ctx, span := l.tracer.Start(ctx, "conversation.Ledger.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("bookline.conversation_id", in.ConversationID.String()),
		attribute.Bool("bookline.is_from_user", in.IsFromUser),
	)

	id := uuid.New()
	sentAt := time.Now().UTC()

	var options []byte
	if len(in.SuggestedOptions) > 0 {
		var err error
		options, err = json.Marshal(in.SuggestedOptions)
		if err != nil {
			return nil, fmt.Errorf("conversation: marshal options: %w", err)
		}
	}

	if _, err := l.db.Exec(ctx, `
		INSERT INTO conversation_messages
			(id, conversation_id, content, is_from_user, suggested_options, selected_option, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, in.ConversationID, in.Content, in.IsFromUser, options, in.SelectedOption, sentAt); err != nil {
		return nil, fmt.Errorf("conversation: append message: %w", err)
	}

	return &Message{
		ID:               id,
		ConversationID:   in.ConversationID,
		Content:          in.Content,
		IsFromUser:       in.IsFromUser,
		SuggestedOptions: in.SuggestedOptions,
		SelectedOption:   in.SelectedOption,
		SentAt:           sentAt,
	}, nil
}

// ListByConversation returns all messages oldest-first.
func (l *Ledger) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	ctx, span := l.tracer.Start(ctx, "conversation.Ledger.ListByConversation")
	defer span.End()

	rows, err := l.db.Query(ctx, `
		SELECT id, conversation_id, content, is_from_user, suggested_options, selected_option, sent_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY sent_at, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			msg     Message
			options []byte
		)
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Content, &msg.IsFromUser,
			&options, &msg.SelectedOption, &msg.SentAt,
		); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &msg.SuggestedOptions); err != nil {
				return nil, fmt.Errorf("conversation: decode options: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
