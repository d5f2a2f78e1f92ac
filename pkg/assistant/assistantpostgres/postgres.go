// Package assistantpostgres stores conversations in Postgres. Messages are
// ordered by a bigserial id; compaction reuses the smallest removed id for
// the summary so it stays first.
package assistantpostgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ryan12324/openassistant/pkg/assistant"
	"github.com/ryan12324/openassistant/pkg/kernel"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id               UUID PRIMARY KEY,
	user_id          TEXT        NOT NULL,
	source           TEXT        NOT NULL,
	external_chat_id TEXT        NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, source, external_chat_id)
);
CREATE TABLE IF NOT EXISTS conversation_messages (
	id              BIGSERIAL PRIMARY KEY,
	conversation_id UUID        NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT        NOT NULL,
	content         TEXT        NOT NULL DEFAULT '',
	tool_calls      JSONB,
	tool_call_id    TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS conversation_messages_conv_idx ON conversation_messages (conversation_id, id);
`

const conversationColumns = `id, user_id, source, external_chat_id, created_at, updated_at`

type ConversationRepository struct {
	db *sqlx.DB
}

var _ assistant.ConversationStore = (*ConversationRepository)(nil)

func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return pgErrors.NewWithCause(ErrMigrate, err)
	}
	return nil
}

func (r *ConversationRepository) FindOrCreate(ctx context.Context, userID kernel.UserID, source, externalChatID string) (*assistant.Conversation, error) {
	query := `
		INSERT INTO conversations (` + conversationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, source, external_chat_id)
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING ` + conversationColumns

	var conv assistant.Conversation
	err := r.db.GetContext(ctx, &conv, query,
		uuid.NewString(), userID.String(), source, externalChatID, time.Now().UTC())
	if err != nil {
		return nil, pgErrors.NewWithCause(ErrFindOrCreate, err).
			WithDetail("user_id", userID).
			WithDetail("source", source)
	}
	return &conv, nil
}

func (r *ConversationRepository) Get(ctx context.Context, conversationID string) (*assistant.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	var conv assistant.Conversation
	if err := r.db.GetContext(ctx, &conv, query, conversationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, assistant.ConversationNotFound(conversationID)
		}
		return nil, pgErrors.NewWithCause(ErrGet, err).WithDetail("conversation_id", conversationID)
	}
	return &conv, nil
}

type messageRow struct {
	ID         int64          `db:"id"`
	Role       string         `db:"role"`
	Content    string         `db:"content"`
	ToolCalls  []byte         `db:"tool_calls"`
	ToolCallID sql.NullString `db:"tool_call_id"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (m messageRow) toDomain() assistant.Message {
	msg := assistant.Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID.String,
		CreatedAt:  m.CreatedAt,
	}
	if len(m.ToolCalls) > 0 {
		_ = json.Unmarshal(m.ToolCalls, &msg.ToolCalls)
	}
	return msg
}

func toolCallsJSON(calls []assistant.ToolCall) (any, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(calls)
	if err != nil {
		return nil, err
	}
	return data, nil
}

const insertMessage = `
	INSERT INTO conversation_messages (conversation_id, role, content, tool_calls, tool_call_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

func (r *ConversationRepository) Append(ctx context.Context, conversationID string, msgs ...assistant.Message) error {
	wrap := func(err error) error {
		return pgErrors.NewWithCause(ErrAppend, err).WithDetail("conversation_id", conversationID)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, conversationID, now)
	if err != nil {
		return wrap(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assistant.ConversationNotFound(conversationID)
	}

	for _, m := range msgs {
		calls, err := toolCallsJSON(m.ToolCalls)
		if err != nil {
			return wrap(err)
		}
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := tx.ExecContext(ctx, insertMessage,
			conversationID, m.Role, m.Content, calls, nullableString(m.ToolCallID), createdAt,
		); err != nil {
			return wrap(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrap(err)
	}
	return nil
}

func (r *ConversationRepository) Messages(ctx context.Context, conversationID string) ([]assistant.Message, error) {
	query := `
		SELECT id, role, content, tool_calls, tool_call_id, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY id`

	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, conversationID); err != nil {
		return nil, pgErrors.NewWithCause(ErrMessages, err).WithDetail("conversation_id", conversationID)
	}

	msgs := make([]assistant.Message, len(rows))
	for i, row := range rows {
		msgs[i] = row.toDomain()
	}
	return msgs, nil
}

type removedRow struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *ConversationRepository) Compact(ctx context.Context, conversationID string, n int, summary assistant.Message) error {
	wrap := func(err error) error {
		return pgErrors.NewWithCause(ErrCompact, err).WithDetail("conversation_id", conversationID)
	}
	if n <= 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap(err)
	}
	defer tx.Rollback()

	var removed []removedRow
	err = tx.SelectContext(ctx, &removed, `
		DELETE FROM conversation_messages
		WHERE id IN (
			SELECT id FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY id
			LIMIT $2
		)
		RETURNING id, created_at`, conversationID, n)
	if err != nil {
		return wrap(err)
	}
	if len(removed) == 0 {
		return nil
	}

	first, last := removed[0], removed[0]
	for _, row := range removed[1:] {
		if row.ID < first.ID {
			first = row
		}
		if row.CreatedAt.After(last.CreatedAt) {
			last = row
		}
	}
	createdAt := summary.CreatedAt
	if createdAt.IsZero() {
		createdAt = last.CreatedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		first.ID, conversationID, summary.Role, summary.Content, createdAt)
	if err != nil {
		return wrap(err)
	}

	if err := tx.Commit(); err != nil {
		return wrap(err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
