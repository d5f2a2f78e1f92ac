package assistant

import (
	"context"

	"github.com/ryan12324/openassistant/pkg/kernel"
)

// ConversationStore persists conversations and their ordered message history.
type ConversationStore interface {
	// FindOrCreate returns the conversation for (userID, source, externalChatID), creating it if needed.
	FindOrCreate(ctx context.Context, userID kernel.UserID, source, externalChatID string) (*Conversation, error)

	// Get returns ConversationNotFound for unknown ids.
	Get(ctx context.Context, conversationID string) (*Conversation, error)

	Append(ctx context.Context, conversationID string, msgs ...Message) error

	// Messages returns the history oldest first.
	Messages(ctx context.Context, conversationID string) ([]Message, error)

	// Compact replaces the oldest n messages with summary, leaving later
	// messages untouched even if they were appended after n was computed.
	Compact(ctx context.Context, conversationID string, n int, summary Message) error
}
