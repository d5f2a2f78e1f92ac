package assistant

import (
	"encoding/json"
	"time"

	"github.com/ryan12324/openassistant/pkg/connectorx"
	"github.com/ryan12324/openassistant/pkg/kernel"
)

// Job types handled by Service.
const (
	JobTypeInbound    = "inbound_message"
	JobTypeCompaction = "compact_conversation"
)

// Role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Attachment is a file or media item that arrived with an inbound message.
type Attachment struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// InboundMessage is the payload of an inbound_message job.
type InboundMessage struct {
	Source         string                   `json:"source"`
	SenderID       string                   `json:"senderId"`
	SenderName     string                   `json:"senderName,omitempty"`
	Content        string                   `json:"content"`
	ExternalChatID string                   `json:"externalChatId,omitempty"`
	Attachments    []Attachment             `json:"attachments,omitempty"`
	Metadata       map[string]any           `json:"metadata,omitempty"`
	UserID         kernel.UserID            `json:"userId"`
	StoredConfig   *connectorx.StoredConfig `json:"storedConfig"`
	DefinitionName string                   `json:"definitionName"`
}

// Validate checks the fields every inbound message needs.
func (m InboundMessage) Validate() error {
	switch {
	case m.UserID.IsEmpty():
		return assistantErrors.NewWithMessage(ErrInvalidPayload, "userId is required")
	case m.Source == "":
		return assistantErrors.NewWithMessage(ErrInvalidPayload, "source is required")
	case m.Content == "" && len(m.Attachments) == 0:
		return assistantErrors.NewWithMessage(ErrInvalidPayload, "content or attachments are required")
	}
	return nil
}

// CompactConversation is the payload of a compact_conversation job.
type CompactConversation struct {
	ConversationID string        `json:"conversationId"`
	UserID         kernel.UserID `json:"userId"`
}

// Conversation is one thread between a user and the assistant on a source.
type Conversation struct {
	ID             string        `json:"id" db:"id"`
	UserID         kernel.UserID `json:"userId" db:"user_id"`
	Source         string        `json:"source" db:"source"`
	ExternalChatID string        `json:"externalChatId" db:"external_chat_id"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time     `json:"updatedAt" db:"updated_at"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one entry of a conversation history.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func NewAssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

func NewToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Content: content}
}

func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}
