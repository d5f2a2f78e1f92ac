package assistant

import "context"

// ToolSpec describes a tool offered to the model. Parameters is a JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one model turn.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// Usage is token accounting reported by the provider.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Reply is the model's answer to a Request.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Runtime is a chat model that may request tool calls.
type Runtime interface {
	Chat(ctx context.Context, req Request) (*Reply, error)
}
