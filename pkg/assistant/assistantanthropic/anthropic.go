// Package assistantanthropic runs the assistant on Anthropic's Messages API.
package assistantanthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ryan12324/openassistant/pkg/assistant"
	"github.com/ryan12324/openassistant/pkg/errx"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024
)

var (
	anthropicErrors = errx.NewRegistry("ASSISTANT_ANTHROPIC")

	ErrMissingAPIKey = anthropicErrors.Register("MISSING_API_KEY", errx.TypeValidation, 500, "Anthropic API key is not configured")
	ErrAPIRequest    = anthropicErrors.Register("API_REQUEST_FAILED", errx.TypeExternal, 502, "Failed to make request to Anthropic API")
	ErrEmptyMessages = anthropicErrors.Register("EMPTY_MESSAGES", errx.TypeValidation, 400, "No messages to send")
)

type Runtime struct {
	client anthropic.Client
	apiKey string
	model  string
}

var _ assistant.Runtime = (*Runtime)(nil)

func New(apiKey, model string, opts ...option.RequestOption) *Runtime {
	if model == "" {
		model = DefaultModel
	}
	options := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Runtime{
		client: anthropic.NewClient(options...),
		apiKey: apiKey,
		model:  model,
	}
}

func (r *Runtime) Chat(ctx context.Context, req assistant.Request) (*assistant.Reply, error) {
	if r.apiKey == "" {
		return nil, anthropicErrors.New(ErrMissingAPIKey)
	}

	system, msgs := convertMessages(req.System, req.Messages)
	if len(msgs) == 0 {
		return nil, anthropicErrors.New(ErrEmptyMessages)
	}

	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	msg, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return nil, anthropicErrors.NewWithCause(ErrAPIRequest, err).
			WithDetail("model", r.model).
			WithDetail("num_messages", len(msgs))
	}
	return convertResponse(msg), nil
}

// convertMessages folds system messages into the system prompt and groups
// consecutive tool results into one user turn.
func convertMessages(systemPrompt string, messages []assistant.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	if systemPrompt != "" {
		system = append(system, anthropic.TextBlockParam{Text: systemPrompt})
	}

	var out []anthropic.MessageParam
	for i := 0; i < len(messages); i++ {
		msg := messages[i]
		switch msg.Role {
		case assistant.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})

		case assistant.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case assistant.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if strings.TrimSpace(msg.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input any
				if len(tc.Arguments) > 0 {
					_ = json.Unmarshal(tc.Arguments, &input)
				}
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}

		case assistant.RoleTool:
			results := []anthropic.ContentBlockParamUnion{
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			}
			for i+1 < len(messages) && messages[i+1].Role == assistant.RoleTool {
				i++
				results = append(results, anthropic.NewToolResultBlock(messages[i].ToolCallID, messages[i].Content, false))
			}
			out = append(out, anthropic.NewUserMessage(results...))
		}
	}

	// A compacted history can start on an assistant turn; the API wants a user turn first.
	if len(out) > 0 && out[0].Role == anthropic.MessageParamRoleAssistant {
		out = append([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("(conversation continues)")),
		}, out...)
	}
	return system, out
}

func convertTools(tools []assistant.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		t := anthropic.ToolUnionParamOfTool(convertSchema(tool.Parameters), tool.Name)
		if tool.Description != "" {
			t.OfTool.Description = anthropic.String(tool.Description)
		}
		out = append(out, t)
	}
	return out
}

func convertSchema(params map[string]any) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{}
	if props, ok := params["properties"]; ok {
		schema.Properties = props
	}
	switch req := params["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func convertResponse(msg *anthropic.Message) *assistant.Reply {
	reply := &assistant.Reply{
		Usage: assistant.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil || len(args) == 0 || string(args) == "null" {
				args = []byte(`{}`)
			}
			reply.ToolCalls = append(reply.ToolCalls, assistant.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	reply.Content = text.String()
	return reply
}
