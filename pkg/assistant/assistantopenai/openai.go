// Package assistantopenai runs the assistant on OpenAI chat completions.
package assistantopenai

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared/constant"

	"github.com/ryan12324/openassistant/pkg/assistant"
	"github.com/ryan12324/openassistant/pkg/errx"
)

const DefaultModel = "gpt-4o"

var (
	openaiErrors = errx.NewRegistry("ASSISTANT_OPENAI")

	ErrMissingAPIKey       = openaiErrors.Register("MISSING_API_KEY", errx.TypeValidation, 500, "OpenAI API key is not configured")
	ErrAPIRequest          = openaiErrors.Register("API_REQUEST_FAILED", errx.TypeExternal, 502, "Failed to make request to OpenAI API")
	ErrNoChoicesInResponse = openaiErrors.Register("NO_CHOICES", errx.TypeExternal, 502, "OpenAI response contained no choices")
)

type Runtime struct {
	client openai.Client
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
		client: openai.NewClient(options...),
		apiKey: apiKey,
		model:  model,
	}
}

func (r *Runtime) Chat(ctx context.Context, req assistant.Request) (*assistant.Reply, error) {
	if r.apiKey == "" {
		return nil, openaiErrors.New(ErrMissingAPIKey)
	}

	params := openai.ChatCompletionNewParams{
		Messages: convertMessages(req.System, req.Messages),
		Model:    r.model,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	completion, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, openaiErrors.NewWithCause(ErrAPIRequest, err).
			WithDetail("model", r.model).
			WithDetail("num_messages", len(params.Messages))
	}
	return convertResponse(completion)
}

func convertMessages(system string, messages []assistant.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}

	for _, msg := range messages {
		switch msg.Role {
		case assistant.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case assistant.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case assistant.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case assistant.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}

			calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				args := string(tc.Arguments)
				if args == "" {
					args = "{}"
				}
				calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID:   tc.ID,
						Type: constant.Function("function"),
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: args,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role: constant.Assistant("assistant"),
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCalls: calls,
				},
			})
		}
	}
	return out
}

func convertTools(tools []assistant.ToolSpec) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		params := tool.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  openai.FunctionParameters(params),
		}))
	}
	return out
}

func convertResponse(completion *openai.ChatCompletion) (*assistant.Reply, error) {
	if len(completion.Choices) == 0 {
		return nil, openaiErrors.New(ErrNoChoicesInResponse)
	}

	choice := completion.Choices[0]
	reply := &assistant.Reply{
		Content: choice.Message.Content,
		Usage: assistant.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		reply.ToolCalls = append(reply.ToolCalls, assistant.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return reply, nil
}
