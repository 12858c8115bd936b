package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const openAIRequestTimeout = 120 * time.Second

// OpenAIAdapter implements ProviderAdapter with the Chat Completions API. It
// also serves OpenAI-compatible endpoints through baseURL.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

// NewOpenAIAdapter creates an adapter. An empty baseURL uses the SDK default.
func NewOpenAIAdapter(apiKey, baseURL, model string) *OpenAIAdapter {
	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: openAIRequestTimeout}),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := openai.NewClient(opts...)
	return &OpenAIAdapter{client: &client, model: model}
}

// Name returns "openai".
func (a *OpenAIAdapter) Name() string { return "openai" }

// Complete sends one chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: openAIMessages(req.Messages),
	}
	if len(req.ToolDefs) > 0 {
		params.Tools = openAITools(req.ToolDefs)
		params.ToolChoice.OfAuto = openai.String(string(openai.ChatCompletionToolChoiceOptionAutoAuto))
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Opt(int64(*req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Opt(*req.Temperature)
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, translateSDKError(ctx, "openai", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &ProviderError{SDKError: SDKError{Message: "response contained no choices"}, Provider: "openai", Retryable: true}
	}
	return openAIResponse(resp, model), nil
}

func openAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.TextContent()))
		case RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if text := m.TextContent(); text != "" {
				assistant.Content.OfString = openai.String(text)
			}
			for _, tc := range m.ToolCalls() {
				args := string(tc.Arguments)
				if args == "" {
					args = "{}"
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: args,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			for _, part := range m.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					out = append(out, openai.ToolMessage(part.ToolResult.Content, part.ToolResult.ToolCallID))
				}
			}
		default:
			out = append(out, openai.UserMessage(m.TextContent()))
		}
	}
	return out
}

func openAITools(defs []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		fn := shared.FunctionDefinitionParam{
			Name:        d.Name,
			Description: openai.String(d.Description),
			Parameters:  shared.FunctionParameters(d.Parameters),
		}
		out = append(out, openai.ChatCompletionFunctionTool(fn))
	}
	return out
}

func openAIResponse(resp *openai.ChatCompletion, model string) *Response {
	choice := resp.Choices[0]
	var parts []ContentPart
	if choice.Message.Content != "" {
		parts = append(parts, TextPart(choice.Message.Content))
	}
	for _, call := range choice.Message.ToolCalls {
		if v, ok := call.AsAny().(openai.ChatCompletionMessageFunctionToolCall); ok {
			args := json.RawMessage(v.Function.Arguments)
			if strings.TrimSpace(v.Function.Arguments) == "" {
				args = json.RawMessage("{}")
			}
			parts = append(parts, ToolCallPart(v.ID, v.Function.Name, args))
		}
	}

	finish := FinishReason{Reason: "other", Raw: choice.FinishReason}
	switch choice.FinishReason {
	case "stop":
		finish.Reason = "stop"
	case "tool_calls", "function_call":
		finish.Reason = "tool_calls"
	case "length":
		finish.Reason = "length"
	case "content_filter":
		finish.Reason = "content_filter"
	}

	if resp.Model != "" {
		model = resp.Model
	}
	return &Response{
		ID:           resp.ID,
		Model:        model,
		Provider:     "openai",
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: finish,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}
}

func openAIStatus(err error) (int, *http.Response, bool) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, apiErr.Response, true
	}
	return 0, nil, false
}
