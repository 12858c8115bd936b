package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicAdapter implements ProviderAdapter with the Anthropic Messages API.
type AnthropicAdapter struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicAdapter creates an adapter. An empty baseURL uses the SDK
// default endpoint. SDK-level retries are disabled so Retry owns backoff.
func NewAnthropicAdapter(apiKey, baseURL, model string) *AnthropicAdapter {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicAdapter{client: &client, model: model}
}

// Name returns "anthropic".
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Complete sends one Messages request.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	params := anthropicParams(req, model)

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, translateSDKError(ctx, "anthropic", err)
	}
	return anthropicResponse(msg, model), nil
}

func anthropicParams(req Request, model string) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.TextContent()})
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.TextContent())))
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text := m.TextContent(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range m.ToolCalls() {
				var input map[string]any
				if err := json.Unmarshal(tc.Arguments, &input); err != nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case RoleTool:
			for _, part := range m.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					messages = append(messages, anthropic.NewUserMessage(
						anthropic.NewToolResultBlock(part.ToolResult.ToolCallID, part.ToolResult.Content, part.ToolResult.IsError)))
				}
			}
		}
	}

	maxTokens := int64(anthropicDefaultMaxTokens)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.ToolDefs) > 0 {
		params.Tools = anthropicTools(req.ToolDefs)
	}
	return params
}

func anthropicTools(defs []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		tool := anthropic.ToolParam{
			Name: d.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: d.Parameters["properties"],
			},
		}
		if d.Description != "" {
			tool.Description = anthropic.String(d.Description)
		}
		tool.InputSchema.Required = requiredNames(d.Parameters["required"])
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

func requiredNames(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		names := make([]string, 0, len(r))
		for _, x := range r {
			if s, ok := x.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}

func anthropicResponse(msg *anthropic.Message, model string) *Response {
	var parts []ContentPart
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			parts = append(parts, TextPart(block.AsText().Text))
		case "thinking":
			parts = append(parts, ThinkingPart(block.AsThinking().Thinking))
		case "tool_use":
			tu := block.AsToolUse()
			args := json.RawMessage(tu.Input)
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			parts = append(parts, ToolCallPart(tu.ID, tu.Name, args))
		}
	}

	finish := FinishReason{Reason: "other", Raw: string(msg.StopReason)}
	switch msg.StopReason {
	case anthropic.StopReasonEndTurn:
		finish.Reason = "stop"
	case anthropic.StopReasonToolUse:
		finish.Reason = "tool_calls"
	case anthropic.StopReasonMaxTokens:
		finish.Reason = "length"
	}

	if string(msg.Model) != "" {
		model = string(msg.Model)
	}
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &Response{
		ID:           msg.ID,
		Model:        model,
		Provider:     "anthropic",
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: finish,
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

// translateSDKError maps errors from the generated provider SDKs onto the
// error hierarchy using the HTTP status they carry.
func translateSDKError(ctx context.Context, provider string, err error) error {
	if ctx.Err() != nil {
		return &AbortError{SDKError: SDKError{Message: "completion cancelled", Cause: err}}
	}
	var status int
	var resp *http.Response
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		status, resp = anthropicErr.StatusCode, anthropicErr.Response
	}
	if status == 0 {
		if code, r, ok := openAIStatus(err); ok {
			status, resp = code, r
		}
	}
	if status == 0 {
		return &NetworkError{SDKError: SDKError{Message: provider + " request failed", Cause: err}}
	}
	return ErrorFromStatusCode(status, err.Error(), provider, err, retryAfterHeader(resp))
}

func retryAfterHeader(resp *http.Response) *float64 {
	if resp == nil {
		return nil
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return nil
	}
	return &secs
}
