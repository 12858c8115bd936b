package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter implements ProviderAdapter on top of a gollm.LLM. gollm
// returns plain text, so function calls are recovered from JSON embedded in
// the completion and token usage is estimated.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithGollmModel sets the default model for the adapter.
func WithGollmModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) { c.model = model }
}

// WithGollmMaxTokens sets the default max tokens.
func WithGollmMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) { c.maxTokens = n }
}

// WithGollmTemperature sets the default temperature.
func WithGollmTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) { c.temperature = t }
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewGollmAdapter creates a GollmAdapter for provider. An empty apiKey lets
// gollm read the key from its environment variables.
func NewGollmAdapter(provider, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{maxTokens: 4096, temperature: 0.7}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(provider); info != nil {
			model = info.ID
		} else {
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries happen in Retry
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("create gollm client for provider %s", provider),
			Cause:   err,
		}}
	}
	return &GollmAdapter{provider: provider, llm: llm, model: model}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{provider: provider, llm: llm}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string { return a.provider }

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.buildPrompt(req)

	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AbortError{SDKError: SDKError{Message: "completion cancelled", Cause: ctx.Err()}}
		}
		return nil, classifyTextError(a.provider, err)
	}
	return a.buildResponse(req, text), nil
}

// buildPrompt flattens the conversation into gollm's single prompt plus
// system prompt shape.
func (a *GollmAdapter) buildPrompt(req Request) *gollm.Prompt {
	var system []string
	var turns []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.TextContent())
		case RoleUser:
			turns = append(turns, msg.TextContent())
		case RoleAssistant:
			text := msg.TextContent()
			for _, tc := range msg.ToolCalls() {
				text += fmt.Sprintf("\n[Call %s %s]", tc.Name, string(tc.Arguments))
			}
			if strings.TrimSpace(text) != "" {
				turns = append(turns, "[Assistant]: "+strings.TrimSpace(text))
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				prefix := "[Tool Result]"
				if part.ToolResult.IsError {
					prefix = "[Tool Error]"
				}
				turns = append(turns, prefix+": "+part.ToolResult.Content)
			}
		}
	}

	text := strings.Join(turns, "\n")
	if text == "" {
		text = "Continue."
	}

	var opts []gollm.PromptOption
	if len(system) > 0 {
		opts = append(opts, gollm.WithSystemPrompt(strings.Join(system, "\n\n"), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		opts = append(opts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.ToolDefs) > 0 {
		tools := make([]gollm.Tool, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		opts = append(opts, gollm.WithTools(tools))
		mode := "auto"
		if req.ToolChoice != nil && req.ToolChoice.Mode != "" {
			mode = req.ToolChoice.Mode
		}
		opts = append(opts, gollm.WithToolChoice(mode))
	}
	return gollm.NewPrompt(text, opts...)
}

func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	var parts []ContentPart
	calls, rest := extractToolCalls(text)
	if strings.TrimSpace(rest) != "" {
		parts = append(parts, TextPart(strings.TrimSpace(rest)))
	}
	for _, tc := range calls {
		parts = append(parts, ToolCallPart(tc.ID, tc.Name, tc.Arguments))
	}
	if len(parts) == 0 {
		parts = []ContentPart{TextPart(text)}
	}

	finish := FinishReason{Reason: "stop", Raw: "stop"}
	if len(calls) > 0 {
		finish = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	in := EstimateTokens(MessagesText(req.Messages))
	out := EstimateTokens(text)
	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     a.provider,
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: finish,
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

type embeddedCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// extractToolCalls recovers function calls that gollm returns as JSON text,
// either {"tool_calls":[...]} or a bare [{"name":...}] array. It returns the
// calls and the text preceding them.
func extractToolCalls(text string) ([]ToolCallData, string) {
	var raw []embeddedCall
	idx := strings.Index(text, `{"tool_calls"`)
	if idx >= 0 {
		var wrapper struct {
			ToolCalls []embeddedCall `json:"tool_calls"`
		}
		if err := json.NewDecoder(strings.NewReader(text[idx:])).Decode(&wrapper); err == nil {
			raw = wrapper.ToolCalls
		}
	} else if idx = strings.Index(text, `[{"name"`); idx >= 0 {
		if err := json.NewDecoder(strings.NewReader(text[idx:])).Decode(&raw); err != nil {
			raw = nil
		}
	}
	if len(raw) == 0 {
		return nil, text
	}

	calls := make([]ToolCallData, 0, len(raw))
	for _, rc := range raw {
		if rc.Name == "" {
			continue
		}
		args := rc.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		// Some providers double-encode arguments as a JSON string.
		var s string
		if json.Unmarshal(args, &s) == nil {
			args = json.RawMessage(s)
		}
		calls = append(calls, ToolCallData{ID: "call_" + uuid.New().String()[:8], Name: rc.Name, Arguments: args})
	}
	return calls, text[:idx]
}

var statusPattern = regexp.MustCompile(`\b(400|401|403|404|408|413|422|429|500|502|503|504|529)\b`)

// classifyTextError maps an error whose only structure is its message onto
// the error hierarchy.
func classifyTextError(provider string, err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)

	if m := statusPattern.FindString(msg); m != "" {
		code, _ := strconv.Atoi(m)
		return ErrorFromStatusCode(code, msg, provider, err, nil)
	}
	switch {
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "invalid api key"):
		return ErrorFromStatusCode(401, msg, provider, err, nil)
	case strings.Contains(lower, "rate limit"):
		return ErrorFromStatusCode(429, msg, provider, err, nil)
	case strings.Contains(lower, "context length"), strings.Contains(lower, "too many tokens"):
		return ErrorFromStatusCode(413, msg, provider, err, nil)
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(lower, "content filter"), strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: ProviderError{
			SDKError: SDKError{Message: msg, Cause: err}, Provider: provider,
		}}
	case strings.Contains(lower, "connection"), strings.Contains(lower, "no such host"):
		return &NetworkError{SDKError: SDKError{Message: msg, Cause: err}}
	}
	return &ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: provider, Retryable: true}
}
