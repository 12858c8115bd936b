package agentloop

import (
	"context"

	"github.com/martinemde/autocycle/unifiedllm"
)

// ModelTransport is the agent's view of the language model.
type ModelTransport interface {
	// CreateChatCompletion returns one assistant response for messages, with
	// functions offered for native function calling.
	CreateChatCompletion(ctx context.Context, messages []unifiedllm.Message, functions []unifiedllm.ToolDefinition) (*unifiedllm.Response, error)
	// CountTokens measures text in the active model's token units.
	CountTokens(text string) int
}

// LLMTransport implements ModelTransport over a unifiedllm.Client. Transient
// provider errors are retried with backoff before they reach the agent.
type LLMTransport struct {
	client      *unifiedllm.Client
	model       string
	provider    string
	counter     *unifiedllm.TokenCounter
	policy      unifiedllm.RetryPolicy
	maxTokens   *int
	temperature *float64
}

// TransportOption configures an LLMTransport.
type TransportOption func(*LLMTransport)

// WithTransportProvider pins requests to a registered provider.
func WithTransportProvider(name string) TransportOption {
	return func(t *LLMTransport) { t.provider = name }
}

// WithRetryPolicy replaces the default transient-error retry policy.
func WithRetryPolicy(p unifiedllm.RetryPolicy) TransportOption {
	return func(t *LLMTransport) { t.policy = p }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) TransportOption {
	return func(t *LLMTransport) { t.maxTokens = &n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(v float64) TransportOption {
	return func(t *LLMTransport) { t.temperature = &v }
}

// NewLLMTransport creates a transport for model on client.
func NewLLMTransport(client *unifiedllm.Client, model string, opts ...TransportOption) *LLMTransport {
	t := &LLMTransport{
		client:  client,
		model:   model,
		counter: unifiedllm.NewTokenCounter(model),
		policy:  unifiedllm.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Model returns the model id requests are sent to.
func (t *LLMTransport) Model() string { return t.model }

func (t *LLMTransport) CreateChatCompletion(ctx context.Context, messages []unifiedllm.Message, functions []unifiedllm.ToolDefinition) (*unifiedllm.Response, error) {
	req := unifiedllm.Request{
		Model:       t.model,
		Provider:    t.provider,
		Messages:    messages,
		ToolDefs:    functions,
		MaxTokens:   t.maxTokens,
		Temperature: t.temperature,
	}
	if len(functions) > 0 {
		req.ToolChoice = &unifiedllm.ToolChoice{Mode: "auto"}
	}
	return unifiedllm.Retry(ctx, t.policy, func(ctx context.Context) (*unifiedllm.Response, error) {
		return t.client.Complete(ctx, req)
	})
}

func (t *LLMTransport) CountTokens(text string) int {
	return t.counter.Count(text)
}
