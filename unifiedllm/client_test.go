package unifiedllm

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	response *Response
	err      error
	requests []Request
	closed   bool
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockAdapter) Close() error {
	m.closed = true
	return nil
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:           "resp_1",
			Model:        "gpt-4o-mini",
			Provider:     name,
			Message:      AssistantMessage(text),
			FinishReason: FinishReason{Reason: "stop"},
			Usage:        Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

func TestClientRoutesByProvider(t *testing.T) {
	oa := newMockAdapter("openai", "from openai")
	an := newMockAdapter("anthropic", "from anthropic")
	client := NewClient(WithProvider("openai", oa), WithProvider("anthropic", an), WithDefaultProvider("openai"))

	resp, err := client.Complete(context.Background(), Request{Provider: "anthropic", Messages: []Message{UserMessage("hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "from anthropic" {
		t.Errorf("expected anthropic response, got %q", resp.Text())
	}

	resp, err = client.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "from openai" {
		t.Errorf("expected default provider response, got %q", resp.Text())
	}
	if oa.requests[0].Provider != "openai" {
		t.Errorf("expected provider to be filled in, got %q", oa.requests[0].Provider)
	}
}

func TestClientSingleProviderBecomesDefault(t *testing.T) {
	client := NewClient(WithProvider("only", newMockAdapter("only", "x")))
	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientCatalogRouting(t *testing.T) {
	an := newMockAdapter("anthropic", "claude")
	client := &Client{adapters: map[string]ProviderAdapter{"anthropic": an}}
	resp, err := client.Complete(context.Background(), Request{Model: "claude-haiku-4-5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "claude" {
		t.Errorf("unexpected response %q", resp.Text())
	}
}

func TestClientUnknownProvider(t *testing.T) {
	client := NewClient(WithProvider("openai", newMockAdapter("openai", "x")))
	_, err := client.Complete(context.Background(), Request{Provider: "gemini"})
	var cfg *ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	empty := NewClient()
	if _, err := empty.Complete(context.Background(), Request{Model: "local"}); !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError without providers, got %v", err)
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
			order = append(order, name+":before")
			resp, err := next(ctx, req)
			order = append(order, name+":after")
			return resp, err
		}
	}
	client := NewClient(WithProvider("p", newMockAdapter("p", "x")), WithMiddleware(mw("outer"), mw("inner")))
	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"outer:before", "inner:before", "inner:after", "outer:after"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("middleware order = %v, want %v", order, want)
	}
}

func TestClientProvidersAndClose(t *testing.T) {
	b := newMockAdapter("b", "x")
	a := newMockAdapter("a", "x")
	client := NewClient(WithProvider("b", b))
	client.RegisterProvider("a", a)
	if got := client.Providers(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Providers = %v", got)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("expected every adapter to be closed")
	}
}

func TestClientChargesBudget(t *testing.T) {
	budget := NewBudget(1.0)
	mock := newMockAdapter("openai", "x")
	mock.response.Usage = Usage{InputTokens: 1_000_000, OutputTokens: 0, TotalTokens: 1_000_000}
	client := NewClient(WithProvider("openai", mock), WithBudget(budget))
	if client.Budget() != budget {
		t.Fatal("budget not attached")
	}

	if _, err := client.Complete(context.Background(), Request{Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := budget.Cost(); got < 0.1499 || got > 0.1501 {
		t.Errorf("expected cost 0.15, got %v", got)
	}
	usage, n := budget.Usage()
	if n != 1 || usage.InputTokens != 1_000_000 {
		t.Errorf("unexpected usage %+v after %d completions", usage, n)
	}
	if r := budget.Remaining(); r < 0.8499 || r > 0.8501 {
		t.Errorf("expected 0.85 remaining, got %v", r)
	}
}

func TestClientDoesNotChargeFailures(t *testing.T) {
	budget := NewBudget(0)
	mock := &mockAdapter{name: "p", err: errors.New("down")}
	client := NewClient(WithProvider("p", mock), WithBudget(budget))
	if _, err := client.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}
	if _, n := budget.Usage(); n != 0 {
		t.Errorf("expected no recorded completions, got %d", n)
	}
}

func TestClientLabelsResponses(t *testing.T) {
	budget := NewBudget(0)
	local := ProviderFunc{ID: "local", Fn: func(ctx context.Context, req Request) (*Response, error) {
		return &Response{Message: AssistantMessage("hi"), Usage: Usage{InputTokens: 1_000_000}}, nil
	}}
	client := NewClient(WithProvider("local", local), WithBudget(budget))

	resp, err := client.Complete(context.Background(), Request{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Model != "gpt-4o-mini" || resp.Provider != "local" {
		t.Errorf("response labelled %q/%q", resp.Model, resp.Provider)
	}
	// The request model prices the completion when the provider omits it.
	if got := budget.Cost(); got < 0.1499 || got > 0.1501 {
		t.Errorf("expected cost 0.15, got %v", got)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	ok := NewClient(WithProvider("p", newMockAdapter("p", "x")), WithMiddleware(LoggingMiddleware(logger)))
	if _, err := ok.Complete(context.Background(), Request{Model: "m"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failing := NewClient(WithProvider("p", &mockAdapter{name: "p", err: errors.New("down")}), WithMiddleware(LoggingMiddleware(logger)))
	if _, err := failing.Complete(context.Background(), Request{Model: "m"}); err == nil {
		t.Fatal("expected error")
	}

	if n := logs.FilterMessage("completion").Len(); n != 1 {
		t.Errorf("expected 1 completion log, got %d", n)
	}
	failed := logs.FilterMessage("completion failed").All()
	if len(failed) != 1 || failed[0].Level != zapcore.WarnLevel {
		t.Errorf("expected one warn-level failure log, got %+v", failed)
	}
}

func TestRateLimitMiddlewareAbortsOnCancel(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	client := NewClient(WithProvider("p", newMockAdapter("p", "x")), WithMiddleware(RateLimitMiddleware(limiter)))

	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("first request should pass the burst: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Complete(ctx, Request{})
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %v", err)
	}
}

func TestNewRateLimiterUnlimited(t *testing.T) {
	limiter := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !limiter.Allow() {
			t.Fatalf("unlimited limiter refused request %d", i)
		}
	}
}
