package unifiedllm

import (
	"errors"
	"testing"
)

func TestExtractToolCallsWrapper(t *testing.T) {
	text := `I will write the file. {"tool_calls":[{"name":"write_file","arguments":{"path":"a.txt","contents":"hi"}}]}`
	calls, rest := extractToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "write_file" || string(calls[0].Arguments) != `{"path":"a.txt","contents":"hi"}` {
		t.Errorf("unexpected call %+v", calls[0])
	}
	if calls[0].ID == "" {
		t.Error("expected generated call id")
	}
	if rest != "I will write the file. " {
		t.Errorf("unexpected remaining text %q", rest)
	}
}

func TestExtractToolCallsArrayWithStringArguments(t *testing.T) {
	text := `[{"name":"ask_user","arguments":"{\"question\":\"why?\"}"}]`
	calls, rest := extractToolCalls(text)
	if len(calls) != 1 || string(calls[0].Arguments) != `{"question":"why?"}` {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if rest != "" {
		t.Errorf("expected no remaining text, got %q", rest)
	}
}

func TestExtractToolCallsPlainText(t *testing.T) {
	calls, rest := extractToolCalls("just words")
	if calls != nil || rest != "just words" {
		t.Errorf("expected passthrough, got %v %q", calls, rest)
	}
}

func TestGollmBuildResponse(t *testing.T) {
	a := &GollmAdapter{provider: "openai", model: "gpt-4o-mini"}
	resp := a.buildResponse(Request{Messages: []Message{UserMessage("hello there")}}, `[{"name":"finish","arguments":{"reason":"done"}}]`)
	if resp.FinishReason.Reason != "tool_calls" {
		t.Errorf("expected tool_calls finish, got %q", resp.FinishReason.Reason)
	}
	if resp.Model != "gpt-4o-mini" || resp.Provider != "openai" {
		t.Errorf("unexpected model/provider %q/%q", resp.Model, resp.Provider)
	}
	if calls := resp.ToolCallsFromResponse(); len(calls) != 1 || calls[0].Name != "finish" {
		t.Errorf("unexpected calls %+v", calls)
	}
	if resp.Usage.TotalTokens != resp.Usage.InputTokens+resp.Usage.OutputTokens {
		t.Errorf("inconsistent usage %+v", resp.Usage)
	}
}

func TestClassifyTextError(t *testing.T) {
	tests := []struct {
		msg   string
		check func(error) bool
	}{
		{"API error 401: bad key", func(e error) bool { var x *AuthenticationError; return errors.As(e, &x) }},
		{"status 429 too many requests", func(e error) bool { var x *RateLimitError; return errors.As(e, &x) }},
		{"Rate limit reached", func(e error) bool { var x *RateLimitError; return errors.As(e, &x) }},
		{"maximum context length exceeded", func(e error) bool { var x *ContextLengthError; return errors.As(e, &x) }},
		{"request timeout", func(e error) bool { var x *RequestTimeoutError; return errors.As(e, &x) }},
		{"blocked by safety system", func(e error) bool { var x *ContentFilterError; return errors.As(e, &x) }},
		{"dial tcp: connection refused", func(e error) bool { var x *NetworkError; return errors.As(e, &x) }},
		{"something odd", func(e error) bool { var x *ProviderError; return errors.As(e, &x) && x.Retryable }},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := classifyTextError("openai", errors.New(tt.msg))
			if !tt.check(err) {
				t.Errorf("unexpected classification %T for %q", err, tt.msg)
			}
		})
	}
}
