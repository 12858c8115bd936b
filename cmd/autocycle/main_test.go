package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/martinemde/autocycle/agentloop"
	"github.com/martinemde/autocycle/config"
	"github.com/martinemde/autocycle/unifiedllm"
)

// scriptedTransport answers each completion with the next scripted
// response, repeating the last one once the script runs out.
type scriptedTransport struct {
	responses []*unifiedllm.Response
	requests  [][]unifiedllm.Message
}

func (s *scriptedTransport) CreateChatCompletion(ctx context.Context, messages []unifiedllm.Message, functions []unifiedllm.ToolDefinition) (*unifiedllm.Response, error) {
	s.requests = append(s.requests, messages)
	i := min(len(s.requests), len(s.responses)) - 1
	return s.responses[i], nil
}

func (s *scriptedTransport) CountTokens(text string) int { return unifiedllm.EstimateTokens(text) }

func toolCall(thought, name, args string) *unifiedllm.Response {
	return &unifiedllm.Response{Message: unifiedllm.Message{
		Role: unifiedllm.RoleAssistant,
		Content: []unifiedllm.ContentPart{
			unifiedllm.TextPart(`{"thoughts": {"text": "` + thought + `", "speak": "On it."}}`),
			unifiedllm.ToolCallPart("call", name, json.RawMessage(args)),
		},
	}}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Agent.Name = "Scout"
	cfg.Agent.Task = "Count to two"
	cfg.Workspace.Root = t.TempDir()
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "autocycle.db")
	return cfg
}

func newTestSession(t *testing.T, cfg *config.Config, transport agentloop.ModelTransport, input string) (*session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	s, err := newSession(context.Background(), cfg, transport, unifiedllm.NewBudget(0),
		newBufioReader(strings.NewReader(input), &out), &out, zap.NewNop())
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, &out
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		line    string
		want    decision
		wantErr bool
	}{
		{line: "y", want: decision{kind: decisionApprove, count: 1}},
		{line: " Y ", want: decision{kind: decisionApprove, count: 1}},
		{line: "y -5", want: decision{kind: decisionApprove, count: 5}},
		{line: "y -0", wantErr: true},
		{line: "y -many", wantErr: true},
		{line: "n", want: decision{kind: decisionExit}},
		{line: "EXIT", want: decision{kind: decisionExit}},
		{line: "read b.txt instead", want: decision{kind: decisionFeedback, feedback: "read b.txt instead"}},
		{line: "yes please", want: decision{kind: decisionFeedback, feedback: "yes please"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseDecision(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(decision{})); diff != "" {
				t.Errorf("decision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveProvider(t *testing.T) {
	p, err := resolveProvider(config.LLMConfig{Model: "claude-sonnet-4-5"})
	if err != nil || p != "anthropic" {
		t.Errorf("got %q, %v; want anthropic", p, err)
	}
	p, err = resolveProvider(config.LLMConfig{Provider: "ollama", Model: "llama3"})
	if err != nil || p != "ollama" {
		t.Errorf("got %q, %v; want ollama", p, err)
	}
	if _, err := resolveProvider(config.LLMConfig{Model: "mystery-model"}); err == nil {
		t.Error("expected error for unknown model without provider")
	}
}

func TestSendTokenLimit(t *testing.T) {
	if got := sendTokenLimit(5000, "gpt-4o"); got != 5000 {
		t.Errorf("configured limit: got %d", got)
	}
	if got := sendTokenLimit(0, "gpt-4o"); got != 96000 {
		t.Errorf("gpt-4o limit: got %d, want 96000", got)
	}
	if got := sendTokenLimit(0, "unknown"); got != 6144 {
		t.Errorf("fallback limit: got %d, want 6144", got)
	}
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	cmd := newRunCommand()
	for name, value := range map[string]string{
		"task":             "Write a haiku",
		"model":            "claude-haiku-4-5",
		"continuous":       "true",
		"continuous-limit": "4",
		"debug":            "true",
	} {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}
	var flags runFlags
	flags.task, flags.model, flags.continuous, flags.continuousLimit, flags.debug = "Write a haiku", "claude-haiku-4-5", true, 4, true

	cfg := config.Default()
	if err := flags.apply(cmd, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Agent.Task != "Write a haiku" || cfg.LLM.Model != "claude-haiku-4-5" {
		t.Errorf("task/model not applied: %+v %+v", cfg.Agent, cfg.LLM)
	}
	if !cfg.Agent.ContinuousMode || cfg.Agent.ContinuousLimit != 4 {
		t.Errorf("continuous not applied: %+v", cfg.Agent)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Workspace.Root != config.Default().Workspace.Root {
		t.Errorf("unset flag changed workspace to %q", cfg.Workspace.Root)
	}
}

func TestRunFlagsRejectLimitWithoutContinuous(t *testing.T) {
	cmd := newRunCommand()
	if err := cmd.Flags().Set("continuous-limit", "3"); err != nil {
		t.Fatal(err)
	}
	flags := runFlags{continuousLimit: 3}
	if err := flags.apply(cmd, config.Default()); err == nil {
		t.Error("expected error")
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "autocycle dev") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestSessionRunsUntilFinish(t *testing.T) {
	transport := &scriptedTransport{responses: []*unifiedllm.Response{
		toolCall("pick numbers", "random_number", `{"count": 2}`),
		toolCall("all done", "finish", `{"reason": "Counted to two."}`),
	}}
	s, out := newTestSession(t, testConfig(t), transport, "y\ny\n")

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"SCOUT THOUGHTS: pick numbers",
		"NEXT ACTION: COMMAND = random_number  ARGUMENTS = {\"count\":2}",
		"FINISHED: Counted to two.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if len(transport.requests) != 2 {
		t.Errorf("completions = %d, want 2", len(transport.requests))
	}

	eps, err := s.db.Episodes(context.Background(), s.agent.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 1 || eps[0].Action.Name != "random_number" || eps[0].Status != agentloop.StatusSuccess {
		t.Errorf("stored episodes = %+v", eps)
	}
	logs, err := s.db.CycleLogs(context.Background(), s.agent.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) == 0 {
		t.Error("expected cycle logs")
	}
}

func TestSessionSendsFeedback(t *testing.T) {
	transport := &scriptedTransport{responses: []*unifiedllm.Response{
		toolCall("read it", "read_file", `{"filename": "a.txt"}`),
		toolCall("ok", "finish", `{"reason": "Stopped."}`),
	}}
	s, out := newTestSession(t, testConfig(t), transport, "read b.txt instead\ny\n")

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Feedback sent to the agent.") {
		t.Errorf("output:\n%s", out.String())
	}
	second := unifiedllm.MessagesText(transport.requests[1])
	if !strings.Contains(second, "read b.txt instead") {
		t.Errorf("feedback missing from the next prompt:\n%s", second)
	}
}

func TestSessionExit(t *testing.T) {
	transport := &scriptedTransport{responses: []*unifiedllm.Response{
		toolCall("hmm", "random_number", `{}`),
	}}
	s, out := newTestSession(t, testConfig(t), transport, "y -x\nn\n")

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "invalid input format") || !strings.Contains(text, "Exiting...") {
		t.Errorf("output:\n%s", text)
	}
	if len(transport.requests) != 1 {
		t.Errorf("completions = %d, want 1", len(transport.requests))
	}
}

func TestSessionApprovesSeveralCycles(t *testing.T) {
	transport := &scriptedTransport{responses: []*unifiedllm.Response{
		toolCall("again", "random_number", `{}`),
	}}
	// "y -3" covers three cycles, then input ends and the run exits.
	s, _ := newTestSession(t, testConfig(t), transport, "y -3\n")

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(transport.requests) != 4 {
		t.Errorf("completions = %d, want 4", len(transport.requests))
	}
	finished := 0
	for _, ep := range s.history.Episodes() {
		if ep.Result != nil {
			finished++
		}
	}
	if finished != 3 {
		t.Errorf("finished episodes = %d, want 3", finished)
	}
}

func TestSessionContinuousLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.ContinuousMode = true
	cfg.Agent.ContinuousLimit = 2
	transport := &scriptedTransport{responses: []*unifiedllm.Response{
		toolCall("loop", "random_number", `{}`),
	}}
	s, out := newTestSession(t, cfg, transport, "")

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(transport.requests) != 2 {
		t.Errorf("completions = %d, want 2", len(transport.requests))
	}
	if !strings.Contains(out.String(), "Continuous limit reached.") {
		t.Errorf("output:\n%s", out.String())
	}
	// ask_user is not offered without a human at the terminal.
	if s.agent.Commands().Resolve("ask_user") != nil {
		t.Error("ask_user offered in continuous mode")
	}
}

func TestSessionContinuousLimitCountsExecutedCycles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.ContinuousMode = true
	cfg.Agent.ContinuousLimit = 2
	cfg.Agent.MaxParseRetries = 1
	transport := &scriptedTransport{responses: []*unifiedllm.Response{
		{Message: unifiedllm.AssistantMessage("no tool call here")},
		toolCall("loop", "random_number", `{}`),
	}}
	s, out := newTestSession(t, cfg, transport, "")

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// One failed proposal plus two executed cycles.
	if len(transport.requests) != 3 {
		t.Errorf("completions = %d, want 3", len(transport.requests))
	}
	if got := strings.Count(out.String(), "NEXT ACTION"); got != 2 {
		t.Errorf("proposals shown = %d, want 2\n%s", got, out.String())
	}
}

func TestSessionGivesUpAfterRepeatedParseFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.MaxParseRetries = 1
	transport := &scriptedTransport{responses: []*unifiedllm.Response{
		{Message: unifiedllm.AssistantMessage("no tool call here")},
	}}
	s, _ := newTestSession(t, cfg, transport, "")

	err := s.Run(context.Background())
	var exhausted *agentloop.ReparseExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("got %v, want ReparseExhaustedError", err)
	}
	if len(transport.requests) != maxProposalFailures {
		t.Errorf("completions = %d, want %d", len(transport.requests), maxProposalFailures)
	}
}
