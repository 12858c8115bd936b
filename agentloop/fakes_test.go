package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/martinemde/autocycle/unifiedllm"
)

// fakeTransport replays scripted responses and records every request. Token
// counts are whitespace-separated words.
type fakeTransport struct {
	responses []*unifiedllm.Response
	errs      []error
	calls     [][]unifiedllm.Message
	functions [][]unifiedllm.ToolDefinition
}

func (f *fakeTransport) CreateChatCompletion(ctx context.Context, messages []unifiedllm.Message, functions []unifiedllm.ToolDefinition) (*unifiedllm.Response, error) {
	i := len(f.calls)
	f.calls = append(f.calls, append([]unifiedllm.Message(nil), messages...))
	f.functions = append(f.functions, functions)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func (f *fakeTransport) CountTokens(text string) int { return len(strings.Fields(text)) }

func callResponse(name, args string) *unifiedllm.Response {
	return &unifiedllm.Response{Message: unifiedllm.Message{
		Role:    unifiedllm.RoleAssistant,
		Content: []unifiedllm.ContentPart{unifiedllm.ToolCallPart("call_1", name, json.RawMessage(args))},
	}}
}

func textResponse(text string) *unifiedllm.Response {
	return &unifiedllm.Response{Message: unifiedllm.AssistantMessage(text)}
}

var errNoToolCall = errors.New("no tool call in response")

// testComponent implements every hook. Hook calls are appended to log as
// "<name>.<hook>".
type testComponent struct {
	name     string
	disabled string

	messages    []unifiedllm.Message
	messagesErr error
	commands    []*Command
	commandsErr error

	parse           func(out *ThoughtProcessOutput, resp *unifiedllm.Response) error
	afterParsingErr error
	afterExecErr    error

	log     *[]string
	parsed  []*ThoughtProcessOutput
	results []ActionResult
}

func (c *testComponent) Name() string { return c.name }

func (c *testComponent) Enabled() (bool, string) { return c.disabled == "", c.disabled }

func (c *testComponent) record(hook string) {
	if c.log != nil {
		*c.log = append(*c.log, c.name+"."+hook)
	}
}

func (c *testComponent) Messages(ctx context.Context) ([]unifiedllm.Message, error) {
	c.record("messages")
	return c.messages, c.messagesErr
}

func (c *testComponent) Commands(ctx context.Context) ([]*Command, error) {
	c.record("commands")
	return c.commands, c.commandsErr
}

func (c *testComponent) ParseResponse(ctx context.Context, out *ThoughtProcessOutput, resp *unifiedllm.Response) error {
	c.record("parse_response")
	if c.parse == nil {
		return nil
	}
	return c.parse(out, resp)
}

func (c *testComponent) AfterParsing(ctx context.Context, out *ThoughtProcessOutput) error {
	c.record("after_parsing")
	c.parsed = append(c.parsed, out)
	return c.afterParsingErr
}

func (c *testComponent) AfterExecution(ctx context.Context, result ActionResult) error {
	c.record("after_execution")
	c.results = append(c.results, result)
	return c.afterExecErr
}

// parseToolCall reads the command from the response's first tool call.
func parseToolCall(out *ThoughtProcessOutput, resp *unifiedllm.Response) error {
	calls := resp.Message.ToolCalls()
	if len(calls) == 0 {
		return errNoToolCall
	}
	args, err := ParseCommandArgs(calls[0].Arguments)
	if err != nil {
		return err
	}
	out.CommandName = calls[0].Name
	out.CommandArgs = args
	return nil
}

func parserComponent() *testComponent {
	return &testComponent{name: "parser", parse: parseToolCall}
}

func returning(v any) CommandHandler {
	return func(ctx context.Context, args CommandArgs) (any, error) { return v, nil }
}

func failing(err error) CommandHandler {
	return func(ctx context.Context, args CommandArgs) (any, error) { return nil, err }
}

func testSettings() AgentSettings {
	s := DefaultAgentSettings()
	s.Name = "Tester"
	s.ID = "agent-1"
	return s
}

func newTestAgent(t *testing.T, transport ModelTransport, pipeline []Component, opts ...Option) *Agent {
	t.Helper()
	return newTestAgentWith(t, testSettings(), transport, pipeline, opts...)
}

func newTestAgentWith(t *testing.T, settings AgentSettings, transport ModelTransport, pipeline []Component, opts ...Option) *Agent {
	t.Helper()
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	a, err := NewAgent(settings, transport, pipeline, opts...)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func mustPropose(t *testing.T, a *Agent) *ThoughtProcessOutput {
	t.Helper()
	out, err := a.ProposeAction(context.Background())
	if err != nil {
		t.Fatalf("ProposeAction: %v", err)
	}
	return out
}

func messageTexts(msgs []unifiedllm.Message) []string {
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = string(m.Role) + ": " + m.TextContent()
	}
	return texts
}

// recordingCycleLogger keeps records in memory.
type recordingCycleLogger struct {
	records []CycleRecord
	err     error
}

func (r *recordingCycleLogger) LogCycle(ctx context.Context, rec CycleRecord) error {
	r.records = append(r.records, rec)
	return r.err
}
