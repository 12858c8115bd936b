package components

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/autocycle/agentloop"
	"github.com/martinemde/autocycle/unifiedllm"
)

func assistantResponse(text string, calls ...unifiedllm.ContentPart) *unifiedllm.Response {
	msg := unifiedllm.Message{Role: unifiedllm.RoleAssistant}
	if text != "" {
		msg.Content = append(msg.Content, unifiedllm.TextPart(text))
	}
	msg.Content = append(msg.Content, calls...)
	return &unifiedllm.Response{Message: msg}
}

func TestOneShotSchema(t *testing.T) {
	var withFunctions, withoutFunctions map[string]any
	require.NoError(t, json.Unmarshal([]byte(NewOneShotComponent(true).Schema()), &withFunctions))
	require.NoError(t, json.Unmarshal([]byte(NewOneShotComponent(false).Schema()), &withoutFunctions))

	props := withFunctions["properties"].(map[string]any)
	assert.Contains(t, props, "thoughts")
	assert.NotContains(t, props, "command")
	thoughts := props["thoughts"].(map[string]any)["properties"].(map[string]any)
	assert.Contains(t, thoughts, "self_criticism")

	assert.Contains(t, withoutFunctions["properties"].(map[string]any), "command")
}

func TestOneShotParsesToolCall(t *testing.T) {
	c := NewOneShotComponent(true)
	resp := assistantResponse(
		`{"thoughts": {"text": "look first", "speak": "Reading the file."}}`,
		unifiedllm.ToolCallPart("call_1", "read_file", json.RawMessage(`{"filename": "a.txt"}`)),
	)

	out := agentloop.NewThoughtProcessOutput()
	require.NoError(t, c.ParseResponse(context.Background(), out, resp))
	assert.Equal(t, "read_file", out.CommandName)
	assert.Equal(t, agentloop.CommandArgs{"filename": "a.txt"}, out.CommandArgs)
	assert.Equal(t, "look first", out.Thoughts["text"])
	assert.Equal(t, "Reading the file.", out.Speak())
}

func TestOneShotToleratesPlainTextBeforeToolCall(t *testing.T) {
	c := NewOneShotComponent(true)
	resp := assistantResponse("I'll list the folder.", unifiedllm.ToolCallPart("c", "list_folder", json.RawMessage(`{"folder": "."}`)))

	out := agentloop.NewThoughtProcessOutput()
	require.NoError(t, c.ParseResponse(context.Background(), out, resp))
	assert.Equal(t, "list_folder", out.CommandName)
	assert.Equal(t, "I'll list the folder.", out.Thoughts["text"])
}

func TestOneShotRequiresToolCall(t *testing.T) {
	c := NewOneShotComponent(true)
	err := c.ParseResponse(context.Background(), agentloop.NewThoughtProcessOutput(), assistantResponse(`{"thoughts": {}}`))
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestOneShotParsesCommandObject(t *testing.T) {
	c := NewOneShotComponent(false)
	text := "Here is my answer:\n```json\n" +
		`{"thoughts": {"reasoning": "need data"}, "command": {"name": "random_number", "args": {"count": 2}}}` +
		"\n```"

	out := agentloop.NewThoughtProcessOutput()
	require.NoError(t, c.ParseResponse(context.Background(), out, assistantResponse(text)))
	assert.Equal(t, "random_number", out.CommandName)
	assert.Equal(t, agentloop.CommandArgs{"count": float64(2)}, out.CommandArgs)
	assert.Equal(t, "need data", out.Thoughts["reasoning"])
}

func TestOneShotParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "I think I should read the file"},
		{"no command", `{"thoughts": {"text": "hmm"}}`},
		{"command without name", `{"thoughts": {}, "command": {"args": {}}}`},
		{"args not object", `{"thoughts": {}, "command": {"name": "x", "args": [1]}}`},
		{"truncated json", `{"thoughts": {"text": "hmm"}, "command": {"name": "x"`},
	}
	c := NewOneShotComponent(false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ParseResponse(context.Background(), agentloop.NewThoughtProcessOutput(), assistantResponse(tt.text))
			assert.Error(t, err)
		})
	}
}

func TestOneShotMessages(t *testing.T) {
	ctx := context.Background()

	msgs, err := NewOneShotComponent(true).Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].TextContent(), "YOU MUST ALWAYS RESPOND WITH A FUNCTION CALL")
	assert.NotContains(t, msgs[0].TextContent(), "## Commands")

	c := NewOneShotComponent(false)
	shadowed := agentloop.MustCommand([]string{"dup"}, "first", nil, noop)
	winner := agentloop.MustCommand([]string{"dup"}, "second", nil, noop)
	other := agentloop.MustCommand([]string{"other"}, "third", []agentloop.CommandParameter{
		agentloop.StringParam("q", "query", true),
	}, noop)
	reg := agentloop.NewCommandRegistry([]*agentloop.Command{shadowed, winner, other})
	c.UseCommands(func() *agentloop.CommandRegistry { return reg })

	msgs, err = c.Messages(ctx)
	require.NoError(t, err)
	text := msgs[0].TextContent()
	assert.Contains(t, text, "1. dup(): second\n2. other(q: string): third\n")
	assert.NotContains(t, text, "first")
}

func noop(ctx context.Context, args agentloop.CommandArgs) (any, error) { return nil, errors.New("unused") }
