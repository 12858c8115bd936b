package unifiedllm

import (
	"encoding/json"
	"testing"
)

func TestMessageTextAndToolCalls(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			TextPart("thinking "),
			ThinkingPart("hidden"),
			ToolCallPart("c1", "write_file", json.RawMessage(`{"path":"a.txt"}`)),
			TextPart("aloud"),
		},
	}
	if got := msg.TextContent(); got != "thinking aloud" {
		t.Errorf("TextContent = %q", got)
	}
	calls := msg.ToolCalls()
	if len(calls) != 1 || calls[0].Name != "write_file" || calls[0].ID != "c1" {
		t.Errorf("unexpected tool calls: %+v", calls)
	}

	resp := Response{Message: msg}
	if resp.Reasoning() != "hidden" {
		t.Errorf("Reasoning = %q", resp.Reasoning())
	}
	if got := resp.ToolCallsFromResponse(); len(got) != 1 || string(got[0].Arguments) != `{"path":"a.txt"}` {
		t.Errorf("unexpected response tool calls: %+v", got)
	}
}

func TestToolResultMessage(t *testing.T) {
	msg := ToolResultMessage("c9", "done", true)
	if msg.Role != RoleTool || msg.ToolCallID != "c9" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Content[0].ToolResult == nil || !msg.Content[0].ToolResult.IsError {
		t.Error("expected error tool result part")
	}
}

func TestUsageAdd(t *testing.T) {
	u := Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}.Add(Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})
	if u != (Usage{InputTokens: 11, OutputTokens: 22, TotalTokens: 33}) {
		t.Errorf("unexpected sum %+v", u)
	}
}

func TestMessagesText(t *testing.T) {
	msgs := []Message{
		SystemMessage("be brief"),
		UserMessage("hi"),
		{Role: RoleAssistant, Content: []ContentPart{ToolCallPart("1", "ask_user", json.RawMessage(`{"question":"?"}`))}},
	}
	want := "system: be brief\nuser: hi\nassistant:  [call ask_user{\"question\":\"?\"}]"
	if got := MessagesText(msgs); got != want {
		t.Errorf("MessagesText =\n%q\nwant\n%q", got, want)
	}
}
