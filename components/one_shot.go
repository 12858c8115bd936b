package components

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"

	"github.com/martinemde/autocycle/agentloop"
	"github.com/martinemde/autocycle/unifiedllm"
)

// AssistantThoughts is the reasoning the model reports with every action.
type AssistantThoughts struct {
	Observations  string   `json:"observations" jsonschema:"description=Relevant observations from your last action (if any)"`
	Text          string   `json:"text" jsonschema:"description=Thoughts"`
	Reasoning     string   `json:"reasoning"`
	SelfCriticism string   `json:"self_criticism" jsonschema:"description=Constructive self-criticism"`
	Plan          []string `json:"plan" jsonschema:"description=Short list that conveys the long-term plan"`
	Speak         string   `json:"speak" jsonschema:"description=Summary of thoughts to say to the user"`
}

type commandCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type thoughtsResponse struct {
	Thoughts AssistantThoughts `json:"thoughts"`
}

type thoughtsAndCommandResponse struct {
	Thoughts AssistantThoughts `json:"thoughts"`
	Command  commandCall       `json:"command"`
}

// ErrNoCommand is returned when a response names no command.
var ErrNoCommand = errors.New("assistant did not use a tool")

// OneShotComponent tells the model how to answer and parses the answer into
// the cycle's proposal. With the functions API the command comes from the
// tool call; otherwise it is the "command" object of the JSON reply.
type OneShotComponent struct {
	useFunctions bool
	commands     func() *agentloop.CommandRegistry
	schema       string
}

// NewOneShotComponent creates the component.
func NewOneShotComponent(useFunctions bool) *OneShotComponent {
	var target any = &thoughtsResponse{}
	if !useFunctions {
		target = &thoughtsAndCommandResponse{}
	}
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	b, err := json.MarshalIndent(r.Reflect(target), "", "  ")
	if err != nil {
		panic(fmt.Sprintf("response schema: %v", err))
	}
	return &OneShotComponent{useFunctions: useFunctions, schema: string(b)}
}

// UseCommands sets where the prompt's command list comes from when the
// functions API is off. Pass the agent's Commands method.
func (c *OneShotComponent) UseCommands(src func() *agentloop.CommandRegistry) {
	c.commands = src
}

func (c *OneShotComponent) Name() string { return "one_shot" }

// Schema returns the JSON schema of the expected reply.
func (c *OneShotComponent) Schema() string { return c.schema }

func (c *OneShotComponent) Messages(ctx context.Context) ([]unifiedllm.Message, error) {
	var sb strings.Builder
	if !c.useFunctions && c.commands != nil {
		sb.WriteString("## Commands\nThese are the ONLY commands you can use. Any action you perform must be possible through one of these commands:\n")
		for i, cmd := range reachable(c.commands()) {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, cmd)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("## RESPONSE FORMAT\n")
	if c.useFunctions {
		sb.WriteString("YOU MUST ALWAYS RESPOND WITH A FUNCTION CALL. ")
	}
	sb.WriteString("Respond strictly with JSON. The JSON should be compatible with this schema:\n```json\n")
	sb.WriteString(c.schema)
	sb.WriteString("\n```")
	return []unifiedllm.Message{unifiedllm.SystemMessage(sb.String())}, nil
}

func reachable(reg *agentloop.CommandRegistry) []*agentloop.Command {
	if reg == nil {
		return nil
	}
	var out []*agentloop.Command
	obscured := map[*agentloop.Command]bool{}
	for _, cmd := range reg.FindObscured() {
		obscured[cmd] = true
	}
	for _, cmd := range reg.Commands() {
		if !obscured[cmd] {
			out = append(out, cmd)
		}
	}
	return out
}

func (c *OneShotComponent) ParseResponse(ctx context.Context, out *agentloop.ThoughtProcessOutput, resp *unifiedllm.Response) error {
	text := strings.TrimSpace(resp.Text())
	out.Text = text
	calls := resp.ToolCallsFromResponse()

	raw, found := extractJSONObject(text)
	switch {
	case found:
		if th := gjson.Get(raw, "thoughts"); th.IsObject() {
			if m, ok := th.Value().(map[string]any); ok {
				out.Thoughts = m
			}
		}
	case text != "" && !(c.useFunctions && len(calls) > 0):
		return fmt.Errorf("response is not valid JSON: %q", truncateForError(text))
	case text != "":
		// A plain-text preamble before a function call.
		out.Thoughts = map[string]any{"text": text}
	}

	if c.useFunctions {
		if len(calls) == 0 {
			return ErrNoCommand
		}
		args, err := agentloop.ParseCommandArgs(calls[0].Arguments)
		if err != nil {
			return err
		}
		out.CommandName = calls[0].Name
		out.CommandArgs = args
		return nil
	}

	cmd := gjson.Get(raw, "command")
	name := gjson.Get(raw, "command.name").String()
	if !found || !cmd.IsObject() || name == "" {
		return fmt.Errorf("%w: the response has no 'command' object with a 'name'", ErrNoCommand)
	}
	args := agentloop.CommandArgs{}
	if a := gjson.Get(raw, "command.args"); a.Exists() {
		m, ok := a.Value().(map[string]any)
		if !ok {
			return fmt.Errorf("'command.args' must be an object, got %s", a.Type)
		}
		args = m
	}
	out.CommandName = name
	out.CommandArgs = args
	return nil
}

// extractJSONObject finds the outermost JSON object in text, which may be
// wrapped in a code fence or surrounded by prose.
func extractJSONObject(text string) (string, bool) {
	if gjson.Valid(text) && gjson.Parse(text).IsObject() {
		return text, true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	candidate := text[start : end+1]
	if !gjson.Valid(candidate) {
		return "", false
	}
	return candidate, true
}

func truncateForError(s string) string {
	return agentloop.TruncateOutput(s, 200, agentloop.TruncateHeadTail)
}
