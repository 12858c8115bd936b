package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/martinemde/autocycle/unifiedllm"
)

// CommandArgs holds the arguments the model chose for a command, keyed by
// parameter name. Values are decoded JSON.
type CommandArgs map[string]any

// ParseCommandArgs decodes raw JSON arguments. Empty input yields empty args.
func ParseCommandArgs(raw json.RawMessage) (CommandArgs, error) {
	args := CommandArgs{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid command arguments: %w", err)
	}
	return args, nil
}

// String returns a string argument.
func (a CommandArgs) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringOr returns a string argument or def when absent.
func (a CommandArgs) StringOr(key, def string) string {
	if s, ok := a.String(key); ok {
		return s
	}
	return def
}

// Int returns an integer argument. Numeric strings are accepted since models
// often quote numbers.
func (a CommandArgs) Int(key string) (int, bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, true, fmt.Errorf("%s is out of range", key)
		}
		return int(n), true, nil
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, true, fmt.Errorf("%s must be an integer", key)
		}
		return int(i), true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, true, fmt.Errorf("%s must be an integer, got %q", key, n)
		}
		return i, true, nil
	}
	return 0, true, fmt.Errorf("%s must be an integer", key)
}

// IntOr returns an integer argument or def when absent.
func (a CommandArgs) IntOr(key string, def int) (int, error) {
	n, ok, err := a.Int(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return n, nil
}

// Bool returns a boolean argument.
func (a CommandArgs) Bool(key string) (bool, bool) {
	v, ok := a[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Strings returns a list-of-strings argument. A single string is split on
// whitespace.
func (a CommandArgs) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			out = append(out, fmt.Sprint(x))
		}
		return out
	case string:
		return strings.Fields(v)
	}
	return nil
}

// checkType reports whether the argument under key is usable as the JSON
// schema type typ. Integers may arrive as numeric strings and lists as a
// single whitespace-separated string, matching Int and Strings.
func (a CommandArgs) checkType(key, typ string) error {
	v := a[key]
	ok := true
	switch typ {
	case "string":
		_, ok = v.(string)
	case "integer":
		if f, isFloat := v.(float64); isFloat && f != math.Trunc(f) {
			return fmt.Errorf("argument '%s' must be an integer, got %v", key, f)
		}
		if _, _, err := a.Int(key); err != nil {
			return err
		}
	case "number":
		switch v.(type) {
		case float64, int, int64, json.Number:
		default:
			ok = false
		}
	case "boolean":
		_, ok = v.(bool)
	case "array":
		switch v.(type) {
		case []any, []string, string:
		default:
			ok = false
		}
	case "object":
		_, ok = v.(map[string]any)
	}
	if !ok {
		article := "a"
		if strings.IndexByte("aeiou", typ[0]) >= 0 {
			article = "an"
		}
		return fmt.Errorf("argument '%s' must be %s %s", key, article, typ)
	}
	return nil
}

// CommandParameter declares one named argument of a command.
type CommandParameter struct {
	Name     string
	Schema   map[string]any
	Required bool
}

// StringParam declares a string parameter.
func StringParam(name, description string, required bool) CommandParameter {
	return CommandParameter{Name: name, Required: required, Schema: map[string]any{
		"type": "string", "description": description,
	}}
}

// IntegerParam declares an integer parameter.
func IntegerParam(name, description string, required bool) CommandParameter {
	return CommandParameter{Name: name, Required: required, Schema: map[string]any{
		"type": "integer", "description": description,
	}}
}

// BoolParam declares a boolean parameter.
func BoolParam(name, description string, required bool) CommandParameter {
	return CommandParameter{Name: name, Required: required, Schema: map[string]any{
		"type": "boolean", "description": description,
	}}
}

// StringListParam declares an array-of-strings parameter.
func StringListParam(name, description string, required bool) CommandParameter {
	return CommandParameter{Name: name, Required: required, Schema: map[string]any{
		"type": "array", "description": description, "items": map[string]any{"type": "string"},
	}}
}

// CommandHandler runs a command.
type CommandHandler func(ctx context.Context, args CommandArgs) (any, error)

// Command is a named, schema-described operation the model can choose.
type Command struct {
	Names       []string
	Description string
	Parameters  []CommandParameter
	Handler     CommandHandler

	// Validator, when set, is consulted after parsing and before execution.
	Validator func(args CommandArgs) (bool, string)
}

// NewCommand builds a Command. names must be non-empty and free of
// duplicates.
func NewCommand(names []string, description string, params []CommandParameter, handler CommandHandler) (*Command, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("command needs at least one name")
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			return nil, fmt.Errorf("command name must not be empty")
		}
		if seen[n] {
			return nil, fmt.Errorf("command %s: duplicate name %q", names[0], n)
		}
		seen[n] = true
	}
	if handler == nil {
		return nil, fmt.Errorf("command %s: nil handler", names[0])
	}
	return &Command{
		Names:       append([]string(nil), names...),
		Description: description,
		Parameters:  params,
		Handler:     handler,
	}, nil
}

// MustCommand is like NewCommand but panics on an invalid definition. It is
// meant for commands declared in code.
func MustCommand(names []string, description string, params []CommandParameter, handler CommandHandler) *Command {
	c, err := NewCommand(names, description, params, handler)
	if err != nil {
		panic(err)
	}
	return c
}

// WithValidator sets the validity predicate and returns c.
func (c *Command) WithValidator(v func(CommandArgs) (bool, string)) *Command {
	c.Validator = v
	return c
}

// Name returns the primary name.
func (c *Command) Name() string { return c.Names[0] }

// HasName reports whether name is one of the command's aliases.
func (c *Command) HasName(name string) bool {
	for _, n := range c.Names {
		if n == name {
			return true
		}
	}
	return false
}

// IsValid runs the validity predicate. Commands without one are always valid.
func (c *Command) IsValid(args CommandArgs) (bool, string) {
	if c.Validator == nil {
		return true, ""
	}
	return c.Validator(args)
}

// Call binds args to the declared parameters and runs the handler. Missing
// required and undeclared arguments are rejected before the handler runs.
func (c *Command) Call(ctx context.Context, args CommandArgs) (any, error) {
	if args == nil {
		args = CommandArgs{}
	}
	declared := make(map[string]bool, len(c.Parameters))
	for _, p := range c.Parameters {
		declared[p.Name] = true
		v, ok := args[p.Name]
		if p.Required && !ok {
			return nil, InvalidArgumentError("%s: missing required argument '%s'", c.Name(), p.Name)
		}
		if typ, _ := p.Schema["type"].(string); ok && v != nil {
			if err := args.checkType(p.Name, typ); err != nil {
				return nil, InvalidArgumentError("%s: %v", c.Name(), err)
			}
		}
	}
	var unknown []string
	for k := range args {
		if !declared[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, InvalidArgumentError("%s: unexpected argument(s) %s", c.Name(), strings.Join(unknown, ", "))
	}
	return c.Handler(ctx, args)
}

// Spec renders the command as a function definition under the given name.
func (c *Command) Spec(name string) unifiedllm.ToolDefinition {
	props := make(map[string]any, len(c.Parameters))
	required := []string{}
	for _, p := range c.Parameters {
		props[p.Name] = p.Schema
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return unifiedllm.ToolDefinition{
		Name:        name,
		Description: c.Description,
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// String renders the command the way prompts list it:
// name(param: type, ...): description.
func (c *Command) String() string {
	params := make([]string, 0, len(c.Parameters))
	for _, p := range c.Parameters {
		typ, _ := p.Schema["type"].(string)
		opt := ""
		if !p.Required {
			opt = "?"
		}
		params = append(params, fmt.Sprintf("%s%s: %s", p.Name, opt, typ))
	}
	return fmt.Sprintf("%s(%s): %s", c.Name(), strings.Join(params, ", "), c.Description)
}
