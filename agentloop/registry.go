package agentloop

import (
	"context"
	"fmt"

	"github.com/sahilm/fuzzy"

	"github.com/martinemde/autocycle/unifiedllm"
)

// CommandRegistry is the ordered snapshot of the commands contributed in one
// cycle. When names collide the command later in the sequence wins.
type CommandRegistry struct {
	commands []*Command
}

// NewCommandRegistry creates a registry over commands, in pipeline order.
func NewCommandRegistry(commands []*Command) *CommandRegistry {
	return &CommandRegistry{commands: append([]*Command(nil), commands...)}
}

// Commands returns the commands in pipeline order.
func (r *CommandRegistry) Commands() []*Command {
	return append([]*Command(nil), r.commands...)
}

// Len returns the number of commands, obscured ones included.
func (r *CommandRegistry) Len() int { return len(r.commands) }

// Resolve returns the last command having name as an alias, or nil.
func (r *CommandRegistry) Resolve(name string) *Command {
	for i := len(r.commands) - 1; i >= 0; i-- {
		if r.commands[i].HasName(name) {
			return r.commands[i]
		}
	}
	return nil
}

// FindObscured returns, in pipeline order, the commands whose every alias is
// also an alias of some later command.
func (r *CommandRegistry) FindObscured() []*Command {
	seen := make(map[string]bool)
	var obscured []*Command
	for i := len(r.commands) - 1; i >= 0; i-- {
		cmd := r.commands[i]
		all := true
		for _, n := range cmd.Names {
			if !seen[n] {
				all = false
				break
			}
		}
		if all {
			obscured = append(obscured, cmd)
			continue
		}
		for _, n := range cmd.Names {
			seen[n] = true
		}
	}
	for i, j := 0, len(obscured)-1; i < j; i, j = i+1, j-1 {
		obscured[i], obscured[j] = obscured[j], obscured[i]
	}
	return obscured
}

// Specs returns one function definition per reachable command, named by its
// first alias that still resolves to it.
func (r *CommandRegistry) Specs() []unifiedllm.ToolDefinition {
	var specs []unifiedllm.ToolDefinition
	for _, cmd := range r.commands {
		for _, n := range cmd.Names {
			if r.Resolve(n) == cmd {
				specs = append(specs, cmd.Spec(n))
				break
			}
		}
	}
	return specs
}

// Execute resolves name and calls the command. Agent errors and the
// termination signal pass through unchanged; any other failure is wrapped as
// a command execution error.
func (r *CommandRegistry) Execute(ctx context.Context, name string, args CommandArgs) (any, error) {
	cmd := r.Resolve(name)
	if cmd == nil {
		err := UnknownCommandError(name)
		if s := r.Suggest(name); s != "" {
			err.Hint = fmt.Sprintf("Did you mean '%s'?", s)
		}
		return nil, err
	}
	out, err := cmd.Call(ctx, args)
	if err == nil {
		return out, nil
	}
	if IsTerminated(err) {
		return nil, err
	}
	if _, ok := AsAgentError(err); ok {
		return nil, err
	}
	return nil, CommandExecutionError(err)
}

// Suggest returns the reachable command name closest to name, or "" when
// nothing is similar.
func (r *CommandRegistry) Suggest(name string) string {
	var names []string
	for _, spec := range r.Specs() {
		names = append(names, spec.Name)
	}
	matches := fuzzy.Find(name, names)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}
