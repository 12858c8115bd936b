package agentloop

import (
	"context"
	"fmt"

	"github.com/martinemde/autocycle/unifiedllm"
)

// Component is any value placed in an agent's pipeline. Its capabilities are
// the optional interfaces below; a component that implements none of them is
// simply inert.
type Component any

// MessageProvider contributes prompt messages each cycle.
type MessageProvider interface {
	Messages(ctx context.Context) ([]unifiedllm.Message, error)
}

// CommandProvider contributes commands each cycle.
type CommandProvider interface {
	Commands(ctx context.Context) ([]*Command, error)
}

// ResponseParser folds the model response into the cycle's output.
type ResponseParser interface {
	ParseResponse(ctx context.Context, out *ThoughtProcessOutput, resp *unifiedllm.Response) error
}

// AfterParsingObserver sees every successfully parsed proposal.
type AfterParsingObserver interface {
	AfterParsing(ctx context.Context, out *ThoughtProcessOutput) error
}

// ExecutionObserver sees the final result of every execution.
type ExecutionObserver interface {
	AfterExecution(ctx context.Context, result ActionResult) error
}

// Named gives a component a stable name for logs and PipelineOrder.
type Named interface {
	Name() string
}

// Toggleable components may be switched off. A disabled component is skipped
// by every hook.
type Toggleable interface {
	Enabled() (bool, string)
}

// ComponentName returns c's name, or its type when it has none.
func ComponentName(c Component) string {
	if n, ok := c.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", c)
}

func componentEnabled(c Component) (bool, string) {
	if t, ok := c.(Toggleable); ok {
		return t.Enabled()
	}
	return true, ""
}
