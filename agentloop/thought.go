package agentloop

import "fmt"

// ThoughtProcessOutput accumulates one cycle's parsed proposal. Every
// ResponseParser receives the same value in pipeline order.
type ThoughtProcessOutput struct {
	Text        string
	Thoughts    map[string]any
	CommandName string
	CommandArgs CommandArgs
}

// NewThoughtProcessOutput returns an empty accumulator.
func NewThoughtProcessOutput() *ThoughtProcessOutput {
	return &ThoughtProcessOutput{Thoughts: map[string]any{}, CommandArgs: CommandArgs{}}
}

// Speak returns the "speak" thought, if the model gave one.
func (o *ThoughtProcessOutput) Speak() string {
	if s, ok := o.Thoughts["speak"].(string); ok {
		return s
	}
	return ""
}

func (o *ThoughtProcessOutput) String() string {
	return fmt.Sprintf("%s(%v)", o.CommandName, map[string]any(o.CommandArgs))
}
