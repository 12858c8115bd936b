package components

import (
	"context"

	"github.com/martinemde/autocycle/agentloop"
)

// PromptFunc asks the user a question and returns the answer.
type PromptFunc func(ctx context.Context, question string) (string, error)

// UserInteractionComponent lets the model ask the user questions. It is
// disabled when the agent runs without a user at the terminal.
type UserInteractionComponent struct {
	prompt      PromptFunc
	interactive bool
}

// NewUserInteractionComponent creates the component.
func NewUserInteractionComponent(prompt PromptFunc, interactive bool) *UserInteractionComponent {
	return &UserInteractionComponent{prompt: prompt, interactive: interactive}
}

func (c *UserInteractionComponent) Name() string { return "user_interaction" }

func (c *UserInteractionComponent) Enabled() (bool, string) {
	if !c.interactive || c.prompt == nil {
		return false, "running in non-interactive mode"
	}
	return true, ""
}

func (c *UserInteractionComponent) Commands(ctx context.Context) ([]*agentloop.Command, error) {
	ask := agentloop.MustCommand(
		[]string{"ask_user"},
		"If you need more details or information regarding the given goals, "+
			"you can ask the user for input",
		[]agentloop.CommandParameter{
			agentloop.StringParam("question", "The question or prompt to the user", true),
		},
		func(ctx context.Context, args agentloop.CommandArgs) (any, error) {
			q, _ := args.String("question")
			answer, err := c.prompt(ctx, q)
			if err != nil {
				return nil, err
			}
			return "The user's answer: '" + answer + "'", nil
		},
	)
	return []*agentloop.Command{ask}, nil
}
