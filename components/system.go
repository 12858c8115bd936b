package components

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/martinemde/autocycle/agentloop"
	"github.com/martinemde/autocycle/unifiedllm"
)

// AIProfile describes who the agent is.
type AIProfile struct {
	Name string
	Role string
}

// Directives are the standing rules listed in the system prompt.
type Directives struct {
	Constraints   []string
	Resources     []string
	BestPractices []string
}

// DefaultDirectives returns the stock rules every agent starts with.
func DefaultDirectives() Directives {
	return Directives{
		Constraints: []string{
			"Exclusively use the commands listed below.",
			"You can only act proactively, and are unable to start background jobs or set up webhooks for yourself. Take this into account when planning your actions.",
			"You are unable to interact with physical objects. If this is absolutely necessary to fulfill a task or objective or to complete a step, you must ask the user to do it for you. If the user refuses this, and there is no other way to achieve your goals, you must terminate to avoid wasting time and energy.",
		},
		Resources: []string{
			"You are a Large Language Model, trained on millions of pages of text, including a lot of factual knowledge. Make use of this factual knowledge to avoid unnecessary gathering of information.",
		},
		BestPractices: []string{
			"Continuously review and analyze your actions to ensure you are performing to the best of your abilities.",
			"Constructively self-criticize your big-picture behavior constantly.",
			"Reflect on past decisions and strategies to refine your approach.",
			"Every command has a cost, so be smart and efficient. Aim to complete tasks in the least number of steps.",
			"Only make use of your information gathering abilities to find information that you don't yet have knowledge of.",
		},
	}
}

// SystemComponent contributes the system prompt and the finish command.
type SystemComponent struct {
	Profile    AIProfile
	Directives Directives
	Task       string
	Env        ExecutionEnvironment
	Model      string

	now func() time.Time
}

// NewSystemComponent creates the component. env may be nil, in which case no
// environment block is rendered.
func NewSystemComponent(profile AIProfile, directives Directives, task string, env ExecutionEnvironment, model string) *SystemComponent {
	return &SystemComponent{
		Profile:    profile,
		Directives: directives,
		Task:       task,
		Env:        env,
		Model:      model,
		now:        time.Now,
	}
}

func (c *SystemComponent) Name() string { return "system" }

func (c *SystemComponent) Messages(ctx context.Context) ([]unifiedllm.Message, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, %s.\n\n", c.Profile.Name, strings.TrimSuffix(c.Profile.Role, "."))
	if c.Env != nil {
		sb.WriteString(c.environmentContext())
		sb.WriteString("\n\n")
	}
	writeList(&sb, "Constraints", c.Directives.Constraints)
	writeList(&sb, "Resources", c.Directives.Resources)
	writeList(&sb, "Best practices", c.Directives.BestPractices)

	msgs := []unifiedllm.Message{unifiedllm.SystemMessage(strings.TrimSpace(sb.String()))}
	if c.Task != "" {
		msgs = append(msgs, unifiedllm.UserMessage(`Your task:

"""
`+c.Task+`
"""`))
	}
	return msgs, nil
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "## %s\n", title)
	for i, it := range items {
		fmt.Fprintf(sb, "%d. %s\n", i+1, it)
	}
	sb.WriteString("\n")
}

// environmentContext renders the workspace facts the model should know.
func (c *SystemComponent) environmentContext() string {
	root := c.Env.Root()
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", root)
	if branch := gitBranch(root); branch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", branch)
	}
	fmt.Fprintf(&sb, "Platform: %s\n", c.Env.Platform())
	fmt.Fprintf(&sb, "OS version: %s\n", c.Env.OSVersion())
	fmt.Fprintf(&sb, "Today's date: %s\n", c.now().Format("2006-01-02"))
	if c.Model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", c.Model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

func gitBranch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func (c *SystemComponent) Commands(ctx context.Context) ([]*agentloop.Command, error) {
	finish := agentloop.MustCommand(
		[]string{"finish"},
		"Use this to shut down once you have completed your task, "+
			"or when there are insurmountable problems that make it impossible for you to finish your task.",
		[]agentloop.CommandParameter{
			agentloop.StringParam("reason", "A summary to the user of how the goals were accomplished", true),
		},
		func(ctx context.Context, args agentloop.CommandArgs) (any, error) {
			reason, _ := args.String("reason")
			return nil, &agentloop.AgentTerminatedError{Reason: reason}
		},
	)
	return []*agentloop.Command{finish}, nil
}
