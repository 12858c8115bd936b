package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"

	"github.com/martinemde/autocycle/agentloop"
)

var (
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F39C12")).Bold(true)
	commandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ECC71")).Bold(true)
	speakStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3498DB"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C"))
	systemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7B8794")).Italic(true)
)

// lineReader reads one line of user input after showing prompt.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

type bufioReader struct {
	r   *bufio.Reader
	out io.Writer
}

func newBufioReader(in io.Reader, out io.Writer) *bufioReader {
	return &bufioReader{r: bufio.NewReader(in), out: out}
}

func (b *bufioReader) ReadLine(prompt string) (string, error) {
	fmt.Fprint(b.out, prompt)
	line, err := b.r.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (b *bufioReader) Close() error { return nil }

type readlineReader struct {
	rl *readline.Instance
}

func (r *readlineReader) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", io.EOF
	}
	return line, err
}

func (r *readlineReader) Close() error { return r.rl.Close() }

// newLineReader uses readline on the process's own stdin and falls back to
// plain buffered input.
func newLineReader(in io.Reader, out io.Writer) lineReader {
	if in == os.Stdin {
		rl, err := readline.NewEx(&readline.Config{
			HistoryFile:     filepath.Join(os.TempDir(), ".autocycle_history"),
			HistoryLimit:    100,
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err == nil {
			return &readlineReader{rl: rl}
		}
		fmt.Fprintf(out, "readline unavailable (%v), using simple input\n", err)
	}
	return newBufioReader(in, out)
}

type decisionKind int

const (
	decisionApprove decisionKind = iota
	decisionExit
	decisionFeedback
)

type decision struct {
	kind     decisionKind
	count    int
	feedback string
}

var errBadApproval = errors.New("invalid input format: enter 'y -N' where N is the number of continuous tasks")

// parseDecision interprets an answer to the authorisation prompt: "y" or
// "y -N" approves, "n" or "exit" stops, anything else is feedback.
func parseDecision(line string) (decision, error) {
	answer := strings.TrimSpace(line)
	lower := strings.ToLower(answer)
	switch {
	case lower == "y":
		return decision{kind: decisionApprove, count: 1}, nil
	case strings.HasPrefix(lower, "y -"):
		n, err := strconv.Atoi(strings.TrimSpace(lower[3:]))
		if err != nil || n < 1 {
			return decision{}, errBadApproval
		}
		return decision{kind: decisionApprove, count: n}, nil
	case lower == "n" || lower == "exit":
		return decision{kind: decisionExit}, nil
	default:
		return decision{kind: decisionFeedback, feedback: answer}, nil
	}
}

func printProposal(w io.Writer, agentName string, p *agentloop.ThoughtProcessOutput) {
	if text := thoughtText(p.Thoughts["text"]); text != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render(strings.ToUpper(agentName)+" THOUGHTS:"), text)
	}
	if reasoning := thoughtText(p.Thoughts["reasoning"]); reasoning != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("REASONING:"), reasoning)
	}
	if plan := planLines(p.Thoughts["plan"]); len(plan) > 0 {
		fmt.Fprintln(w, labelStyle.Render("PLAN:"))
		for _, line := range plan {
			fmt.Fprintf(w, "- %s\n", line)
		}
	}
	if criticism := thoughtText(p.Thoughts["self_criticism"]); criticism != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("CRITICISM:"), criticism)
	}
	if speak := p.Speak(); speak != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("SPEAK:"), speakStyle.Render(speak))
	}

	args, err := json.Marshal(map[string]any(p.CommandArgs))
	if err != nil {
		args = []byte(fmt.Sprint(map[string]any(p.CommandArgs)))
	}
	fmt.Fprintf(w, "\n%s COMMAND = %s  ARGUMENTS = %s\n",
		labelStyle.Render("NEXT ACTION:"), commandStyle.Render(p.CommandName), args)
}

func printResult(w io.Writer, result agentloop.ActionResult) {
	switch r := result.(type) {
	case *agentloop.ActionErrorResult:
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render("Command failed:"), r.String())
	case *agentloop.ActionInterruptedByHuman:
		fmt.Fprintln(w, systemStyle.Render("Feedback sent to the agent."))
	default:
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("SYSTEM:"), result.String())
	}
}

func thoughtText(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func planLines(v any) []string {
	switch plan := v.(type) {
	case string:
		var lines []string
		for _, l := range strings.Split(plan, "\n") {
			if l = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(l), "-")); l != "" {
				lines = append(lines, l)
			}
		}
		return lines
	case []string:
		return plan
	case []any:
		lines := make([]string, 0, len(plan))
		for _, item := range plan {
			lines = append(lines, fmt.Sprint(item))
		}
		return lines
	}
	return nil
}
