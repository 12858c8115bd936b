package components

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/martinemde/autocycle/agentloop"
	"github.com/martinemde/autocycle/unifiedllm"
)

// EpisodeAction is the command an episode ran and why.
type EpisodeAction struct {
	Name      string         `json:"name"`
	Args      map[string]any `json:"args"`
	Reasoning string         `json:"reasoning"`
}

// Format renders the action as a call expression.
func (a EpisodeAction) Format() string {
	args, _ := json.Marshal(a.Args)
	if len(a.Args) == 0 {
		args = []byte("{}")
	}
	return fmt.Sprintf("%s(%s)", a.Name, args)
}

// Episode is one cycle of history: a proposed action and, once executed, its
// result.
type Episode struct {
	Cycle  int
	Action EpisodeAction
	Result agentloop.ActionResult
}

// EpisodeStore persists finished episodes.
type EpisodeStore interface {
	SaveEpisode(ctx context.Context, agentID string, ep Episode) error
}

// HistoryConfig bounds the progress message.
type HistoryConfig struct {
	// MaxTokens caps the rendered progress section.
	MaxTokens int
	// FullMessageCount is how many recent episodes keep their complete output.
	FullMessageCount int
	// OlderResultTokens caps the output of each older episode.
	OlderResultTokens int
}

// DefaultHistoryConfig returns the limits used when none are configured.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{MaxTokens: 1024, FullMessageCount: 4, OlderResultTokens: 100}
}

// EventHistoryComponent records each cycle's action and result and shows the
// model its progress so far.
type EventHistoryComponent struct {
	agentID string
	cfg     HistoryConfig
	count   func(string) int
	store   EpisodeStore
	logger  *zap.Logger

	mu       sync.Mutex
	episodes []Episode
	cycle    int
}

// HistoryOption configures an EventHistoryComponent.
type HistoryOption func(*EventHistoryComponent)

// WithEpisodeStore persists each episode once its result is known.
func WithEpisodeStore(s EpisodeStore) HistoryOption {
	return func(c *EventHistoryComponent) { c.store = s }
}

// WithHistoryLogger sets the logger.
func WithHistoryLogger(l *zap.Logger) HistoryOption {
	return func(c *EventHistoryComponent) { c.logger = l }
}

// NewEventHistoryComponent creates the component. count measures text in
// model tokens; nil selects the chars/4 estimate.
func NewEventHistoryComponent(agentID string, cfg HistoryConfig, count func(string) int, opts ...HistoryOption) *EventHistoryComponent {
	if count == nil {
		count = unifiedllm.EstimateTokens
	}
	c := &EventHistoryComponent{agentID: agentID, cfg: cfg, count: count, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("event_history")
	return c
}

func (c *EventHistoryComponent) Name() string { return "event_history" }

// Episodes returns a copy of the recorded episodes, oldest first.
func (c *EventHistoryComponent) Episodes() []Episode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Episode(nil), c.episodes...)
}

// AfterParsing opens a new episode for the proposed action.
func (c *EventHistoryComponent) AfterParsing(ctx context.Context, out *agentloop.ThoughtProcessOutput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.episodes); n > 0 && c.episodes[n-1].Result == nil {
		return errors.New("action for current cycle already set")
	}
	c.cycle++
	c.episodes = append(c.episodes, Episode{
		Cycle: c.cycle,
		Action: EpisodeAction{
			Name:      out.CommandName,
			Args:      map[string]any(out.CommandArgs),
			Reasoning: reasoning(out.Thoughts),
		},
	})
	return nil
}

func reasoning(thoughts map[string]any) string {
	for _, key := range []string{"reasoning", "text", "observations"} {
		if s, ok := thoughts[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// AfterExecution completes the open episode with result.
func (c *EventHistoryComponent) AfterExecution(ctx context.Context, result agentloop.ActionResult) error {
	c.mu.Lock()
	n := len(c.episodes)
	if n == 0 || c.episodes[n-1].Result != nil {
		c.mu.Unlock()
		return errors.New("cannot register result for cycle without action")
	}
	c.episodes[n-1].Result = result
	ep := c.episodes[n-1]
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := c.store.SaveEpisode(ctx, c.agentID, ep); err != nil {
		return fmt.Errorf("save episode %d: %w", ep.Cycle, err)
	}
	c.logger.Debug("episode saved", zap.Int("cycle", ep.Cycle), zap.String("command", ep.Action.Name))
	return nil
}

func (c *EventHistoryComponent) Messages(ctx context.Context) ([]unifiedllm.Message, error) {
	progress := c.progress()
	if progress == "" {
		return nil, nil
	}
	return []unifiedllm.Message{unifiedllm.SystemMessage(
		"## Progress on your Task so far\n" +
			"This is the list of the steps that you have executed previously, from oldest to newest:\n" +
			progress,
	)}, nil
}

// progress renders finished episodes newest first until the token cap is
// reached, then restores chronological order. Only the most recent episodes
// keep their full output.
func (c *EventHistoryComponent) progress() string {
	episodes := c.Episodes()
	var steps []string
	tokens := 0
	recent := 0
	for i := len(episodes) - 1; i >= 0; i-- {
		ep := episodes[i]
		if ep.Result == nil {
			continue
		}
		full := recent < c.cfg.FullMessageCount
		recent++
		step := c.formatEpisode(i+1, ep, full)
		t := c.count(step)
		if c.cfg.MaxTokens > 0 && tokens+t > c.cfg.MaxTokens {
			break
		}
		tokens += t
		steps = append(steps, step)
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, "\n\n")
}

func (c *EventHistoryComponent) formatEpisode(n int, ep Episode, full bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### Step %d: Executed `%s`\n", n, ep.Action.Format())
	if ep.Action.Reasoning != "" {
		fmt.Fprintf(&sb, "- **Reasoning:** \"%s\"\n", ep.Action.Reasoning)
	}
	fmt.Fprintf(&sb, "- **Status:** `%s`\n", ep.Result.Status())

	var detail string
	switch r := ep.Result.(type) {
	case *agentloop.ActionSuccessResult:
		detail = r.String()
		if !full && c.cfg.OlderResultTokens > 0 {
			detail = agentloop.TruncateTokens(detail, c.cfg.OlderResultTokens, c.count)
		}
		sb.WriteString("- **Output:** " + indent(detail))
	case *agentloop.ActionErrorResult:
		sb.WriteString("- **Reason:** " + r.Reason)
	case *agentloop.ActionInterruptedByHuman:
		sb.WriteString("- **Feedback:** " + r.Feedback)
	}
	return sb.String()
}

func indent(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	return "\n    " + strings.ReplaceAll(s, "\n", "\n    ")
}
