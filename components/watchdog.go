package components

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/martinemde/autocycle/unifiedllm"
)

// EpisodeSource exposes recorded history. *EventHistoryComponent implements
// it.
type EpisodeSource interface {
	Episodes() []Episode
}

// WatchdogComponent warns the model when its recent actions repeat a short
// pattern instead of making progress.
type WatchdogComponent struct {
	history EpisodeSource
	window  int
}

// NewWatchdogComponent creates the component. window is the number of recent
// actions examined; values below 2 select the default of 6.
func NewWatchdogComponent(history EpisodeSource, window int) *WatchdogComponent {
	if window < 2 {
		window = 6
	}
	return &WatchdogComponent{history: history, window: window}
}

func (c *WatchdogComponent) Name() string { return "watchdog" }

func (c *WatchdogComponent) Messages(ctx context.Context) ([]unifiedllm.Message, error) {
	n := DetectLoop(c.history.Episodes(), c.window)
	if n == 0 {
		return nil, nil
	}
	return []unifiedllm.Message{unifiedllm.SystemMessage(fmt.Sprintf(
		"Your last %d actions repeat the same %d-step pattern without progress. "+
			"Do not repeat them again. Try a different approach, or finish if the task cannot be completed.",
		c.window, n))}, nil
}

// actionSignature identifies an action by name and a hash of its arguments.
func actionSignature(a EpisodeAction) string {
	args, _ := json.Marshal(a.Args)
	h := sha256.Sum256(args)
	return fmt.Sprintf("%s:%x", a.Name, h[:8])
}

// DetectLoop reports the length of the pattern, 1 to 3, that the last window
// actions repeat, or 0 when they do not.
func DetectLoop(episodes []Episode, window int) int {
	if len(episodes) < window {
		return 0
	}
	sigs := make([]string, 0, window)
	for _, ep := range episodes[len(episodes)-window:] {
		sigs = append(sigs, actionSignature(ep.Action))
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if window%patternLen != 0 {
			continue
		}
		match := true
		for i := patternLen; i < window && match; i++ {
			if sigs[i] != sigs[i%patternLen] {
				match = false
			}
		}
		if match {
			return patternLen
		}
	}
	return 0
}
