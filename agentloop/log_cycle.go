package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
)

// CycleKind names the artifact a CycleRecord carries.
type CycleKind string

const (
	CycleCurrentContext CycleKind = "current_context"
	CycleNextAction     CycleKind = "next_action"
	CycleUserInput      CycleKind = "user_input"
)

// FileName returns the artifact's file name in a cycle directory.
func (k CycleKind) FileName() string {
	if k == CycleUserInput {
		return string(k) + ".txt"
	}
	return string(k) + ".json"
}

// CycleRecord is one per-cycle debug artifact: the prompt snapshot, the
// parsed next action, or raw user feedback.
type CycleRecord struct {
	AgentID   string
	AgentName string
	CreatedAt time.Time
	Cycle     int
	Kind      CycleKind
	Payload   any
}

// CycleLogger persists cycle records. The agent logs a failing LogCycle and
// carries on.
type CycleLogger interface {
	LogCycle(ctx context.Context, rec CycleRecord) error
}

// NopCycleLogger discards every record.
type NopCycleLogger struct{}

func (NopCycleLogger) LogCycle(context.Context, CycleRecord) error { return nil }

// FileCycleLogger writes each record to
// <dir>/DEBUG/<created>_<agent>/<cycle>/<n>_<kind file>, numbering records
// within a cycle.
type FileCycleLogger struct {
	dir string

	mu        sync.Mutex
	lastCycle int
	count     int
}

// NewFileCycleLogger creates a logger rooted at dir.
func NewFileCycleLogger(dir string) *FileCycleLogger {
	return &FileCycleLogger{dir: dir, lastCycle: -1}
}

func (l *FileCycleLogger) LogCycle(_ context.Context, rec CycleRecord) error {
	l.mu.Lock()
	if rec.Cycle != l.lastCycle {
		l.lastCycle = rec.Cycle
		l.count = 0
	}
	n := l.count
	l.count++
	l.mu.Unlock()

	name := rec.AgentName
	if name == "" {
		name = rec.AgentID
	}
	name = sanitizeDirName(name)
	cycleDir := filepath.Join(l.dir, "DEBUG",
		fmt.Sprintf("%s_%s", rec.CreatedAt.Format("20060102_150405"), name),
		fmt.Sprintf("%03d", rec.Cycle))
	if err := os.MkdirAll(cycleDir, 0o755); err != nil {
		return fmt.Errorf("create cycle log directory: %w", err)
	}

	var data []byte
	if s, ok := rec.Payload.(string); ok && rec.Kind == CycleUserInput {
		data = []byte(s)
	} else {
		b, err := json.MarshalIndent(rec.Payload, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", rec.Kind, err)
		}
		data = b
	}
	path := filepath.Join(cycleDir, fmt.Sprintf("%d_%s", n, rec.Kind.FileName()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cycle log: %w", err)
	}
	return nil
}

// sanitizeDirName keeps letters, digits, '-' and '_' so a name cannot escape
// the DEBUG directory.
func sanitizeDirName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
}
