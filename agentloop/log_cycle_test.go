package agentloop

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFileCycleLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewFileCycleLogger(dir)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	recs := []CycleRecord{
		{AgentName: "Scout", CreatedAt: created, Cycle: 0, Kind: CycleCurrentContext, Payload: []string{"prompt"}},
		{AgentName: "Scout", CreatedAt: created, Cycle: 0, Kind: CycleNextAction, Payload: map[string]any{"command": "x"}},
		{AgentName: "Scout", CreatedAt: created, Cycle: 1, Kind: CycleUserInput, Payload: "stop that"},
		{AgentID: "id-7", CreatedAt: created, Cycle: 0, Kind: CycleCurrentContext, Payload: nil},
	}
	for _, r := range recs {
		if err := l.LogCycle(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	base := filepath.Join(dir, "DEBUG", "20260301_100000_Scout")
	var paths []string
	err := filepath.WalkDir(filepath.Join(dir, "DEBUG"), func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			paths = append(paths, filepath.ToSlash(rel))
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"DEBUG/20260301_100000_Scout/000/0_current_context.json",
		"DEBUG/20260301_100000_Scout/000/1_next_action.json",
		"DEBUG/20260301_100000_Scout/001/0_user_input.txt",
		"DEBUG/20260301_100000_id-7/000/0_current_context.json",
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	text, err := os.ReadFile(filepath.Join(base, "001", "0_user_input.txt"))
	if err != nil || string(text) != "stop that" {
		t.Errorf("user input = %q %v", text, err)
	}
	raw, err := os.ReadFile(filepath.Join(base, "000", "1_next_action.json"))
	if err != nil {
		t.Fatal(err)
	}
	var next map[string]any
	if err := json.Unmarshal(raw, &next); err != nil || next["command"] != "x" {
		t.Errorf("next action = %s %v", raw, err)
	}
}

func TestFileCycleLoggerSanitizesAgentName(t *testing.T) {
	dir := t.TempDir()
	l := NewFileCycleLogger(filepath.Join(dir, "logs"))
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := CycleRecord{AgentName: "../../esc ape", CreatedAt: created, Kind: CycleUserInput, Payload: "hi"}
	if err := l.LogCycle(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "logs", "DEBUG", "20260301_100000_______esc_ape", "000", "0_user_input.txt")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("log not written under DEBUG: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "logs" {
		t.Errorf("files escaped the log directory: %v", entries)
	}
}

func TestFileCycleLoggerRejectsUnencodablePayload(t *testing.T) {
	l := NewFileCycleLogger(t.TempDir())
	err := l.LogCycle(context.Background(), CycleRecord{AgentName: "a", Kind: CycleNextAction, Payload: func() {}})
	if err == nil {
		t.Error("expected encode error")
	}
}

func TestNopCycleLogger(t *testing.T) {
	if err := (NopCycleLogger{}).LogCycle(context.Background(), CycleRecord{}); err != nil {
		t.Error(err)
	}
}
