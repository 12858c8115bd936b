// Package store persists cycle logs and episode history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/martinemde/autocycle/agentloop"
	"github.com/martinemde/autocycle/components"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycle_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id   TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	cycle      INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	logged_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS cycle_logs_agent ON cycle_logs (agent_id, cycle);

CREATE TABLE IF NOT EXISTS episodes (
	agent_id  TEXT NOT NULL,
	cycle     INTEGER NOT NULL,
	command   TEXT NOT NULL,
	args      TEXT NOT NULL,
	reasoning TEXT NOT NULL,
	status    TEXT NOT NULL,
	result    TEXT NOT NULL,
	saved_at  DATETIME NOT NULL,
	PRIMARY KEY (agent_id, cycle)
);`

// SQLiteStore implements agentloop.CycleLogger and components.EpisodeStore.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema. Use
// ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// LogCycle stores a cycle record with its payload encoded as JSON, except
// user input, which is stored verbatim.
func (s *SQLiteStore) LogCycle(ctx context.Context, rec agentloop.CycleRecord) error {
	var payload string
	if text, ok := rec.Payload.(string); ok && rec.Kind == agentloop.CycleUserInput {
		payload = text
	} else {
		b, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", rec.Kind, err)
		}
		payload = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycle_logs (agent_id, agent_name, cycle, kind, payload, logged_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.AgentID, rec.AgentName, rec.Cycle, string(rec.Kind), payload, s.now().UTC())
	if err != nil {
		return fmt.Errorf("insert cycle log: %w", err)
	}
	return nil
}

// CycleLog is a stored cycle record.
type CycleLog struct {
	AgentID   string
	AgentName string
	Cycle     int
	Kind      agentloop.CycleKind
	Payload   string
	LoggedAt  time.Time
}

// CycleLogs returns an agent's records in the order they were logged.
func (s *SQLiteStore) CycleLogs(ctx context.Context, agentID string) ([]CycleLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, agent_name, cycle, kind, payload, logged_at FROM cycle_logs WHERE agent_id = ? ORDER BY id`,
		agentID)
	if err != nil {
		return nil, fmt.Errorf("query cycle logs: %w", err)
	}
	defer rows.Close()

	var logs []CycleLog
	for rows.Next() {
		var l CycleLog
		var kind string
		if err := rows.Scan(&l.AgentID, &l.AgentName, &l.Cycle, &kind, &l.Payload, &l.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan cycle log: %w", err)
		}
		l.Kind = agentloop.CycleKind(kind)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// SaveEpisode stores a finished episode, replacing any earlier version of
// the same cycle.
func (s *SQLiteStore) SaveEpisode(ctx context.Context, agentID string, ep components.Episode) error {
	args, err := json.Marshal(ep.Action.Args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	status, result := "", ""
	if ep.Result != nil {
		status = string(ep.Result.Status())
		result = ep.Result.String()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO episodes (agent_id, cycle, command, args, reasoning, status, result, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		agentID, ep.Cycle, ep.Action.Name, string(args), ep.Action.Reasoning, status, result, s.now().UTC())
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// EpisodeRecord is a stored episode. The result is kept in its rendered form.
type EpisodeRecord struct {
	Cycle   int
	Action  components.EpisodeAction
	Status  agentloop.ActionStatus
	Result  string
	SavedAt time.Time
}

// Episodes returns an agent's episodes in cycle order.
func (s *SQLiteStore) Episodes(ctx context.Context, agentID string) ([]EpisodeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cycle, command, args, reasoning, status, result, saved_at FROM episodes WHERE agent_id = ? ORDER BY cycle`,
		agentID)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var eps []EpisodeRecord
	for rows.Next() {
		var r EpisodeRecord
		var args, status string
		if err := rows.Scan(&r.Cycle, &r.Action.Name, &args, &r.Action.Reasoning, &status, &r.Result, &r.SavedAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &r.Action.Args); err != nil {
			return nil, fmt.Errorf("decode args of cycle %d: %w", r.Cycle, err)
		}
		r.Status = agentloop.ActionStatus(status)
		eps = append(eps, r)
	}
	return eps, rows.Err()
}
