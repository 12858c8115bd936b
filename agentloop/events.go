package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of agent event.
type EventKind string

const (
	EventCycleStart       EventKind = "cycle_start"
	EventProposal         EventKind = "proposal"
	EventParseError       EventKind = "parse_error"
	EventObscuredCommands EventKind = "obscured_commands"
	EventCommandStart     EventKind = "command_start"
	EventCommandEnd       EventKind = "command_end"
	EventCommandError     EventKind = "command_error"
	EventResultReplaced   EventKind = "result_replaced"
	EventHumanFeedback    EventKind = "human_feedback"
	EventComponentError   EventKind = "component_error"
	EventAgentTerminated  EventKind = "agent_terminated"
	EventAgentClosed      EventKind = "agent_closed"
)

// AgentEvent is a typed telemetry event.
type AgentEvent struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	AgentID   string         `json:"agent_id"`
	Cycle     int            `json:"cycle"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter delivers events on a buffered channel without ever blocking
// the agent.
type EventEmitter struct {
	agentID string
	ch      chan AgentEvent
	closed  bool
	dropped int
	mu      sync.Mutex
}

// NewEventEmitter creates an emitter. A non-positive bufferSize uses 256.
func NewEventEmitter(agentID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		agentID: agentID,
		ch:      make(chan AgentEvent, bufferSize),
	}
}

// Emit sends an event. Events are dropped when the buffer is full or the
// emitter is closed.
func (e *EventEmitter) Emit(kind EventKind, cycle int, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := AgentEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		AgentID:   e.agentID,
		Cycle:     cycle,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
		e.dropped++
	}
}

// Dropped returns how many events were discarded because nobody was reading.
func (e *EventEmitter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan AgentEvent {
	return e.ch
}

// Close closes the channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
