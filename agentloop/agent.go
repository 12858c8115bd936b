package agentloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinemde/autocycle/unifiedllm"
)

// HumanFeedbackCommand is the reserved command name for user feedback given
// instead of running the proposed command.
const HumanFeedbackCommand = "human_feedback"

// FinalInstruction is appended to every prompt after the component messages.
const FinalInstruction = "Determine exactly one command to use next based on the given goals " +
	"and the progress you have made so far, " +
	"and respond using the JSON schema specified previously."

// AgentSettings holds the agent's identity and cycle parameters.
type AgentSettings struct {
	Name string
	ID   string

	// SendTokenLimit is the prompt budget in model tokens. Results above a
	// third of it are replaced by an error.
	SendTokenLimit int

	// MaxParseRetries is the number of model calls one proposal may use.
	MaxParseRetries int

	// UseFunctionsAPI offers the commands to the model as callable functions.
	UseFunctionsAPI bool

	// CycleCount is the starting cycle number, for resumed runs.
	CycleCount int
}

// DefaultAgentSettings returns settings for a fresh agent.
func DefaultAgentSettings() AgentSettings {
	return AgentSettings{
		Name:            "AutoCycle",
		SendTokenLimit:  8000,
		MaxParseRetries: 3,
		UseFunctionsAPI: true,
	}
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the agent's logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithCycleLogger sets the sink for per-cycle debug artifacts.
func WithCycleLogger(l CycleLogger) Option {
	return func(a *Agent) { a.cycleLogger = l }
}

// WithEventBuffer sets the capacity of the event channel.
func WithEventBuffer(n int) Option {
	return func(a *Agent) { a.eventBuffer = n }
}

// Agent runs the propose/execute cycle over an ordered component pipeline.
// It is driven by a single goroutine.
type Agent struct {
	settings    AgentSettings
	transport   ModelTransport
	pipeline    []Component
	logger      *zap.Logger
	cycleLogger CycleLogger
	eventBuffer int
	emitter     *EventEmitter
	createdAt   time.Time

	cycleCount int
	commands   *CommandRegistry
	trace      []string
}

// NewAgent creates an agent. pipeline order is significant: it decides the
// order of prompt messages and which command wins a name collision.
func NewAgent(settings AgentSettings, transport ModelTransport, pipeline []Component, opts ...Option) (*Agent, error) {
	if transport == nil {
		return nil, errors.New("agent needs a model transport")
	}
	if settings.SendTokenLimit <= 0 {
		return nil, fmt.Errorf("send token limit must be positive, got %d", settings.SendTokenLimit)
	}
	if settings.MaxParseRetries <= 0 {
		return nil, fmt.Errorf("max parse retries must be positive, got %d", settings.MaxParseRetries)
	}
	if settings.ID == "" {
		settings.ID = uuid.New().String()
	}
	if settings.Name == "" {
		settings.Name = "AutoCycle"
	}

	a := &Agent{
		settings:    settings,
		transport:   transport,
		pipeline:    append([]Component(nil), pipeline...),
		logger:      zap.NewNop(),
		cycleLogger: NopCycleLogger{},
		createdAt:   time.Now(),
		cycleCount:  settings.CycleCount,
		commands:    NewCommandRegistry(nil),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("agent").With(zap.String("agent_id", settings.ID))
	a.emitter = NewEventEmitter(settings.ID, a.eventBuffer)
	return a, nil
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.settings.ID }

// Settings returns a copy of the agent's settings.
func (a *Agent) Settings() AgentSettings { return a.settings }

// CycleCount returns the number of completed proposals.
func (a *Agent) CycleCount() int { return a.cycleCount }

// Commands returns the registry built by the last proposal.
func (a *Agent) Commands() *CommandRegistry { return a.commands }

// Events returns the telemetry channel.
func (a *Agent) Events() <-chan AgentEvent { return a.emitter.Events() }

// PipelineOrder returns the component names in pipeline order.
func (a *Agent) PipelineOrder() []string {
	names := make([]string, len(a.pipeline))
	for i, c := range a.pipeline {
		names[i] = ComponentName(c)
	}
	return names
}

// Trace returns the hook trace of the current cycle.
func (a *Agent) Trace() []string {
	return append([]string(nil), a.trace...)
}

// Close closes every component that holds resources, then the event channel.
func (a *Agent) Close() error {
	var errs []error
	for _, c := range a.pipeline {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, &ComponentError{Component: ComponentName(c), Hook: "close", Err: err})
			}
		}
	}
	a.emitter.Emit(EventAgentClosed, a.cycleCount, nil)
	a.emitter.Close()
	return errors.Join(errs...)
}

// ProposeAction gathers commands and messages from the pipeline, asks the
// model for the next action and returns it parsed and validated.
func (a *Agent) ProposeAction(ctx context.Context) (*ThoughtProcessOutput, error) {
	a.trace = a.trace[:0]
	a.emitter.Emit(EventCycleStart, a.cycleCount, nil)

	commands, err := a.collectCommands(ctx)
	if err != nil {
		return nil, err
	}
	a.commands = NewCommandRegistry(commands)
	if obscured := a.commands.FindObscured(); len(obscured) > 0 {
		names := make([]string, len(obscured))
		for i, c := range obscured {
			names[i] = c.Name()
		}
		a.logger.Warn("commands obscured by later components", zap.Strings("commands", names))
		a.emitter.Emit(EventObscuredCommands, a.cycleCount, map[string]any{"commands": names})
	}

	messages, err := a.collectMessages(ctx)
	if err != nil {
		return nil, err
	}
	messages = append(messages, unifiedllm.UserMessage(FinalInstruction))

	a.logCycle(ctx, CycleCurrentContext, messages)

	out, err := a.completeAndParse(ctx, messages)
	if err != nil {
		return nil, err
	}
	a.cycleCount++
	a.emitter.Emit(EventProposal, a.cycleCount, map[string]any{
		"command": out.CommandName,
		"args":    map[string]any(out.CommandArgs),
	})
	a.logger.Debug("cycle trace", zap.Strings("trace", a.trace))
	return out, nil
}

func (a *Agent) collectCommands(ctx context.Context) ([]*Command, error) {
	var all []*Command
	for _, c := range a.pipeline {
		p, ok := c.(CommandProvider)
		if !ok || !a.enabled(c, "commands") {
			continue
		}
		cmds, err := p.Commands(ctx)
		if err != nil {
			a.traceHook(c, "commands", err)
			return nil, &ComponentError{Component: ComponentName(c), Hook: "commands", Err: err}
		}
		a.traceHook(c, "commands", nil)
		all = append(all, cmds...)
	}
	return all, nil
}

func (a *Agent) collectMessages(ctx context.Context) ([]unifiedllm.Message, error) {
	var all []unifiedllm.Message
	for _, c := range a.pipeline {
		p, ok := c.(MessageProvider)
		if !ok || !a.enabled(c, "messages") {
			continue
		}
		msgs, err := p.Messages(ctx)
		if err != nil {
			a.traceHook(c, "messages", err)
			return nil, &ComponentError{Component: ComponentName(c), Hook: "messages", Err: err}
		}
		a.traceHook(c, "messages", nil)
		all = append(all, msgs...)
	}
	return all, nil
}

func (a *Agent) enabled(c Component, hook string) bool {
	ok, reason := componentEnabled(c)
	if !ok {
		a.trace = append(a.trace, fmt.Sprintf("skip %s.%s: %s", ComponentName(c), hook, reason))
		a.logger.Debug("component disabled",
			zap.String("component", ComponentName(c)),
			zap.String("hook", hook),
			zap.String("reason", reason))
	}
	return ok
}

func (a *Agent) traceHook(c Component, hook string, err error) {
	if err != nil {
		a.trace = append(a.trace, fmt.Sprintf("fail %s.%s: %v", ComponentName(c), hook, err))
		return
	}
	a.trace = append(a.trace, fmt.Sprintf("ok   %s.%s", ComponentName(c), hook))
}

func (a *Agent) logCycle(ctx context.Context, kind CycleKind, payload any) {
	rec := CycleRecord{
		AgentID:   a.settings.ID,
		AgentName: a.settings.Name,
		CreatedAt: a.createdAt,
		Cycle:     a.cycleCount,
		Kind:      kind,
		Payload:   payload,
	}
	if err := a.cycleLogger.LogCycle(ctx, rec); err != nil {
		a.logger.Warn("cycle log failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}
