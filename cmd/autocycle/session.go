package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinemde/autocycle/agentloop"
	"github.com/martinemde/autocycle/components"
	"github.com/martinemde/autocycle/config"
	"github.com/martinemde/autocycle/store"
)

// maxProposalFailures is how many proposals in a row may exhaust their
// reparse budget before the run gives up.
const maxProposalFailures = 3

// session is one agent run wired to a terminal.
type session struct {
	agent   *agentloop.Agent
	history *components.EventHistoryComponent
	db      *store.SQLiteStore
	input   lineReader
	out     io.Writer
	logger  *zap.Logger

	name            string
	continuous      bool
	continuousLimit int
}

// newSession assembles the component pipeline and the agent. Pipeline order
// decides prompt order and which component wins a command name collision.
func newSession(ctx context.Context, cfg *config.Config, transport agentloop.ModelTransport, budget components.BudgetSource, input lineReader, out io.Writer, logger *zap.Logger) (*session, error) {
	env, err := components.NewLocalExecutionEnvironment(cfg.Workspace.Root)
	if err != nil {
		return nil, err
	}
	agentID := uuid.NewString()
	s := &session{
		input:           input,
		out:             out,
		logger:          logger,
		name:            cfg.Agent.Name,
		continuous:      cfg.Agent.ContinuousMode,
		continuousLimit: cfg.Agent.ContinuousLimit,
	}

	var cycleLoggers multiCycleLogger
	historyOpts := []components.HistoryOption{components.WithHistoryLogger(logger)}
	if cfg.Storage.DatabasePath != "" {
		s.db, err = store.Open(ctx, cfg.Storage.DatabasePath)
		if err != nil {
			return nil, err
		}
		cycleLoggers = append(cycleLoggers, s.db)
		historyOpts = append(historyOpts, components.WithEpisodeStore(s.db))
	}
	if cfg.Storage.DebugDir != "" {
		cycleLoggers = append(cycleLoggers, agentloop.NewFileCycleLogger(cfg.Storage.DebugDir))
	}

	s.history = components.NewEventHistoryComponent(agentID, components.HistoryConfig{
		MaxTokens:         cfg.History.MaxTokens,
		FullMessageCount:  cfg.History.FullMessageCount,
		OlderResultTokens: cfg.History.OlderResultTokens,
	}, transport.CountTokens, historyOpts...)

	prompt := func(ctx context.Context, question string) (string, error) {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render("QUESTION:"), question)
		return input.ReadLine("Answer: ")
	}
	oneShot := components.NewOneShotComponent(cfg.Agent.UseFunctionsAPI)
	pipeline := []agentloop.Component{
		components.NewSystemComponent(
			components.AIProfile{Name: cfg.Agent.Name, Role: cfg.Agent.Role},
			components.DefaultDirectives(), cfg.Agent.Task, env, cfg.LLM.Model),
		components.NewClockBudgetComponent(budget),
		components.NewUserInteractionComponent(prompt, !cfg.Agent.ContinuousMode),
		components.NewFileManagerComponent(env),
		components.NewCodeExecutorComponent(env, components.CodeExecutorConfig{
			ExecuteLocalCommands: cfg.Shell.ExecuteLocalCommands,
			ShellControl:         cfg.Shell.Control,
			ShellAllowlist:       cfg.Shell.Allowlist,
			ShellDenylist:        cfg.Shell.Denylist,
			Timeout:              cfg.Shell.Timeout,
		}, logger),
		s.history,
		components.NewRandomValuesComponent(),
		components.NewWatchdogComponent(s.history, cfg.History.WatchdogWindow),
		oneShot,
	}

	opts := []agentloop.Option{agentloop.WithLogger(logger)}
	if len(cycleLoggers) > 0 {
		opts = append(opts, agentloop.WithCycleLogger(cycleLoggers))
	}
	s.agent, err = agentloop.NewAgent(agentloop.AgentSettings{
		Name:            cfg.Agent.Name,
		ID:              agentID,
		SendTokenLimit:  sendTokenLimit(cfg.Agent.SendTokenLimit, cfg.LLM.Model),
		MaxParseRetries: cfg.Agent.MaxParseRetries,
		UseFunctionsAPI: cfg.Agent.UseFunctionsAPI,
	}, transport, pipeline, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	oneShot.UseCommands(s.agent.Commands)
	go s.drainEvents()
	return s, nil
}

func (s *session) drainEvents() {
	for ev := range s.agent.Events() {
		s.logger.Debug("agent event", zap.String("kind", string(ev.Kind)), zap.Int("cycle", ev.Cycle), zap.Any("data", ev.Data))
	}
}

// Run drives cycles until the agent terminates, the user exits, the
// continuous limit is reached or an unrecoverable error occurs.
func (s *session) Run(ctx context.Context) error {
	approved := 0
	failures := 0
	executed := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.continuous && s.continuousLimit > 0 && executed >= s.continuousLimit {
			fmt.Fprintln(s.out, systemStyle.Render("Continuous limit reached."))
			return nil
		}

		proposal, err := s.agent.ProposeAction(ctx)
		if err != nil {
			var exhausted *agentloop.ReparseExhaustedError
			if errors.As(err, &exhausted) && failures+1 < maxProposalFailures {
				failures++
				s.logger.Warn("no valid proposal, trying again", zap.Int("failures", failures), zap.Error(err))
				continue
			}
			if agentloop.IsTerminated(err) {
				s.printTerminated(err)
				return nil
			}
			return err
		}
		failures = 0
		printProposal(s.out, s.name, proposal)

		name, args, feedback := proposal.CommandName, proposal.CommandArgs, ""
		switch {
		case s.continuous:
		case approved > 0:
			approved--
		default:
			d, err := s.ask()
			if err != nil {
				return err
			}
			switch d.kind {
			case decisionExit:
				fmt.Fprintln(s.out, "Exiting...")
				return nil
			case decisionFeedback:
				name, args, feedback = agentloop.HumanFeedbackCommand, nil, d.feedback
			case decisionApprove:
				approved = d.count - 1
			}
		}

		result, err := s.agent.Execute(ctx, name, args, feedback)
		executed++
		if agentloop.IsTerminated(err) {
			s.printTerminated(err)
			return nil
		}
		if err != nil {
			return err
		}
		printResult(s.out, result)
	}
}

func (s *session) ask() (decision, error) {
	prompt := fmt.Sprintf("Enter 'y' to authorise command, 'y -N' to run N continuous commands, "+
		"'n' to exit program, or enter feedback for %s... ", s.name)
	for {
		line, err := s.input.ReadLine(prompt)
		if errors.Is(err, io.EOF) {
			return decision{kind: decisionExit}, nil
		}
		if err != nil {
			return decision{}, fmt.Errorf("read input: %w", err)
		}
		if line == "" {
			continue
		}
		d, err := parseDecision(line)
		if err != nil {
			fmt.Fprintln(s.out, errorStyle.Render(err.Error()))
			continue
		}
		return d, nil
	}
}

func (s *session) printTerminated(err error) {
	var t *agentloop.AgentTerminatedError
	errors.As(err, &t)
	fmt.Fprintf(s.out, "%s %s\n", labelStyle.Render("FINISHED:"), t.Reason)
}

// Close releases the agent and the database.
func (s *session) Close() error {
	var errs []error
	if s.agent != nil {
		errs = append(errs, s.agent.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// multiCycleLogger fans a record out to every logger.
type multiCycleLogger []agentloop.CycleLogger

func (m multiCycleLogger) LogCycle(ctx context.Context, rec agentloop.CycleRecord) error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.LogCycle(ctx, rec))
	}
	return errors.Join(errs...)
}
