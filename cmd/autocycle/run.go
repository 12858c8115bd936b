package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/martinemde/autocycle/config"
	"github.com/martinemde/autocycle/unifiedllm"
)

type runFlags struct {
	configPath      string
	task            string
	workspace       string
	model           string
	provider        string
	budget          float64
	continuous      bool
	continuousLimit int
	debug           bool
}

func newRunCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"r"},
		Short:   "Run the agent on a task",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "autocycle.yaml", "Path to the YAML config file")
	f.StringVarP(&flags.task, "task", "t", "", "Task for the agent to complete")
	f.StringVarP(&flags.workspace, "workspace", "w", "", "Directory the agent works in")
	f.StringVarP(&flags.model, "model", "m", "", "Model to use")
	f.StringVar(&flags.provider, "provider", "", "LLM provider (anthropic, openai, or a gollm provider)")
	f.Float64Var(&flags.budget, "budget", 0, "API budget in dollars (0 for unlimited)")
	f.BoolVar(&flags.continuous, "continuous", false, "Run without asking for authorisation")
	f.IntVarP(&flags.continuousLimit, "continuous-limit", "l", 0, "Stop continuous mode after this many cycles")
	f.BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// apply copies explicitly set flags over cfg and revalidates it.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("task") {
		cfg.Agent.Task = f.task
	}
	if changed("workspace") {
		cfg.Workspace.Root = f.workspace
	}
	if changed("model") {
		cfg.LLM.Model = f.model
	}
	if changed("provider") {
		cfg.LLM.Provider = f.provider
	}
	if changed("budget") {
		cfg.Agent.Budget = f.budget
	}
	if changed("continuous") {
		cfg.Agent.ContinuousMode = f.continuous
	}
	if changed("continuous-limit") {
		cfg.Agent.ContinuousLimit = f.continuousLimit
	}
	if f.debug {
		cfg.Log.Level = "debug"
	}
	if cfg.Agent.ContinuousLimit > 0 && !cfg.Agent.ContinuousMode {
		return fmt.Errorf("--continuous-limit can only be used with --continuous")
	}
	return cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	budget := unifiedllm.NewBudget(cfg.Agent.Budget)
	transport, client, err := newTransport(cfg.LLM, budget, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	input := newLineReader(in, out)
	defer input.Close()

	s, err := newSession(ctx, cfg, transport, budget, input, out, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if cfg.Agent.ContinuousMode {
		logger.Warn("continuous mode is not recommended: the agent runs commands without authorisation",
			zap.Int("limit", cfg.Agent.ContinuousLimit))
	}
	err = s.Run(ctx)
	usage, calls := budget.Usage()
	logger.Info("run finished",
		zap.Int("completions", calls),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("cost_usd", budget.Cost()))
	return err
}
