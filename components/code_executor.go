package components

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/martinemde/autocycle/agentloop"
)

// Shell command control modes.
const (
	ShellControlNone      = ""
	ShellControlAllowlist = "allowlist"
	ShellControlDenylist  = "denylist"
)

// CodeExecutorConfig controls which execution commands are offered and how
// shell command lines are screened.
type CodeExecutorConfig struct {
	ExecuteLocalCommands bool
	ShellControl         string
	ShellAllowlist       []string
	ShellDenylist        []string
	Timeout              time.Duration
}

// CodeExecutorComponent runs Python code and shell commands in the workspace.
type CodeExecutorComponent struct {
	env    ExecutionEnvironment
	cfg    CodeExecutorConfig
	logger *zap.Logger
	python string
}

// NewCodeExecutorComponent creates the component. The Python commands are
// only offered when an interpreter is on PATH.
func NewCodeExecutorComponent(env ExecutionEnvironment, cfg CodeExecutorConfig, logger *zap.Logger) *CodeExecutorComponent {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CodeExecutorComponent{env: env, cfg: cfg, logger: logger.Named("code_executor")}
	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			c.python = p
			break
		}
	}
	if c.python == "" {
		c.logger.Info("no python interpreter found, code execution commands are unavailable")
	}
	if !cfg.ExecuteLocalCommands {
		c.logger.Info("local shell commands are disabled")
	}
	return c
}

func (c *CodeExecutorComponent) Name() string { return "code_executor" }

func (c *CodeExecutorComponent) Commands(ctx context.Context) ([]*agentloop.Command, error) {
	var cmds []*agentloop.Command
	if c.python != "" {
		cmds = append(cmds,
			agentloop.MustCommand(
				[]string{"execute_python_code"},
				"Executes the given Python code with access to your workspace folder",
				[]agentloop.CommandParameter{
					agentloop.StringParam("code", "The Python code to run", true),
				},
				c.executePythonCode,
			),
			agentloop.MustCommand(
				[]string{"execute_python_file"},
				"Execute an existing Python file with access to your workspace folder",
				[]agentloop.CommandParameter{
					agentloop.StringParam("filename", "The name of the file to execute", true),
					agentloop.StringListParam("args", "The (command line) arguments to pass to the script", false),
				},
				c.executePythonFile,
			),
		)
	}

	if c.cfg.ExecuteLocalCommands {
		cmds = append(cmds,
			agentloop.MustCommand(
				[]string{"execute_shell"},
				"Execute a Shell Command, non-interactive commands only",
				[]agentloop.CommandParameter{
					agentloop.StringParam("command_line", "The command line to execute", true),
				},
				c.executeShell,
			),
			agentloop.MustCommand(
				[]string{"execute_shell_popen"},
				"Execute a Shell Command, non-interactive commands only",
				[]agentloop.CommandParameter{
					agentloop.StringParam("command_line", "The command line to execute", true),
				},
				c.executeShellPopen,
			),
		)
	}
	return cmds, nil
}

func (c *CodeExecutorComponent) executePythonCode(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	code, _ := args.String("code")
	f, err := os.CreateTemp(c.env.Root(), "code_*.py")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return c.runPython(ctx, f.Name(), nil)
}

func (c *CodeExecutorComponent) executePythonFile(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	filename, _ := args.String("filename")
	if !strings.HasSuffix(filename, ".py") {
		return nil, agentloop.InvalidArgumentError("Invalid file type. Only .py files are allowed.")
	}
	if !c.env.FileExists(filename) {
		return nil, fmt.Errorf("python: can't open file '%s': [Errno 2] No such file or directory", filename)
	}
	path, err := c.env.Resolve(filename)
	if err != nil {
		return nil, err
	}
	return c.runPython(ctx, path, args.Strings("args"))
}

func (c *CodeExecutorComponent) runPython(ctx context.Context, path string, scriptArgs []string) (any, error) {
	c.logger.Info("executing python file", zap.String("file", path), zap.String("workspace", c.env.Root()))
	argv := append([]string{c.python, "-B", path}, scriptArgs...)
	res, err := c.env.Run(ctx, argv, c.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if res.TimedOut {
		return nil, agentloop.CodeExecutionError(fmt.Sprintf("Timed out after %s.\n%s", c.cfg.Timeout, res.Output()))
	}
	if res.ExitCode != 0 {
		return nil, agentloop.CodeExecutionError(res.Stderr)
	}
	return res.Stdout, nil
}

// ValidateCommand reports whether commandLine may run and whether it may run
// through a shell. With a control list in force the shell is off, since shell
// syntax could smuggle in a filtered command.
func (c *CodeExecutorComponent) ValidateCommand(commandLine string) (allowed, useShell bool) {
	if strings.TrimSpace(commandLine) == "" {
		return false, false
	}
	argv, err := shlex.Split(commandLine)
	if err != nil || len(argv) == 0 {
		return false, false
	}
	name := argv[0]
	switch c.cfg.ShellControl {
	case ShellControlAllowlist:
		return lo.Contains(c.cfg.ShellAllowlist, name), false
	case ShellControlDenylist:
		return !lo.Contains(c.cfg.ShellDenylist, name), false
	default:
		return true, true
	}
}

func (c *CodeExecutorComponent) argv(commandLine string) ([]string, error) {
	allowed, useShell := c.ValidateCommand(commandLine)
	if !allowed {
		c.logger.Info("shell command not allowed", zap.String("command_line", commandLine))
		return nil, agentloop.OperationNotAllowedError("This shell command is not allowed.")
	}
	if useShell {
		return shellArgv(commandLine), nil
	}
	return shlex.Split(commandLine)
}

func (c *CodeExecutorComponent) executeShell(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	line, _ := args.String("command_line")
	argv, err := c.argv(line)
	if err != nil {
		return nil, err
	}
	c.logger.Info("executing command", zap.String("command_line", line), zap.String("dir", c.env.Root()))
	res, err := c.env.Run(ctx, argv, c.cfg.Timeout)
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, agentloop.CodeExecutionError(execErr.Error())
		}
		return nil, err
	}
	out := fmt.Sprintf("STDOUT:\n%s\nSTDERR:\n%s", res.Stdout, res.Stderr)
	if res.TimedOut {
		out += fmt.Sprintf("\nTimed out after %s.", c.cfg.Timeout)
	}
	return out, nil
}

func (c *CodeExecutorComponent) executeShellPopen(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	line, _ := args.String("command_line")
	argv, err := c.argv(line)
	if err != nil {
		return nil, err
	}
	c.logger.Info("starting command", zap.String("command_line", line), zap.String("dir", c.env.Root()))
	pid, err := c.env.Start(argv)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("Subprocess started with PID:'%d'", pid), nil
}
