package components

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	ignore "github.com/sabhiram/go-gitignore"
)

// ExecResult holds the result of a process run.
type ExecResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// DirEntry is one entry of a directory listing, relative to the workspace.
type DirEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// ExecutionEnvironment is the file and process surface commands act on. All
// paths are interpreted relative to the workspace root and may not escape it.
type ExecutionEnvironment interface {
	Root() string
	Resolve(path string) (string, error)

	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	FileExists(path string) bool
	ListDirectory(path string, recursive bool) ([]DirEntry, error)
	Glob(pattern string) ([]string, error)

	// Run executes argv in the workspace and waits for it. A zero timeout
	// means no limit beyond ctx.
	Run(ctx context.Context, argv []string, timeout time.Duration) (*ExecResult, error)
	// Start launches argv in the background with its output discarded and
	// returns its pid.
	Start(argv []string) (int, error)

	Platform() string
	OSVersion() string
}

// sensitiveEnvSuffixes are case-insensitive suffixes of variables kept out of
// child processes.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always passed through.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "PYENV_ROOT": true, "VIRTUAL_ENV": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// filterEnvironment returns environ without credentials.
func filterEnvironment(environ []string) []string {
	var filtered []string
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

// LocalExecutionEnvironment runs commands on this machine inside a workspace
// directory.
type LocalExecutionEnvironment struct {
	root    string
	ignorer *ignore.GitIgnore
}

// NewLocalExecutionEnvironment creates the workspace directory if needed and
// loads its .gitignore, when present, for listings and globs.
func NewLocalExecutionEnvironment(root string) (*LocalExecutionEnvironment, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("workspace: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	// Resolve symlinks so every path handed out shares the same prefix.
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}

	e := &LocalExecutionEnvironment{root: abs}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(abs, ".gitignore")); err == nil {
		e.ignorer = gi
	} else {
		e.ignorer = ignore.CompileIgnoreLines()
	}
	return e, nil
}

func (e *LocalExecutionEnvironment) Root() string      { return e.root }
func (e *LocalExecutionEnvironment) Platform() string  { return runtime.GOOS }
func (e *LocalExecutionEnvironment) OSVersion() string { return runtime.GOOS + "/" + runtime.GOARCH }

// Resolve maps path into the workspace. Absolute paths already inside the
// workspace are accepted as is; anything else is joined under the root, so
// ".." and symlinks cannot lead outside it.
func (e *LocalExecutionEnvironment) Resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(e.root, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	resolved, err := securejoin.SecureJoin(e.root, path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return resolved, nil
}

func (e *LocalExecutionEnvironment) rel(abs string) string {
	rel, err := filepath.Rel(e.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func (e *LocalExecutionEnvironment) ReadFile(path string) ([]byte, error) {
	resolved, err := e.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(resolved)
}

func (e *LocalExecutionEnvironment) WriteFile(path string, data []byte) error {
	resolved, err := e.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return os.WriteFile(resolved, data, 0o644)
}

func (e *LocalExecutionEnvironment) FileExists(path string) bool {
	resolved, err := e.Resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(resolved)
	return err == nil
}

// ListDirectory lists path, skipping .git and ignored entries. Recursive
// listings include files only, like the tree the model usually wants.
func (e *LocalExecutionEnvironment) ListDirectory(path string, recursive bool) ([]DirEntry, error) {
	dir, err := e.Resolve(path)
	if err != nil {
		return nil, err
	}
	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		var out []DirEntry
		for _, ent := range entries {
			rel := e.rel(filepath.Join(dir, ent.Name()))
			if e.skipped(rel, ent.IsDir()) {
				continue
			}
			de := DirEntry{Path: rel, IsDir: ent.IsDir()}
			if info, err := ent.Info(); err == nil && !ent.IsDir() {
				de.Size = info.Size()
			}
			out = append(out, de)
		}
		return out, nil
	}

	var out []DirEntry
	err = e.walk(dir, func(rel string, d fs.DirEntry) {
		de := DirEntry{Path: rel}
		if info, err := d.Info(); err == nil {
			de.Size = info.Size()
		}
		out = append(out, de)
	})
	return out, err
}

// Glob returns the workspace files matching pattern, sorted. A pattern
// without a slash matches base names anywhere in the tree.
func (e *LocalExecutionEnvironment) Glob(pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}
	byName := !strings.Contains(pattern, "/")

	var matches []string
	err := e.walk(e.root, func(rel string, d fs.DirEntry) {
		subject := rel
		if byName {
			subject = d.Name()
		}
		if ok, _ := filepath.Match(pattern, subject); ok {
			matches = append(matches, rel)
		}
	})
	sort.Strings(matches)
	return matches, err
}

func (e *LocalExecutionEnvironment) walk(dir string, visit func(rel string, d fs.DirEntry)) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		rel := e.rel(p)
		if e.skipped(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			visit(rel, d)
		}
		return nil
	})
}

func (e *LocalExecutionEnvironment) skipped(rel string, isDir bool) bool {
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return true
	}
	if isDir {
		return e.ignorer.MatchesPath(rel + "/")
	}
	return e.ignorer.MatchesPath(rel)
}

func (e *LocalExecutionEnvironment) command(ctx context.Context, argv []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.root
	cmd.Env = filterEnvironment(os.Environ())
	// Own process group, so a timeout takes down the children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second
	return cmd
}

func (e *LocalExecutionEnvironment) Run(ctx context.Context, argv []string, timeout time.Duration) (*ExecResult, error) {
	if len(argv) == 0 {
		return nil, errors.New("run: empty command")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := e.command(ctx, argv)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return result, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return nil, fmt.Errorf("run %s: %w", argv[0], err)
}

func (e *LocalExecutionEnvironment) Start(argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("start: empty command")
	}
	cmd := e.command(context.Background(), argv)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", argv[0], err)
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

// shellArgv wraps a command line for the platform shell.
func shellArgv(commandLine string) []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd.exe", "/c", commandLine}
	}
	if _, err := exec.LookPath("bash"); err == nil {
		return []string{"bash", "-c", commandLine}
	}
	return []string{"/bin/sh", "-c", commandLine}
}
