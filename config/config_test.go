package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autocycle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
agent:
  name: Scout
  task: Summarize README.md
  max_parse_retries: 5
llm:
  provider: anthropic
  model: claude-sonnet-4-5
shell:
  execute_local_commands: true
  control: allowlist
  allowlist: [ls, cat]
  timeout: 30s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Scout", cfg.Agent.Name)
	assert.Equal(t, "Summarize README.md", cfg.Agent.Task)
	assert.Equal(t, 5, cfg.Agent.MaxParseRetries)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	assert.True(t, cfg.Shell.ExecuteLocalCommands)
	assert.Equal(t, []string{"ls", "cat"}, cfg.Shell.Allowlist)
	assert.Equal(t, 30*time.Second, cfg.Shell.Timeout)
	// Untouched sections keep their defaults.
	assert.Equal(t, Default().History, cfg.History)
	assert.Equal(t, Default().Agent.Role, cfg.Agent.Role)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, "# nothing here\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "llm:\n  model: gpt-4o-mini\n")
	t.Setenv("AUTOCYCLE_LLM_MODEL", "gpt-4.1")
	t.Setenv("AUTOCYCLE_SHELL_DENYLIST", "rm,shutdown")
	t.Setenv("AUTOCYCLE_BUDGET", "1.5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
	assert.Equal(t, []string{"rm", "shutdown"}, cfg.Shell.Denylist)
	assert.InDelta(t, 1.5, cfg.Agent.Budget, 1e-9)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "agent:\n  nmae: typo\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nmae")
}

func TestLoadRejectsMalformedEnvironment(t *testing.T) {
	t.Setenv("AUTOCYCLE_MAX_PARSE_RETRIES", "many")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"retries too low", func(c *Config) { c.Agent.MaxParseRetries = 0 }, "agent.max_parse_retries: failed gte=1"},
		{"retries too high", func(c *Config) { c.Agent.MaxParseRetries = 11 }, "agent.max_parse_retries: failed lte=10"},
		{"missing model", func(c *Config) { c.LLM.Model = "" }, "llm.model: failed required"},
		{"bad shell control", func(c *Config) { c.Shell.Control = "sometimes" }, "shell.control: failed oneof"},
		{"bad base url", func(c *Config) { c.LLM.BaseURL = "not a url" }, "llm.base_url: failed url"},
		{"negative budget", func(c *Config) { c.Agent.Budget = -1 }, "agent.budget: failed gte=0"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level: failed oneof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.Agent.Name = ""
	cfg.LLM.Temperature = 3
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent.name")
	assert.Contains(t, err.Error(), "llm.temperature")
}
