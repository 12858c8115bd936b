// Package config loads autocycle settings from a YAML file overlaid with
// AUTOCYCLE_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type AgentConfig struct {
	Name string `yaml:"name" env:"AUTOCYCLE_AGENT_NAME" validate:"required"`
	Role string `yaml:"role" env:"AUTOCYCLE_AGENT_ROLE" validate:"required"`
	Task string `yaml:"task" env:"AUTOCYCLE_TASK"`

	// SendTokenLimit of 0 means three quarters of the model's context window.
	SendTokenLimit  int     `yaml:"send_token_limit" env:"AUTOCYCLE_SEND_TOKEN_LIMIT" validate:"gte=0"`
	MaxParseRetries int     `yaml:"max_parse_retries" env:"AUTOCYCLE_MAX_PARSE_RETRIES" validate:"gte=1,lte=10"`
	UseFunctionsAPI bool    `yaml:"use_functions_api" env:"AUTOCYCLE_USE_FUNCTIONS_API"`
	ContinuousMode  bool    `yaml:"continuous_mode" env:"AUTOCYCLE_CONTINUOUS_MODE"`
	ContinuousLimit int     `yaml:"continuous_limit" env:"AUTOCYCLE_CONTINUOUS_LIMIT" validate:"gte=0"`
	Budget          float64 `yaml:"budget" env:"AUTOCYCLE_BUDGET" validate:"gte=0"`
}

type LLMConfig struct {
	// Provider is anthropic, openai, or any provider gollm supports. Empty
	// selects the provider the model catalog lists for Model.
	Provider          string  `yaml:"provider" env:"AUTOCYCLE_LLM_PROVIDER"`
	Model             string  `yaml:"model" env:"AUTOCYCLE_LLM_MODEL" validate:"required"`
	APIKey            string  `yaml:"api_key" env:"AUTOCYCLE_LLM_API_KEY"`
	BaseURL           string  `yaml:"base_url" env:"AUTOCYCLE_LLM_BASE_URL" validate:"omitempty,url"`
	Temperature       float64 `yaml:"temperature" env:"AUTOCYCLE_LLM_TEMPERATURE" validate:"gte=0,lte=2"`
	MaxTokens         int     `yaml:"max_tokens" env:"AUTOCYCLE_LLM_MAX_TOKENS" validate:"gte=0"`
	RequestsPerMinute float64 `yaml:"requests_per_minute" env:"AUTOCYCLE_LLM_REQUESTS_PER_MINUTE" validate:"gte=0"`
	Burst             int     `yaml:"burst" env:"AUTOCYCLE_LLM_BURST" validate:"gte=0"`
	MaxRetries        int     `yaml:"max_retries" env:"AUTOCYCLE_LLM_MAX_RETRIES" validate:"gte=0"`
}

type WorkspaceConfig struct {
	Root string `yaml:"root" env:"AUTOCYCLE_WORKSPACE" validate:"required"`
}

type ShellConfig struct {
	ExecuteLocalCommands bool          `yaml:"execute_local_commands" env:"AUTOCYCLE_EXECUTE_LOCAL_COMMANDS"`
	Control              string        `yaml:"control" env:"AUTOCYCLE_SHELL_CONTROL" validate:"omitempty,oneof=allowlist denylist"`
	Allowlist            []string      `yaml:"allowlist" env:"AUTOCYCLE_SHELL_ALLOWLIST" envSeparator:","`
	Denylist             []string      `yaml:"denylist" env:"AUTOCYCLE_SHELL_DENYLIST" envSeparator:","`
	Timeout              time.Duration `yaml:"timeout" env:"AUTOCYCLE_SHELL_TIMEOUT" validate:"gte=0"`
}

type HistoryConfig struct {
	MaxTokens         int `yaml:"max_tokens" env:"AUTOCYCLE_HISTORY_MAX_TOKENS" validate:"gte=0"`
	FullMessageCount  int `yaml:"full_message_count" env:"AUTOCYCLE_HISTORY_FULL_MESSAGE_COUNT" validate:"gte=0"`
	OlderResultTokens int `yaml:"older_result_tokens" env:"AUTOCYCLE_HISTORY_OLDER_RESULT_TOKENS" validate:"gte=0"`
	WatchdogWindow    int `yaml:"watchdog_window" env:"AUTOCYCLE_WATCHDOG_WINDOW" validate:"gte=0"`
}

type StorageConfig struct {
	// DatabasePath, when set, stores cycle logs and episodes in SQLite.
	DatabasePath string `yaml:"database_path" env:"AUTOCYCLE_DATABASE_PATH"`
	// DebugDir, when set, also writes each cycle record to a file.
	DebugDir string `yaml:"debug_dir" env:"AUTOCYCLE_DEBUG_DIR"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"AUTOCYCLE_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"AUTOCYCLE_LOG_FORMAT" validate:"oneof=json console"`
}

// Config is the complete autocycle configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	LLM       LLMConfig       `yaml:"llm"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Shell     ShellConfig     `yaml:"shell"`
	History   HistoryConfig   `yaml:"history"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:            "AutoCycle",
			Role:            "an autonomous agent that completes tasks step by step using the commands available to it",
			MaxParseRetries: 3,
			UseFunctionsAPI: true,
		},
		LLM: LLMConfig{
			Model:             "gpt-4o",
			Temperature:       0,
			RequestsPerMinute: 60,
			Burst:             5,
			MaxRetries:        3,
		},
		Workspace: WorkspaceConfig{Root: "workspace"},
		Shell: ShellConfig{
			Control:  "denylist",
			Denylist: []string{"sudo", "su"},
			Timeout:  2 * time.Minute,
		},
		History: HistoryConfig{
			MaxTokens:         1024,
			FullMessageCount:  4,
			OlderResultTokens: 100,
			WatchdogWindow:    6,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults, applies the environment and validates
// the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their YAML names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field constraint and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
