package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/martinemde/autocycle/agentloop"
	"github.com/martinemde/autocycle/config"
	"github.com/martinemde/autocycle/unifiedllm"
)

// resolveProvider returns the configured provider, or the one the model
// catalog lists for the model.
func resolveProvider(cfg config.LLMConfig) (string, error) {
	if cfg.Provider != "" {
		return cfg.Provider, nil
	}
	if info := unifiedllm.GetModelInfo(cfg.Model); info != nil {
		return info.Provider, nil
	}
	return "", fmt.Errorf("cannot infer a provider for model %q; set llm.provider", cfg.Model)
}

// newAdapter builds the provider adapter. anthropic and openai use their
// SDKs directly; every other provider goes through gollm.
func newAdapter(provider string, cfg config.LLMConfig) (unifiedllm.ProviderAdapter, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(strings.ToUpper(provider) + "_API_KEY")
	}
	switch provider {
	case "anthropic":
		return unifiedllm.NewAnthropicAdapter(apiKey, cfg.BaseURL, cfg.Model), nil
	case "openai":
		return unifiedllm.NewOpenAIAdapter(apiKey, cfg.BaseURL, cfg.Model), nil
	default:
		opts := []unifiedllm.GollmAdapterOption{
			unifiedllm.WithGollmModel(cfg.Model),
			unifiedllm.WithGollmTemperature(cfg.Temperature),
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, unifiedllm.WithGollmMaxTokens(cfg.MaxTokens))
		}
		return unifiedllm.NewGollmAdapter(provider, apiKey, opts...)
	}
}

// newTransport wires the provider into a client with logging, rate limiting
// and cost tracking, and wraps it for the agent.
func newTransport(cfg config.LLMConfig, budget *unifiedllm.Budget, logger *zap.Logger) (*agentloop.LLMTransport, *unifiedllm.Client, error) {
	provider, err := resolveProvider(cfg)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := newAdapter(provider, cfg)
	if err != nil {
		return nil, nil, err
	}
	client := unifiedllm.NewClient(
		unifiedllm.WithProvider(provider, adapter),
		unifiedllm.WithDefaultProvider(provider),
		unifiedllm.WithMiddleware(
			unifiedllm.LoggingMiddleware(logger.Named("llm")),
			unifiedllm.RateLimitMiddleware(unifiedllm.NewRateLimiter(cfg.RequestsPerMinute, cfg.Burst)),
		),
		unifiedllm.WithBudget(budget),
	)

	policy := unifiedllm.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("retrying completion", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	opts := []agentloop.TransportOption{
		agentloop.WithTransportProvider(provider),
		agentloop.WithRetryPolicy(policy),
		agentloop.WithTemperature(cfg.Temperature),
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, agentloop.WithMaxTokens(cfg.MaxTokens))
	}
	return agentloop.NewLLMTransport(client, cfg.Model, opts...), client, nil
}

// sendTokenLimit returns the configured limit, or three quarters of the
// model's context window.
func sendTokenLimit(configured int, model string) int {
	if configured > 0 {
		return configured
	}
	return unifiedllm.ContextWindowOf(model, 8192) * 3 / 4
}
