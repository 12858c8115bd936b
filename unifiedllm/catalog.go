package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID                   string   `json:"id"`
	Provider             string   `json:"provider"`
	DisplayName          string   `json:"display_name"`
	ContextWindow        int      `json:"context_window"`
	MaxOutput            int      `json:"max_output"`
	SupportsTools        bool     `json:"supports_tools"`
	InputCostPerMillion  float64  `json:"input_cost_per_million"`
	OutputCostPerMillion float64  `json:"output_cost_per_million"`
	Aliases              []string `json:"aliases,omitempty"`
}

// Models is the built-in model catalog. Within a provider, entries are
// ordered newest first.
var Models = []ModelInfo{
	// Anthropic
	{
		ID: "claude-opus-4-6", Provider: "anthropic", DisplayName: "Claude Opus 4.6",
		ContextWindow: 200000, MaxOutput: 32768, SupportsTools: true,
		InputCostPerMillion: 15.0, OutputCostPerMillion: 75.0,
		Aliases: []string{"opus", "claude-opus"},
	},
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: 16384, SupportsTools: true,
		InputCostPerMillion: 3.0, OutputCostPerMillion: 15.0,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},
	{
		ID: "claude-haiku-4-5", Provider: "anthropic", DisplayName: "Claude Haiku 4.5",
		ContextWindow: 200000, MaxOutput: 8192, SupportsTools: true,
		InputCostPerMillion: 1.0, OutputCostPerMillion: 5.0,
		Aliases: []string{"haiku", "claude-haiku"},
	},

	// OpenAI
	{
		ID: "gpt-5.2", Provider: "openai", DisplayName: "GPT-5.2",
		ContextWindow: 400000, MaxOutput: 32768, SupportsTools: true,
		InputCostPerMillion: 2.50, OutputCostPerMillion: 10.0,
		Aliases: []string{"gpt5"},
	},
	{
		ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o",
		ContextWindow: 128000, MaxOutput: 16384, SupportsTools: true,
		InputCostPerMillion: 2.50, OutputCostPerMillion: 10.0,
	},
	{
		ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o mini",
		ContextWindow: 128000, MaxOutput: 16384, SupportsTools: true,
		InputCostPerMillion: 0.15, OutputCostPerMillion: 0.60,
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// GetLatestModel returns the first (newest) model for a provider, or nil.
func GetLatestModel(provider string) *ModelInfo {
	for i := range Models {
		if Models[i].Provider == provider {
			return &Models[i]
		}
	}
	return nil
}

// CostOf returns the dollar cost of usage on the given model. Unknown models
// cost nothing.
func CostOf(modelID string, usage Usage) float64 {
	info := GetModelInfo(modelID)
	if info == nil {
		return 0
	}
	return float64(usage.InputTokens)*info.InputCostPerMillion/1e6 +
		float64(usage.OutputTokens)*info.OutputCostPerMillion/1e6
}

// ContextWindowOf returns the catalog context window for a model, or
// fallback when the model is unknown.
func ContextWindowOf(modelID string, fallback int) int {
	if info := GetModelInfo(modelID); info != nil && info.ContextWindow > 0 {
		return info.ContextWindow
	}
	return fallback
}
