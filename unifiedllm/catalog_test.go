package unifiedllm

import (
	"math"
	"testing"
)

func TestGetModelInfoByAlias(t *testing.T) {
	info := GetModelInfo("sonnet")
	if info == nil || info.ID != "claude-sonnet-4-5" {
		t.Fatalf("expected sonnet alias to resolve, got %+v", info)
	}
	if GetModelInfo("no-such-model") != nil {
		t.Error("expected nil for unknown model")
	}
}

func TestListAndLatestModels(t *testing.T) {
	for _, m := range ListModels("openai") {
		if m.Provider != "openai" {
			t.Errorf("unexpected provider %q in openai list", m.Provider)
		}
	}
	if len(ListModels("")) != len(Models) {
		t.Error("expected unfiltered list to contain every model")
	}
	if latest := GetLatestModel("anthropic"); latest == nil || latest.ID != "claude-opus-4-6" {
		t.Errorf("unexpected latest anthropic model: %+v", latest)
	}
	if GetLatestModel("nobody") != nil {
		t.Error("expected nil for unknown provider")
	}
}

func TestCostOf(t *testing.T) {
	got := CostOf("gpt-4o-mini", Usage{InputTokens: 1_000_000, OutputTokens: 500_000})
	if math.Abs(got-0.45) > 1e-9 {
		t.Errorf("expected 0.45, got %v", got)
	}
	if CostOf("unknown", Usage{InputTokens: 1000}) != 0 {
		t.Error("unknown models should cost nothing")
	}
}

func TestContextWindowOf(t *testing.T) {
	if got := ContextWindowOf("gpt-4o", 4000); got != 128000 {
		t.Errorf("expected 128000, got %d", got)
	}
	if got := ContextWindowOf("local-model", 4000); got != 4000 {
		t.Errorf("expected fallback, got %d", got)
	}
}
