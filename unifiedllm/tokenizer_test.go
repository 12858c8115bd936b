package unifiedllm

import "testing"

func TestEstimateTokens(t *testing.T) {
	tests := map[string]int{"": 0, "a": 1, "abcd": 1, "abcdefgh": 2}
	for text, want := range tests {
		if got := EstimateTokens(text); got != want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", text, got, want)
		}
	}
}

func TestTokenCounterEmpty(t *testing.T) {
	c := NewTokenCounter("gpt-4o")
	if c.Count("") != 0 {
		t.Error("empty text should count zero tokens")
	}
	if c.Model() != "gpt-4o" {
		t.Errorf("unexpected model %q", c.Model())
	}
}
