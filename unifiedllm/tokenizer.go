package unifiedllm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// TokenCounter measures text in model token units. It uses the tiktoken
// encoding for the model when one is available and otherwise falls back to
// the chars/4 estimate.
type TokenCounter struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter creates a counter for model. The encoding is loaded lazily
// on first use.
func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

// Model returns the model the counter measures for.
func (c *TokenCounter) Model() string { return c.model }

func (c *TokenCounter) encoding() *tiktoken.Tiktoken {
	c.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(c.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding(fallbackEncoding)
		}
		if err == nil {
			c.enc = enc
		}
	})
	return c.enc
}

// Count returns the number of tokens in text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return EstimateTokens(text)
}

// EstimateTokens is the rough chars/4 approximation used when no tokenizer
// is available.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
