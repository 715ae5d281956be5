// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting for model traffic. Every provider is
// approximated with the GPT-4 encoding.
type TokenCounter struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // codec construction is costly; share one instance
var (
	defaultOnce    sync.Once
	defaultCounter *TokenCounter
)

// NewTokenCounter creates a token counter using the GPT-4 encoding.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in text, falling back to a
// four-characters-per-token estimate when the codec is unavailable.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountTokens counts tokens with a shared counter.
func CountTokens(text string) int {
	defaultOnce.Do(func() {
		defaultCounter, _ = NewTokenCounter()
	})
	return defaultCounter.CountTokens(text)
}

// TruncateToTokenLimit shortens text to roughly limit tokens, cutting
// proportionally by characters and appending "...".
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	current := tc.CountTokens(text)
	if current <= limit {
		return text
	}

	ratio := float64(limit) / float64(current)
	charLimit := int(float64(len(text)) * ratio * 0.9)
	if charLimit >= len(text) {
		return text
	}
	return text[:charLimit] + "..."
}
