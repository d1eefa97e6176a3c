package compaction

import (
	"strings"
	"unicode/utf8"

	"sinhome/internal/provider"
)

// TokenCounter estimates token counts for text and turns.
type TokenCounter struct{}

// NewTokenCounter creates a new TokenCounter.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// EstimateText estimates the token count for a given text.
// This uses a simple heuristic: approximately 4 characters per token,
// counted in runes after trimming. Blank text costs nothing; anything
// else costs at least one token.
func (tc *TokenCounter) EstimateText(text string) int {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n == 0 {
		return 0
	}
	return max(1, (n+3)/4)
}

// EstimateContent estimates a turn content. Image parts are counted as
// their text placeholder.
func (tc *TokenCounter) EstimateContent(c provider.Content) int {
	return tc.EstimateText(c.PlainText())
}

// EstimateTurns estimates the total token count for a slice of turns.
// Unlike the backend's own accounting, no per-message overhead is added.
func (tc *TokenCounter) EstimateTurns(turns []provider.Turn) int {
	total := 0
	for _, t := range turns {
		total += tc.EstimateContent(t.Content)
	}
	return total
}
