package runner

import "sinhome/internal/window"

// Config holds configuration for the retry ladder.
type Config struct {
	// MaxDupReprompts is the number of override retries before the history
	// is summarized.
	// Default is 3.
	MaxDupReprompts int `json:"max_dup_reprompts"`

	// CouplesToKeep bounds the history window.
	// Default is 15.
	CouplesToKeep int `json:"couples_to_keep"`

	// TokenBudget caps the estimated tokens of the kept history.
	// Default is 4000.
	TokenBudget int `json:"token_budget"`

	// TruncateChars caps every history text turn.
	// Default is 300.
	TruncateChars int `json:"truncate_chars"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDupReprompts: 3,
		CouplesToKeep:   window.DefaultCouplesToKeep,
		TokenBudget:     window.DefaultTokenBudget,
		TruncateChars:   window.DefaultTruncateChars,
	}
}

// WithMaxDupReprompts returns a copy of the config with the specified retry count.
func (c Config) WithMaxDupReprompts(n int) Config {
	c.MaxDupReprompts = n
	return c
}

// WithWindow returns a copy of the config with the specified history bounds.
func (c Config) WithWindow(couples, tokenBudget int) Config {
	c.CouplesToKeep = couples
	c.TokenBudget = tokenBudget
	return c
}
