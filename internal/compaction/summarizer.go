package compaction

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sinhome/internal/provider"
)

// Summarizer compresses a conversation into a handful of reformulated
// bullet points through one completion call.
type Summarizer struct {
	mu        sync.RWMutex
	config    SummaryConfig
	completer provider.Completer
	counter   *TokenCounter
}

// NewSummarizer creates a new Summarizer.
func NewSummarizer(config SummaryConfig, c provider.Completer) *Summarizer {
	if config.SystemPrompt == "" {
		config.SystemPrompt = defaultSummaryPrompt
	}
	return &Summarizer{
		config:    config,
		completer: c,
		counter:   NewTokenCounter(),
	}
}

// Config returns the summary configuration in use.
func (s *Summarizer) Config() SummaryConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// SetConfig replaces the summary configuration for subsequent calls. An
// empty SystemPrompt keeps the current one.
func (s *Summarizer) SetConfig(config SummaryConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if config.SystemPrompt == "" {
		config.SystemPrompt = s.config.SystemPrompt
	}
	s.config = config
}

// Transcript renders the user and assistant turns of history as
// "ROLE: content" lines. Blank turns and other roles are skipped.
func Transcript(history []provider.Turn) string {
	var lines []string
	for _, t := range history {
		if t.Role != provider.RoleUser && t.Role != provider.RoleAssistant {
			continue
		}
		text := strings.TrimSpace(t.Content.PlainText())
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(t.Role)), text))
	}
	return strings.Join(lines, "\n")
}

// Summarize returns the trimmed summary of history. ErrEmptySummary is
// returned without calling the backend when history holds no usable turn,
// and when the backend answers with blank text.
func (s *Summarizer) Summarize(ctx context.Context, history []provider.Turn) (string, error) {
	if s.completer == nil {
		return "", ErrNoCompleter
	}

	transcript := Transcript(history)
	if transcript == "" {
		return "", ErrEmptySummary
	}
	config := s.Config()

	messages := []provider.Turn{
		provider.Text(provider.RoleSystem, config.SystemPrompt),
		provider.Text(provider.RoleUser, transcript),
	}
	params := provider.Params{
		Temperature: config.Temperature,
		TopP:        config.TopP,
		MaxTokens:   config.MaxTokens,
	}

	summary, err := s.completer.Complete(ctx, messages, params)
	if err != nil {
		return "", fmt.Errorf("summarize %d tokens of history: %w", s.counter.EstimateTurns(history), err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}
