// Package runner drives completion calls for one chat request and recovers
// from answers that repeat earlier assistant turns.
package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"sinhome/internal/compaction"
	"sinhome/internal/provider"
	"sinhome/internal/repetition"
	"sinhome/internal/textnorm"
	"sinhome/internal/window"
	"sinhome/pkg/logger"
)

const overrideClause = "\n\n<RETRY_OVERRIDE>\n" +
	"IMPORTANT: Ta dernière réponse est IDENTIQUE à une réponse précédente.\n" +
	"Réécris une nouvelle réponse différente, même intention, même personnage, sans copier-coller.\n" +
	"Garde un style chat (1-3 phrases), pas de meta.\n" +
	"</RETRY_OVERRIDE>"

const summaryOverrideClause = "\n<RETRY_OVERRIDE>\n" +
	"Ta dernière réponse boucle. En te basant sur le résumé ci-dessus, réponds avec un message nouveau.\n" +
	"Toujours court (1-3 phrases), pas de meta.\n" +
	"</RETRY_OVERRIDE>"

// Temperature floors and bumps of the retry ladder.
const (
	retryTemperatureFloor = 0.75
	overrideTemperatureUp = 0.1
	summaryTemperatureUp  = 0.15
)

// Request is one chat turn to answer.
type Request struct {
	// System is the persona turn. It may be nil.
	System *provider.Turn
	// History is the full caller-supplied conversation, oldest first.
	History []provider.Turn
	// UserText is the message being answered.
	UserText provider.Content
	// Params are the base sampling parameters.
	Params provider.Params
	// Logger is an optional request-scoped logger.
	Logger *zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSummarizer replaces the summarizer built from the runner's completer.
func WithSummarizer(s *compaction.Summarizer) Option {
	return func(r *Runner) {
		r.summarizer = s
	}
}

// Runner answers chat requests through a Completer. It holds no
// per-request state and is safe for concurrent use.
type Runner struct {
	completer  provider.Completer
	summarizer *compaction.Summarizer

	mu       sync.RWMutex
	config   Config
	selector *window.Selector
}

// New creates a Runner. The summary call goes to the same completer with
// default summary settings unless WithSummarizer is given.
func New(c provider.Completer, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		completer: c,
		config:    cfg,
		selector:  window.NewSelector(cfg.TruncateChars),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.summarizer == nil {
		r.summarizer = compaction.NewSummarizer(compaction.DefaultConfig(), c)
	}
	return r
}

// Completer returns the backend the runner calls.
func (r *Runner) Completer() provider.Completer {
	return r.completer
}

// Config returns the configuration in use.
func (r *Runner) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// UpdateConfig replaces the configuration for subsequent requests.
func (r *Runner) UpdateConfig(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
	r.selector = window.NewSelector(cfg.TruncateChars)
}

func (r *Runner) snapshot() (Config, *window.Selector) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config, r.selector
}

// IsDuplicateOfAssistantHistory reports whether candidate matches, case
// insensitively and after canonicalization, any assistant text turn of
// history. Blank candidates never match.
func IsDuplicateOfAssistantHistory(candidate string, history []provider.Turn) bool {
	key := textnorm.Key(candidate)
	if key == "" {
		return false
	}
	for _, t := range history {
		if t.Role != provider.RoleAssistant || t.Content.IsParts() {
			continue
		}
		if textnorm.Key(t.Content.Text) == key {
			return true
		}
	}
	return false
}

// Clean applies the repetition collapser and trailing-break strip every
// candidate goes through.
func Clean(text string) string {
	return textnorm.StripTrailingBreaks(repetition.Collapse(text))
}

// Run answers req. The first candidate is accepted unless it duplicates a
// prior assistant turn; then up to MaxDupReprompts override retries are
// made, and finally one retry that replaces the history with its summary.
// The last candidate is returned once the ladder is exhausted, duplicate
// or not.
//
// Any completer error aborts the ladder and is returned as is. A failed or
// empty summary is skipped unless the context is done.
func (r *Runner) Run(ctx context.Context, req Request) (string, Meta, error) {
	meta := Meta{Audit: []string{}}
	if r.completer == nil {
		return "", meta, ErrNoCompleter
	}
	if req.UserText.IsEmpty() {
		return "", meta, ErrEmptyMessage
	}

	cfg, sel := r.snapshot()
	log := req.Logger
	if log == nil {
		log = logger.Get()
	}
	base := req.Params.Temperature

	call := func(stage Stage, system *provider.Turn, history []provider.Turn, temperature float64) (string, error) {
		msgs, audit := sel.BuildLimited(system, history, req.UserText, cfg.CouplesToKeep, cfg.TokenBudget)
		meta.Audit = audit

		params := req.Params
		params.Temperature = temperature
		log.Debug().
			Str("stage", stage.String()).
			Int("messages", len(msgs)).
			Float64("temperature", temperature).
			Msg("completion call")

		text, err := r.completer.Complete(ctx, msgs, params)
		if err != nil {
			return "", err
		}
		return Clean(text), nil
	}

	text, err := call(StageInitial, req.System, req.History, base)
	if err != nil {
		return "", meta, err
	}
	dup := IsDuplicateOfAssistantHistory(text, req.History)
	meta.Attempts = append(meta.Attempts, Attempt{Stage: StageInitial, Temperature: base, Duplicate: dup})

	overrideTemp := max(retryTemperatureFloor, base+overrideTemperatureUp)
	for i := 1; dup && i <= cfg.MaxDupReprompts; i++ {
		meta.DupReprompts = i
		log.Info().Int("dup_reprompt", i).Msg("Answer duplicates history, retrying with override")

		system := provider.Text(provider.RoleSystem, systemContent(req.System)+overrideClause)
		text, err = call(StageOverride, &system, req.History, overrideTemp)
		if err != nil {
			return "", meta, err
		}
		dup = IsDuplicateOfAssistantHistory(text, req.History)
		meta.Attempts = append(meta.Attempts, Attempt{Stage: StageOverride, Temperature: overrideTemp, Duplicate: dup})
	}
	if !dup {
		return text, meta, nil
	}

	if len(req.History) == 0 {
		return text, meta, nil
	}

	summary, err := r.summarizer.Summarize(ctx, req.History)
	meta.Attempts = append(meta.Attempts, Attempt{Stage: StageSummary, Temperature: r.summarizer.Config().Temperature})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", meta, ctxErr
		}
		if !errors.Is(err, compaction.ErrEmptySummary) {
			log.Warn().Err(err).Msg("History summary failed, keeping last answer")
		} else {
			log.Debug().Msg("History summary empty, keeping last answer")
		}
		return text, meta, nil
	}

	meta.UsedSummary = true
	meta.Summary = summary
	log.Info().Int("summary_len", len(summary)).Msg("summary_used")

	summaryTemp := max(retryTemperatureFloor, base+summaryTemperatureUp)
	system := provider.Text(provider.RoleSystem, summarizedSystemContent(req.System, summary))
	text, err = call(StageSummarized, &system, nil, summaryTemp)
	if err != nil {
		return "", meta, err
	}
	meta.Attempts = append(meta.Attempts, Attempt{
		Stage:       StageSummarized,
		Temperature: summaryTemp,
		Duplicate:   IsDuplicateOfAssistantHistory(text, req.History),
	})
	return text, meta, nil
}

func systemContent(system *provider.Turn) string {
	if system == nil {
		return ""
	}
	return system.Content.PlainText()
}

func summarizedSystemContent(system *provider.Turn, summary string) string {
	return systemContent(system) +
		"\n\n<CONTEXT_SUMMARY>\n" + summary + "\n</CONTEXT_SUMMARY>\n" +
		summaryOverrideClause
}
