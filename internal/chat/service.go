// Package chat answers chat and script requests: it runs the retry ladder,
// applies the refusal re-prompt and the length rewrite, and dispatches the
// finished exchange to the conversation log.
package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sinhome/internal/convlog"
	"sinhome/internal/provider"
	"sinhome/internal/runner"
	"sinhome/internal/window"
	"sinhome/pkg/logger"
)

// Endpoint names used in conversation logs.
const (
	EndpointChat   = "chat"
	EndpointScript = "script"
)

// Script endpoint sampling.
const (
	ScriptTemperature = 0.8
	ScriptMaxTokens   = 150
)

// ScriptStop ends a script completion before the backend writes the next
// speaker's line.
var ScriptStop = []string{"\nuser:", "\nassistant:", "\nUser:", "\nAssistant:"}

// Sampling holds the default sampling parameters of a request.
type Sampling struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Config configures a Service.
type Config struct {
	Sampling Sampling
	// ScriptCouples bounds the script endpoint history.
	ScriptCouples int
	// TruncateChars caps script history turns.
	TruncateChars int
	// RefusalRetry enables the re-prompt after a refusal.
	RefusalRetry bool
	// ShortenOverChars triggers the rewrite of longer answers. Zero disables it.
	ShortenOverChars int
}

// DefaultConfig returns the configuration used when none is loaded.
func DefaultConfig() Config {
	return Config{
		Sampling:         Sampling{Temperature: 0.65, TopP: 0.9, MaxTokens: 200},
		ScriptCouples:    5,
		TruncateChars:    window.DefaultTruncateChars,
		RefusalRetry:     true,
		ShortenOverChars: 400,
	}
}

// Request is one chat or script request. Nil sampling fields fall back to
// the configured defaults.
type Request struct {
	SessionID    string
	RequestID    string
	Message      provider.Content
	SystemPrompt string
	History      []provider.Turn

	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	Stop          []string
	ScriptCouples *int

	// Payload is the request body without history, for the conversation log.
	Payload map[string]any
}

// Response is the answer to a Request.
type Response struct {
	Text      string      `json:"response"`
	Meta      runner.Meta `json:"meta"`
	Backend   string      `json:"backend"`
	RequestID string      `json:"request_id"`
	// Refused is set when the first answer was a refusal and was re-prompted.
	Refused bool `json:"refusal_retry"`
	// Shortened is set when the answer was rewritten or cut for length.
	Shortened bool `json:"shortened"`
}

// Service answers requests through one runner. It is safe for concurrent use.
type Service struct {
	runner    *runner.Runner
	completer provider.Completer
	convlog   *convlog.Logger

	mu  sync.RWMutex
	cfg Config
}

// NewService creates a Service. The conversation logger may be nil.
func NewService(r *runner.Runner, cfg Config, log *convlog.Logger) *Service {
	return &Service{
		runner:    r,
		completer: r.Completer(),
		convlog:   log,
		cfg:       cfg,
	}
}

// Backend returns the name of the completion backend.
func (s *Service) Backend() string {
	if s.completer == nil {
		return ""
	}
	return s.completer.Name()
}

// Completer returns the completion backend.
func (s *Service) Completer() provider.Completer {
	return s.completer
}

// Config returns the configuration in use.
func (s *Service) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UpdateConfig replaces the configuration for subsequent requests.
func (s *Service) UpdateConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Chat answers req with the budget-aware window and the retry ladder.
func (s *Service) Chat(ctx context.Context, req Request) (*Response, error) {
	cfg := s.Config()
	req.RequestID = requestID(req.RequestID)
	log := logger.WithRequest(req.RequestID, req.SessionID)

	params := cfg.params(req)
	text, meta, err := s.runner.Run(ctx, runner.Request{
		System:   systemTurn(req.SystemPrompt),
		History:  req.History,
		UserText: req.Message,
		Params:   params,
		Logger:   log,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Chat request failed")
		s.convlog.LogError(EndpointChat, req.SessionID, err)
		return nil, err
	}

	resp := &Response{Meta: meta, Backend: s.Backend(), RequestID: req.RequestID}
	if err := s.finish(ctx, cfg, req, params, text, resp, log); err != nil {
		s.convlog.LogError(EndpointChat, req.SessionID, err)
		return nil, err
	}

	s.dispatch(EndpointChat, req, resp)
	return resp, nil
}

// Script answers req with the couple-trim window and a single call bounded
// by speaker stop sequences. There is no duplicate retry.
func (s *Service) Script(ctx context.Context, req Request) (*Response, error) {
	cfg := s.Config()
	req.RequestID = requestID(req.RequestID)
	log := logger.WithRequest(req.RequestID, req.SessionID)

	if s.completer == nil {
		return nil, runner.ErrNoCompleter
	}
	if req.Message.IsEmpty() {
		return nil, runner.ErrEmptyMessage
	}

	couples := cfg.ScriptCouples
	if req.ScriptCouples != nil {
		couples = *req.ScriptCouples
	}
	msgs := window.NewSelector(cfg.TruncateChars).
		BuildScriptMessages(systemTurn(req.SystemPrompt), req.History, req.Message, couples)

	params := cfg.scriptParams(req)
	log.Debug().Int("messages", len(msgs)).Int("couples", couples).Msg("Script completion call")

	raw, err := s.completer.Complete(ctx, msgs, params)
	if err != nil {
		log.Warn().Err(err).Msg("Script request failed")
		s.convlog.LogError(EndpointScript, req.SessionID, err)
		return nil, err
	}

	resp := &Response{
		Meta: runner.Meta{
			Audit:    []string{},
			Attempts: []runner.Attempt{{Stage: runner.StageInitial, Temperature: params.Temperature}},
		},
		Backend:   s.Backend(),
		RequestID: req.RequestID,
	}
	if err := s.finish(ctx, cfg, req, params, runner.Clean(raw), resp, log); err != nil {
		s.convlog.LogError(EndpointScript, req.SessionID, err)
		return nil, err
	}

	s.dispatch(EndpointScript, req, resp)
	return resp, nil
}

// finish applies the refusal re-prompt and the length rewrite and stores
// the final text in resp.
func (s *Service) finish(ctx context.Context, cfg Config, req Request, params provider.Params, text string, resp *Response, log *zerolog.Logger) error {
	if cfg.RefusalRetry {
		retried, refused, err := s.retryRefusal(ctx, req, params, text)
		if err != nil {
			return err
		}
		if refused {
			log.Info().Msg("Refusal detected, answer re-prompted")
			text = retried
			resp.Refused = true
		}
	}

	if shortened, ok := s.shorten(ctx, text, cfg.ShortenOverChars, params, log); ok {
		text = shortened
		resp.Shortened = true
	}

	resp.Text = text
	return nil
}

func (s *Service) dispatch(endpoint string, req Request, resp *Response) {
	extra := map[string]any{
		"history_selection": resp.Meta.Audit,
		"dup_reprompts":     resp.Meta.DupReprompts,
		"used_summary":      resp.Meta.UsedSummary,
		"backend":           resp.Backend,
	}
	if resp.Meta.Summary != "" {
		extra["history_summary"] = resp.Meta.Summary
	}
	if resp.Refused {
		extra["refusal_retry"] = true
	}
	if resp.Shortened {
		extra["shortened"] = true
	}

	s.convlog.Dispatch(convlog.Entry{
		Endpoint:     endpoint,
		SessionID:    req.SessionID,
		RequestID:    resp.RequestID,
		SystemPrompt: req.SystemPrompt,
		History:      req.History,
		UserMessage:  req.Message.PlainText(),
		Response:     resp.Text,
		Payload:      req.Payload,
		Extra:        extra,
		Meta:         resp.Meta,
	})
}

func (c Config) params(req Request) provider.Params {
	p := provider.Params{
		Temperature: c.Sampling.Temperature,
		TopP:        c.Sampling.TopP,
		MaxTokens:   c.Sampling.MaxTokens,
		Stop:        req.Stop,
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		p.TopP = *req.TopP
	}
	if req.MaxTokens != nil {
		p.MaxTokens = *req.MaxTokens
	}
	return p
}

func (c Config) scriptParams(req Request) provider.Params {
	p := c.params(req)
	if req.Temperature == nil {
		p.Temperature = ScriptTemperature
	}
	if req.MaxTokens == nil {
		p.MaxTokens = ScriptMaxTokens
	}
	if len(req.Stop) == 0 {
		p.Stop = append([]string(nil), ScriptStop...)
	}
	return p
}

func systemTurn(prompt string) *provider.Turn {
	if prompt == "" {
		return nil
	}
	t := provider.Text(provider.RoleSystem, prompt)
	return &t
}

func requestID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
