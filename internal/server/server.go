// Package server wires the conversation engine from a configuration. The
// serve and chat commands share it so both answer through the same pipeline.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	v1 "sinhome/api/v1"
	"sinhome/internal/chat"
	"sinhome/internal/compaction"
	"sinhome/internal/config"
	"sinhome/internal/convlog"
	"sinhome/internal/gateway"
	"sinhome/internal/gateway/websocket"
	"sinhome/internal/provider"
	"sinhome/internal/provider/grok"
	"sinhome/internal/provider/vllm"
	"sinhome/internal/runner"
	"sinhome/internal/storage"
	"sinhome/pkg/logger"
)

// Options tunes what New builds.
type Options struct {
	Version string
	// Serve builds the HTTP gateway, the log stream hub, the retention
	// schedule and the config watcher. Without it only the chat pipeline
	// and its conversation log are built.
	Serve bool
	// Completer replaces the configured backend.
	Completer provider.Completer
}

// Server holds every component of a running engine.
type Server struct {
	cfg     *config.Config
	version string

	completer  provider.Completer
	summarizer *compaction.Summarizer
	runner     *runner.Runner
	chat       *chat.Service

	db      *storage.DB
	convlog *convlog.Logger
	pruner  *convlog.Pruner

	hub     *websocket.Hub
	gateway *gateway.Server
	watcher *gateway.Watcher
}

// RegisterBackends registers the vllm and grok factories built from cfg.
func RegisterBackends(cfg *config.Config) {
	provider.Register(vllm.Name, vllm.Factory(vllm.Config{
		APIKey:   cfg.VLLM.APIKey,
		Endpoint: cfg.VLLM.Endpoint,
		Model:    cfg.VLLM.Model,
		Timeout:  cfg.VLLM.Timeout,
	}))
	provider.Register(grok.Name, grok.Factory(grok.Config{
		APIKey:   cfg.Grok.APIKey,
		Endpoint: cfg.Grok.Endpoint,
		Model:    cfg.Grok.Model,
		Timeout:  cfg.Grok.Timeout,
	}))
}

// New builds the engine described by cfg. The backend is selected once,
// here; a reload never switches it.
func New(cfg *config.Config, opts Options) (*Server, error) {
	s := &Server{cfg: cfg, version: opts.Version}

	s.completer = opts.Completer
	if s.completer == nil {
		RegisterBackends(cfg)
		c, err := provider.New(cfg.Backend.Default)
		if err != nil {
			return nil, err
		}
		s.completer = c
	}

	s.summarizer = compaction.NewSummarizer(SummaryConfig(cfg), s.completer)
	s.runner = runner.New(s.completer, RunnerConfig(cfg), runner.WithSummarizer(s.summarizer))

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	s.db = db

	if opts.Serve {
		s.hub = websocket.NewHub(cfg.ConvLog.StreamBuffer)
	}

	if cfg.ConvLog.Enabled {
		logOpts := convlog.Options{Dir: cfg.ConvLog.Dir, Store: db}
		if s.hub != nil {
			logOpts.Broadcaster = s.hub
		}
		l, err := convlog.New(logOpts)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("conversation log: %w", err)
		}
		s.convlog = l

		if opts.Serve && cfg.ConvLog.RetentionDays > 0 {
			p, err := convlog.NewPruner(l, cfg.ConvLog.RetentionDays, cfg.ConvLog.PruneSchedule)
			if err != nil {
				db.Close()
				return nil, err
			}
			s.pruner = p
		}
	}

	s.chat = chat.NewService(s.runner, ChatConfig(cfg), s.convlog)

	if opts.Serve {
		s.gateway = gateway.NewServer(cfg, s.hub, &v1.RouterDeps{
			Chat:    s.chat,
			Logs:    db,
			Hub:     s.hub,
			Version: opts.Version,
		})
		if err := s.initWatcher(); err != nil {
			db.Close()
			return nil, err
		}
	}

	schema, _ := db.SchemaVersion()
	logger.Info().
		Str("backend", s.completer.Name()).
		Str("storage", db.Path()).
		Int("schema", schema).
		Bool("convlog", s.convlog != nil).
		Msg("Engine initialized")

	return s, nil
}

func (s *Server) initWatcher() error {
	path := config.Path()
	if path == "" {
		return nil
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		logger.Debug().Str("path", path).Msg("Config directory missing, hot reload disabled")
		return nil
	}
	w, err := gateway.NewWatcher(s.hub, path, s.Reload)
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	s.watcher = w
	s.gateway.SetWatcher(w)
	return nil
}

// Run serves until ctx is done or a component fails. It requires a
// Server built with Options.Serve.
func (s *Server) Run(ctx context.Context) error {
	if s.gateway == nil {
		return errors.New("server was built without the gateway")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})
	g.Go(func() error { return s.gateway.Run(ctx) })
	if s.pruner != nil {
		g.Go(func() error { return s.pruner.Run(ctx) })
	}
	if s.watcher != nil {
		g.Go(func() error { return s.watcher.Run(ctx) })
	}
	return g.Wait()
}

// Reload re-reads the configuration file and applies the window, retry,
// sampling and chat sections.
func (s *Server) Reload(path string) error {
	cfg, err := config.Reload()
	if err != nil {
		return err
	}
	if cfg.Backend.Default != s.cfg.Backend.Default {
		logger.Warn().
			Str("current", s.cfg.Backend.Default).
			Str("configured", cfg.Backend.Default).
			Msg("Backend change requires a restart")
	}

	s.runner.UpdateConfig(RunnerConfig(cfg))
	s.summarizer.SetConfig(SummaryConfig(cfg))
	s.chat.UpdateConfig(ChatConfig(cfg))

	logger.Info().Str("path", path).Msg("Configuration reloaded")
	return nil
}

// Close waits for pending conversation log writes and closes storage.
func (s *Server) Close() error {
	if s.convlog != nil {
		s.convlog.Wait()
	}
	return s.db.Close()
}

// Config returns the configuration the server was built from.
func (s *Server) Config() *config.Config { return s.cfg }

// Chat returns the chat service.
func (s *Server) Chat() *chat.Service { return s.chat }

// DB returns the log storage.
func (s *Server) DB() *storage.DB { return s.db }

// Gateway returns the HTTP gateway, nil unless built with Options.Serve.
func (s *Server) Gateway() *gateway.Server { return s.gateway }

// ConvLog returns the conversation logger, nil when disabled.
func (s *Server) ConvLog() *convlog.Logger { return s.convlog }

// RunnerConfig extracts the retry ladder configuration.
func RunnerConfig(cfg *config.Config) runner.Config {
	return runner.Config{
		MaxDupReprompts: cfg.Retry.MaxDupReprompts,
		CouplesToKeep:   cfg.Window.CouplesToKeep,
		TokenBudget:     cfg.Window.TokenBudget,
		TruncateChars:   cfg.Window.TruncateChars,
	}
}

// SummaryConfig extracts the summarization call parameters. The system
// prompt is left to the summarizer's default.
func SummaryConfig(cfg *config.Config) compaction.SummaryConfig {
	sc := compaction.DefaultConfig()
	sc.Temperature = cfg.Retry.SummaryTemperature
	sc.TopP = cfg.Retry.SummaryTopP
	sc.MaxTokens = cfg.Retry.SummaryMaxTokens
	return sc
}

// ChatConfig extracts the chat service configuration.
func ChatConfig(cfg *config.Config) chat.Config {
	return chat.Config{
		Sampling: chat.Sampling{
			Temperature: cfg.Sampling.Temperature,
			TopP:        cfg.Sampling.TopP,
			MaxTokens:   cfg.Sampling.MaxTokens,
		},
		ScriptCouples:    cfg.Window.ScriptCouples,
		TruncateChars:    cfg.Window.TruncateChars,
		RefusalRetry:     cfg.Chat.RefusalRetry,
		ShortenOverChars: cfg.Chat.ShortenOverChars,
	}
}
