// Package grok implements the Completer interface for the xAI Grok API,
// which follows the OpenAI chat completions protocol.
package grok

import (
	"errors"
	"strings"
	"time"

	"sinhome/internal/provider"
	"sinhome/internal/provider/openaicompat"
)

// Name is the backend name used in configuration and logs.
const Name = "grok"

// Default configuration values.
const (
	DefaultEndpoint = "https://api.x.ai"
	DefaultModel    = "grok-3"
	DefaultTimeout  = 120 * time.Second
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("grok: api key is required")

// Compile-time interface checks.
var (
	_ provider.Completer = (*Completer)(nil)
	_ provider.Pinger    = (*Completer)(nil)
)

// Config holds Grok backend configuration.
type Config struct {
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint: DefaultEndpoint,
		Model:    DefaultModel,
		Timeout:  DefaultTimeout,
	}
}

// Completer is the Grok completion backend.
type Completer struct {
	*openaicompat.Client
}

// New creates a Grok Completer. The API key is mandatory.
func New(cfg Config) (*Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Completer{
		Client: openaicompat.NewClient(openaicompat.Options{
			Name:     Name,
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Timeout:  cfg.Timeout,
		}),
	}, nil
}

// Factory returns a provider.Factory building a Grok Completer from cfg.
func Factory(cfg Config) provider.Factory {
	return func() (provider.Completer, error) {
		c, err := New(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
