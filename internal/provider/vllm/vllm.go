// Package vllm implements the Completer interface for vLLM.
// vLLM provides an OpenAI-compatible chat completions API for locally
// hosted models with high-throughput serving.
// API docs: https://docs.vllm.ai/en/latest/serving/openai_api.html
package vllm

import (
	"time"

	"sinhome/internal/provider"
	"sinhome/internal/provider/openaicompat"
)

// Name is the backend name used in configuration and logs.
const Name = "vllm"

// Default configuration values.
const (
	DefaultEndpoint = "http://vllm:8000/v1"
	DefaultModel    = "" // vLLM serves a single model; auto-detect via /v1/models
	DefaultTimeout  = 120 * time.Second
)

// Compile-time interface checks.
var (
	_ provider.Completer = (*Completer)(nil)
	_ provider.Pinger    = (*Completer)(nil)
)

// Config holds vLLM backend configuration.
type Config struct {
	APIKey   string        `mapstructure:"api_key"`  // Optional API key (if vLLM started with --api-key)
	Endpoint string        `mapstructure:"endpoint"` // vLLM server URL, with or without /v1
	Model    string        `mapstructure:"model"`    // Model name (auto-detected if empty)
	Timeout  time.Duration `mapstructure:"timeout"`  // Request timeout
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint: DefaultEndpoint,
		Model:    DefaultModel,
		Timeout:  DefaultTimeout,
	}
}

// Completer is the vLLM completion backend.
type Completer struct {
	*openaicompat.Client
}

// New creates a vLLM Completer. Empty fields take their defaults.
func New(cfg Config) *Completer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
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
	}
}

// Factory returns a provider.Factory building a vLLM Completer from cfg.
func Factory(cfg Config) provider.Factory {
	return func() (provider.Completer, error) {
		return New(cfg), nil
	}
}
