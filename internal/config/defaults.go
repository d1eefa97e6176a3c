package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers every default on the global viper instance.
func SetDefaults() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.requests_per_minute", 60)
	v.SetDefault("server.rate_limit.burst", 10)
	v.SetDefault("server.rate_limit.cleanup_interval", 5*time.Minute)

	// Backends
	v.SetDefault("backend.default", "vllm")
	v.SetDefault("vllm.endpoint", "http://vllm:8000/v1")
	v.SetDefault("vllm.model", "")
	v.SetDefault("vllm.api_key", "")
	v.SetDefault("vllm.timeout", 120*time.Second)
	v.SetDefault("grok.endpoint", "https://api.x.ai")
	v.SetDefault("grok.model", "grok-3")
	v.SetDefault("grok.api_key", "")
	v.SetDefault("grok.timeout", 120*time.Second)

	// History window
	v.SetDefault("window.couples_to_keep", 15)
	v.SetDefault("window.token_budget", 4000)
	v.SetDefault("window.truncate_chars", 300)
	v.SetDefault("window.script_couples", 5)

	// Duplicate recovery
	v.SetDefault("retry.max_dup_reprompts", 3)
	v.SetDefault("retry.summary_temperature", 0.3)
	v.SetDefault("retry.summary_top_p", 0.9)
	v.SetDefault("retry.summary_max_tokens", 220)

	// Sampling
	v.SetDefault("sampling.temperature", 0.65)
	v.SetDefault("sampling.top_p", 0.9)
	v.SetDefault("sampling.max_tokens", 200)

	// Chat post-processing
	v.SetDefault("chat.refusal_retry", true)
	v.SetDefault("chat.shorten_over_chars", 400)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	// Conversation log
	v.SetDefault("convlog.enabled", true)
	v.SetDefault("convlog.dir", "~/.sinhome/logs")
	v.SetDefault("convlog.retention_days", 14)
	v.SetDefault("convlog.prune_schedule", "0 0 3 * * *")
	v.SetDefault("convlog.stream_buffer", 256)

	// Storage
	v.SetDefault("storage.path", "~/.sinhome/data.db")
}
