// Package config loads the server configuration from defaults, an optional
// YAML file and SINHOME_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the environment variable prefix; server.port is read from
// SINHOME_SERVER_PORT.
const EnvPrefix = "SINHOME"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Backend  BackendConfig  `mapstructure:"backend" yaml:"backend"`
	VLLM     EndpointConfig `mapstructure:"vllm" yaml:"vllm"`
	Grok     EndpointConfig `mapstructure:"grok" yaml:"grok"`
	Window   WindowConfig   `mapstructure:"window" yaml:"window"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Sampling SamplingConfig `mapstructure:"sampling" yaml:"sampling"`
	Chat     ChatConfig     `mapstructure:"chat" yaml:"chat"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	ConvLog  ConvLogConfig  `mapstructure:"convlog" yaml:"convlog"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
}

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Host      string          `mapstructure:"host" yaml:"host"`
	Port      int             `mapstructure:"port" yaml:"port"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig configures per-client rate limiting.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// BackendConfig selects the completion backend.
type BackendConfig struct {
	Default string `mapstructure:"default" yaml:"default"` // vllm, grok
}

// EndpointConfig describes an OpenAI-compatible completion endpoint.
type EndpointConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model    string        `mapstructure:"model" yaml:"model"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// WindowConfig bounds the history sent with each request.
type WindowConfig struct {
	CouplesToKeep int `mapstructure:"couples_to_keep" yaml:"couples_to_keep"`
	TokenBudget   int `mapstructure:"token_budget" yaml:"token_budget"`
	TruncateChars int `mapstructure:"truncate_chars" yaml:"truncate_chars"`
	ScriptCouples int `mapstructure:"script_couples" yaml:"script_couples"`
}

// RetryConfig configures duplicate recovery.
type RetryConfig struct {
	MaxDupReprompts    int     `mapstructure:"max_dup_reprompts" yaml:"max_dup_reprompts"`
	SummaryTemperature float64 `mapstructure:"summary_temperature" yaml:"summary_temperature"`
	SummaryTopP        float64 `mapstructure:"summary_top_p" yaml:"summary_top_p"`
	SummaryMaxTokens   int     `mapstructure:"summary_max_tokens" yaml:"summary_max_tokens"`
}

// SamplingConfig holds the default sampling parameters of chat calls.
type SamplingConfig struct {
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64 `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ChatConfig configures the post-processing of chat answers.
type ChatConfig struct {
	RefusalRetry     bool `mapstructure:"refusal_retry" yaml:"refusal_retry"`
	ShortenOverChars int  `mapstructure:"shorten_over_chars" yaml:"shorten_over_chars"` // 0 disables
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// ConvLogConfig configures the conversation logger.
type ConvLogConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir           string `mapstructure:"dir" yaml:"dir"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"` // 0 keeps everything
	PruneSchedule string `mapstructure:"prune_schedule" yaml:"prune_schedule"`
	StreamBuffer  int    `mapstructure:"stream_buffer" yaml:"stream_buffer"`
}

// StorageConfig configures the sqlite database.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load reads the configuration. Precedence: env > file > defaults.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", expandedPath, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Reload re-reads the file given to the last Load.
func Reload() (*Config, error) {
	mu.RLock()
	path := configPath
	mu.RUnlock()
	return Load(path)
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Backend.Default {
	case "vllm", "grok":
	default:
		return fmt.Errorf("backend.default: unknown backend %q", c.Backend.Default)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if c.Retry.MaxDupReprompts < 0 {
		return fmt.Errorf("retry.max_dup_reprompts: must be >= 0, got %d", c.Retry.MaxDupReprompts)
	}
	if c.Window.CouplesToKeep < 0 || c.Window.ScriptCouples < 0 {
		return errors.New("window: couple counts must be >= 0")
	}
	return nil
}

// GetConfig returns the last loaded configuration.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path returns the file given to the last Load, expanded.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// GetString returns a raw configuration value.
func GetString(key string) string {
	return viper.GetString(key)
}

// SaveTo writes cfg as YAML to path.
func SaveTo(cfg *Config, path string) error {
	expandedPath, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expandedPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// 0600: the file may hold API keys.
	return os.WriteFile(expandedPath, data, 0600)
}

// Default returns the configuration made of defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Reset clears loaded state (for testing).
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
