// Package logger holds the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // console, json
	File   string `json:"file" mapstructure:"file"`     // also append to this file
}

const consoleTimeFormat = "15:04:05.000"

var (
	current atomic.Pointer[zerolog.Logger]

	fileMu sync.Mutex
	file   *os.File
)

var levels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// parseLevel maps a level name to zerolog. Empty means info.
func parseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, ok := levels[name]
	if !ok {
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
	return lvl, nil
}

// Init replaces the global logger. A previously opened log file is closed.
func Init(config LogConfig) error {
	lvl, err := parseLevel(config.Level)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	if strings.EqualFold(config.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: consoleTimeFormat}
	}

	fileMu.Lock()
	defer fileMu.Unlock()

	if file != nil {
		_ = file.Close()
		file = nil
	}
	if config.File != "" {
		if err := os.MkdirAll(filepath.Dir(config.File), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", config.File, err)
		}
		file = f
		out = zerolog.MultiLevelWriter(out, f)
	}

	zerolog.SetGlobalLevel(lvl)
	install(out)
	return nil
}

// SetOutput sends JSON lines to w. Tests use it to inspect log output.
func SetOutput(w io.Writer) {
	install(w)
}

func install(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Logger()
	current.Store(&l)
}

// Get returns the global logger. Before Init it writes JSON to stderr.
func Get() *zerolog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	current.CompareAndSwap(nil, &l)
	return current.Load()
}

// WithRequest returns a child logger tagged with request and session IDs.
// Empty IDs are omitted.
func WithRequest(requestID, sessionID string) *zerolog.Logger {
	ctx := Get().With()
	if requestID != "" {
		ctx = ctx.Str("request_id", requestID)
	}
	if sessionID != "" {
		ctx = ctx.Str("session_id", sessionID)
	}
	l := ctx.Logger()
	return &l
}

// Close closes the log file, if any.
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()

	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

func Debug() *zerolog.Event { return Get().Debug() }
func Info() *zerolog.Event  { return Get().Info() }
func Warn() *zerolog.Event  { return Get().Warn() }
func Error() *zerolog.Event { return Get().Error() }
