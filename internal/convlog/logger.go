package convlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"sinhome/internal/config"
	"sinhome/internal/storage"
	"sinhome/pkg/logger"
)

const (
	conversationsDir = "conversations"
	dailyDir         = "daily"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Store persists entries as rows.
type Store interface {
	InsertLog(rec *storage.LogRecord) error
	PruneLogsBefore(t time.Time) (int64, error)
}

// Broadcaster pushes finished blocks to live subscribers. sessionID is
// empty for anonymous requests. It must not block.
type Broadcaster interface {
	BroadcastLog(sessionID, block string)
}

// Options configures a Logger. Every sink is optional.
type Options struct {
	Dir         string
	Store       Store
	Broadcaster Broadcaster
	// Clock overrides time.Now.
	Clock func() time.Time
}

// Logger writes entries to files, the store and the broadcaster.
type Logger struct {
	dir   string
	store Store
	bc    Broadcaster
	now   func() time.Time

	fileMu sync.Mutex
	wg     sync.WaitGroup
}

// New creates a Logger. A leading ~ in Dir is expanded.
func New(opts Options) (*Logger, error) {
	dir, err := config.ExpandPath(opts.Dir)
	if err != nil {
		return nil, err
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	l := &Logger{
		dir:   dir,
		store: opts.Store,
		bc:    opts.Broadcaster,
		now:   now,
	}
	if dir != "" {
		for _, sub := range []string{conversationsDir, dailyDir} {
			if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
		}
	}
	return l, nil
}

// Dir returns the root log directory.
func (l *Logger) Dir() string {
	return l.dir
}

// Dispatch records e in the background. Failures and panics are logged at
// debug level and never reach the caller. A nil Logger ignores the call.
func (l *Logger) Dispatch(e Entry) {
	if l == nil {
		return
	}
	l.goSafe("conversation", func() error { return l.Write(e) })
}

// LogError records an error block in the background.
func (l *Logger) LogError(endpoint, sessionID string, err error) {
	if l == nil || err == nil {
		return
	}
	l.goSafe("error", func() error { return l.WriteError(endpoint, sessionID, err) })
}

// Wait blocks until every dispatched write has finished.
func (l *Logger) Wait() {
	if l == nil {
		return
	}
	l.wg.Wait()
}

func (l *Logger) goSafe(kind string, fn func() error) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Debug().Interface("panic", r).Str("kind", kind).Msg("Conversation log panicked")
			}
		}()
		if err := fn(); err != nil {
			logger.Debug().Err(err).Str("kind", kind).Msg("Conversation log failed")
		}
	}()
}

// Write records e synchronously in every configured sink. All sinks are
// attempted; their errors are joined.
func (l *Logger) Write(e Entry) error {
	ts := l.now()
	block := Format(e, ts)

	var errs []error
	if l.dir != "" {
		if err := l.appendFile(l.sessionFile(e.SessionID, ts), block); err != nil {
			errs = append(errs, err)
		}
		if err := l.appendFile(l.dailyFile(ts), block); err != nil {
			errs = append(errs, err)
		}
	}

	if l.store != nil {
		rec := &storage.LogRecord{
			RequestID:   e.RequestID,
			SessionID:   e.SessionID,
			Endpoint:    e.Endpoint,
			UserMessage: e.UserMessage,
			Response:    e.Response,
			CreatedAt:   ts,
		}
		if e.Meta != nil {
			meta, err := json.Marshal(e.Meta)
			if err != nil {
				errs = append(errs, fmt.Errorf("encode meta: %w", err))
			} else {
				rec.Meta = meta
			}
		}
		if err := l.store.InsertLog(rec); err != nil {
			errs = append(errs, err)
		}
	}

	if l.bc != nil {
		l.bc.BroadcastLog(e.SessionID, block)
	}
	return errors.Join(errs...)
}

// WriteError records an error block synchronously in the daily file, the
// store and the broadcaster.
func (l *Logger) WriteError(endpoint, sessionID string, cause error) error {
	ts := l.now()
	msg := truncateRunes(cause.Error(), MaxErrorChars)
	block := FormatError(endpoint, sessionID, msg, ts)

	var errs []error
	if l.dir != "" {
		if err := l.appendFile(l.dailyFile(ts), block); err != nil {
			errs = append(errs, err)
		}
	}
	if l.store != nil {
		rec := &storage.LogRecord{
			SessionID: sessionID,
			Endpoint:  endpoint,
			Error:     msg,
			CreatedAt: ts,
		}
		if err := l.store.InsertLog(rec); err != nil {
			errs = append(errs, err)
		}
	}
	if l.bc != nil {
		l.bc.BroadcastLog(sessionID, block)
	}
	return errors.Join(errs...)
}

func (l *Logger) sessionFile(sessionID string, ts time.Time) string {
	name := "no_session_" + ts.Format("20060102_150405") + "_" + uuid.NewString()[:8] + ".log"
	if sessionID != "" {
		name = "session_" + unsafeFileChars.ReplaceAllString(sessionID, "_") + ".log"
	}
	return filepath.Join(l.dir, conversationsDir, name)
}

func (l *Logger) dailyFile(ts time.Time) string {
	return filepath.Join(l.dir, dailyDir, ts.Format(dateLayout)+".log")
}

func (l *Logger) appendFile(path, block string) error {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(block + "\n"); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
