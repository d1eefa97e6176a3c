package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sinhome/internal/gateway/websocket"
	"sinhome/pkg/logger"
)

const debounceDelay = 100 * time.Millisecond

// ReloadFunc applies a changed configuration file.
type ReloadFunc func(path string) error

// Watcher reloads the configuration file when it changes and notifies the
// log stream clients.
type Watcher struct {
	watcher  *fsnotify.Watcher
	hub      *websocket.Hub
	file     string
	onChange ReloadFunc

	stopCh   chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	timer *time.Timer
	// digest of the last applied content, zero when unknown
	applied [sha256.Size]byte
}

// NewWatcher creates a watcher for file. hub may be nil.
func NewWatcher(hub *websocket.Hub, file string, onChange ReloadFunc) (*Watcher, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", file, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watcher := &Watcher{
		watcher:  w,
		hub:      hub,
		file:     abs,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}
	watcher.applied, _ = digest(abs)
	return watcher, nil
}

// digest hashes the file content. A missing file yields the zero digest.
func digest(path string) ([sha256.Size]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// File returns the watched path.
func (w *Watcher) File() string {
	return w.file
}

// Start begins watching. The parent directory is watched so that editors
// replacing the file by rename are seen too.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.file)); err != nil {
		return fmt.Errorf("watch %s: %w", w.file, err)
	}
	logger.Info().Str("path", w.file).Msg("Watching config file")

	go w.run()
	return nil
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// run processes file system events.
func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.handleEvent()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("File watcher error")
		}
	}
}

// handleEvent coalesces bursts of events into one reload.
func (w *Watcher) handleEvent() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.stopCh:
		return
	default:
	}

	sum, err := digest(w.file)
	w.mu.Lock()
	unchanged := err == nil && sum == w.applied
	w.mu.Unlock()
	if unchanged {
		logger.Debug().Str("path", w.file).Msg("Config content unchanged, reload skipped")
		return
	}

	if w.onChange != nil {
		if err := w.onChange(w.file); err != nil {
			logger.Warn().Err(err).Str("path", w.file).Msg("Config reload failed, keeping previous settings")
			return
		}
	}
	w.mu.Lock()
	w.applied = sum
	w.mu.Unlock()

	logger.Info().Str("path", w.file).Msg("Config reloaded")
	w.broadcastReload()
}

// broadcastReload sends a reload message to all clients.
func (w *Watcher) broadcastReload() {
	if w.hub == nil {
		return
	}
	data, err := json.Marshal(websocket.Frame{
		Type: websocket.TypeReload,
		Path: w.file,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to marshal reload message")
		return
	}
	w.hub.BroadcastAll(data)
}

// Stop stops the file watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		w.watcher.Close()
	})
}
