package gateway

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"sinhome/internal/gateway/websocket"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestNewWatcher(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")

	watcher, err := NewWatcher(nil, file, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	if watcher.File() != file {
		t.Errorf("File() = %s, want %s", watcher.File(), file)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	writeConfig(t, file, "window:\n  couples_to_keep: 15\n")

	hub := websocket.NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	var reloads atomic.Int32
	watcher, err := NewWatcher(hub, file, func(path string) error {
		if path != file {
			t.Errorf("reload path = %s, want %s", path, file)
		}
		reloads.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	// A burst of writes is one reload.
	for i := 0; i < 3; i++ {
		writeConfig(t, file, "window:\n  couples_to_keep: 10\n")
	}
	// Other files in the directory are ignored.
	writeConfig(t, filepath.Join(dir, "other.yaml"), "x: 1\n")

	time.Sleep(300 * time.Millisecond)

	if got := reloads.Load(); got != 1 {
		t.Errorf("reloads = %d, want 1", got)
	}
}

func TestWatcher_SkipsUnchangedContent(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, file, "window:\n  couples_to_keep: 15\n")

	var reloads int
	watcher, err := NewWatcher(nil, file, func(string) error {
		reloads++
		return nil
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	watcher.reload()
	if reloads != 0 {
		t.Fatalf("reloads = %d for untouched content, want 0", reloads)
	}

	writeConfig(t, file, "window:\n  couples_to_keep: 9\n")
	watcher.reload()
	watcher.reload()
	if reloads != 1 {
		t.Errorf("reloads = %d, want 1", reloads)
	}
}

func TestWatcher_BroadcastsReload(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	hub := websocket.NewHub(1)

	watcher, err := NewWatcher(hub, file, func(string) error { return nil })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	watcher.reload()

	// The hub is not running, so the reload notice holds the only slot.
	if hub.BroadcastAll([]byte("probe")) {
		t.Error("expected the reload notice to be queued")
	}
}

func TestWatcher_FailedReloadKeepsQuiet(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	hub := websocket.NewHub(1)

	watcher, err := NewWatcher(hub, file, func(string) error { return errors.New("bad yaml") })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	watcher.reload()

	// Nothing was queued, so the single slot is still free.
	if !hub.BroadcastAll([]byte("probe")) {
		t.Error("failed reload should not broadcast")
	}
}

func TestWatcher_RunStopsWithContext(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	watcher, err := NewWatcher(nil, file, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Stop after Run is a no-op.
	watcher.Stop()
}

func TestWatcher_StartMissingDir(t *testing.T) {
	watcher, err := NewWatcher(nil, filepath.Join(t.TempDir(), "missing", "config.yaml"), nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	if err := watcher.Start(); err == nil {
		t.Error("expected error watching a missing directory")
	}
}
