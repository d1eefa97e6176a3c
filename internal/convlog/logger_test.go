package convlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinhome/internal/storage"
)

type memStore struct {
	mu      sync.Mutex
	records []*storage.LogRecord
	err     error
	pruned  time.Time
}

func (s *memStore) InsertLog(rec *storage.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memStore) PruneLogsBefore(t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruned = t
	return int64(len(s.records)), nil
}

type memBroadcaster struct {
	mu       sync.Mutex
	blocks   []string
	sessions []string
}

func (b *memBroadcaster) BroadcastLog(sessionID, block string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = append(b.sessions, sessionID)
	b.blocks = append(b.blocks, block)
}

type panicBroadcaster struct{}

func (panicBroadcaster) BroadcastLog(string, string) { panic("boom") }

func newTestLogger(t *testing.T, store Store, bc Broadcaster) *Logger {
	t.Helper()
	l, err := New(Options{
		Dir:         t.TempDir(),
		Store:       store,
		Broadcaster: bc,
		Clock:       func() time.Time { return fixedTime },
	})
	require.NoError(t, err)
	return l
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestLogger_Write(t *testing.T) {
	store := &memStore{}
	bc := &memBroadcaster{}
	l := newTestLogger(t, store, bc)

	err := l.Write(Entry{
		Endpoint:    "chat",
		SessionID:   "abc/../x",
		RequestID:   "r1",
		UserMessage: "yo",
		Response:    "salut",
		Meta:        map[string]any{"used_summary": true},
	})
	require.NoError(t, err)

	session := readFile(t, filepath.Join(l.Dir(), "conversations", "session_abc_.._x.log"))
	daily := readFile(t, filepath.Join(l.Dir(), "daily", "2026-05-04.log"))
	assert.Contains(t, session, "--- RESPONSE ---\nsalut")
	assert.Equal(t, session, daily)

	require.Len(t, store.records, 1)
	assert.Equal(t, "r1", store.records[0].RequestID)
	assert.JSONEq(t, `{"used_summary":true}`, string(store.records[0].Meta))
	assert.True(t, fixedTime.Equal(store.records[0].CreatedAt))

	require.Len(t, bc.blocks, 1)
	assert.Equal(t, strings.TrimSuffix(daily, "\n"), bc.blocks[0])
	assert.Equal(t, []string{"abc/../x"}, bc.sessions)
}

func TestLogger_WriteAppends(t *testing.T) {
	l := newTestLogger(t, nil, nil)
	require.NoError(t, l.Write(Entry{Endpoint: "chat", SessionID: "s", Response: "one"}))
	require.NoError(t, l.Write(Entry{Endpoint: "chat", SessionID: "s", Response: "two"}))

	session := readFile(t, filepath.Join(l.Dir(), "conversations", "session_s.log"))
	assert.Contains(t, session, "one")
	assert.Contains(t, session, "two")
}

func TestLogger_NoSessionFiles(t *testing.T) {
	l := newTestLogger(t, nil, nil)
	require.NoError(t, l.Write(Entry{Endpoint: "chat"}))
	require.NoError(t, l.Write(Entry{Endpoint: "chat"}))

	entries, err := os.ReadDir(filepath.Join(l.Dir(), "conversations"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, strings.HasPrefix(e.Name(), "no_session_20260504_103000_"))
	}
}

func TestLogger_StoreErrorStillWritesFiles(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	l := newTestLogger(t, store, nil)

	err := l.Write(Entry{Endpoint: "chat", SessionID: "s"})
	assert.ErrorContains(t, err, "disk full")
	assert.FileExists(t, filepath.Join(l.Dir(), "daily", "2026-05-04.log"))
}

func TestLogger_DispatchAndWait(t *testing.T) {
	store := &memStore{}
	l := newTestLogger(t, store, nil)

	for i := 0; i < 10; i++ {
		l.Dispatch(Entry{Endpoint: "chat", SessionID: "s"})
	}
	l.Wait()
	assert.Len(t, store.records, 10)
}

func TestLogger_DispatchRecoversPanic(t *testing.T) {
	l := newTestLogger(t, nil, panicBroadcaster{})
	assert.NotPanics(t, func() {
		l.Dispatch(Entry{Endpoint: "chat"})
		l.Wait()
	})
}

func TestLogger_NilIsNoop(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Dispatch(Entry{})
		l.LogError("chat", "", errors.New("x"))
		l.Wait()
	})
}

func TestLogger_LogError(t *testing.T) {
	store := &memStore{}
	bc := &memBroadcaster{}
	l := newTestLogger(t, store, bc)

	l.LogError("chat", "s1", errors.New(strings.Repeat("x", 700)))
	l.Wait()

	daily := readFile(t, filepath.Join(l.Dir(), "daily", "2026-05-04.log"))
	assert.Contains(t, daily, "ERROR - ENDPOINT: chat")
	assert.NoFileExists(t, filepath.Join(l.Dir(), "conversations", "session_s1.log"))

	require.Len(t, store.records, 1)
	assert.Len(t, store.records[0].Error, MaxErrorChars)
	assert.Len(t, bc.blocks, 1)
}

func TestLogger_FilesDisabled(t *testing.T) {
	store := &memStore{}
	l, err := New(Options{Store: store})
	require.NoError(t, err)
	require.NoError(t, l.Write(Entry{Endpoint: "chat"}))
	assert.Len(t, store.records, 1)
}
