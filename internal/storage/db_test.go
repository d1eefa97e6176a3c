package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "a", "b", "sinhome.db")

	db, err := Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, dbPath, db.Path())
	assert.FileExists(t, dbPath)
}

func TestOpen_ExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SINHOME_TEST_STORE", dir)

	db, err := Open("$SINHOME_TEST_STORE/x.db")
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, filepath.Join(dir, "x.db"), db.Path())
}

func TestOpen_Pragmas(t *testing.T) {
	db := openTestDB(t)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.InsertLog(&LogRecord{Endpoint: "chat", Response: "ok"}))
	records, err := db.ListLogs("", 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	_, err = Open(filepath.Join(blocker, "db.sqlite"))
	assert.Error(t, err)
}

func TestSchemaVersion(t *testing.T) {
	db := openTestDB(t)

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	reopened, err := Open(db.Path())
	require.NoError(t, err)
	defer reopened.Close()
	v, err = reopened.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestClose(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close())

	var one int
	assert.Error(t, db.QueryRow("SELECT 1").Scan(&one))
}
