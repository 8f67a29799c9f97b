package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite_Pragmas(t *testing.T) {
	s := createTestStore(t)

	require.NoError(t, s.verifyPragma("journal_mode", "wal"))
	require.NoError(t, s.verifyPragma("synchronous", "1"))
	require.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	require.NoError(t, s.verifyPragma("foreign_keys", "1"))
}

func TestOpenSQLite_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_snapshots_state'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")

	for range 3 {
		s, err := OpenSQLite(path)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
}

func TestOpenSQLite_BadPath(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	require.Error(t, err)
}

func TestOpen_PicksBackend(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(filepath.Join(dir, "a.bolt"))
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, s)
	require.NoError(t, s.Close())
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, (&SQLiteStore{}).Close())
	assert.NoError(t, (&BoltStore{}).Close())
}
