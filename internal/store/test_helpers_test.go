package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/gridcalc/internal/testutil"
)

// createTestStore creates a new SQLite store in a temp dir.
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path, WithIDs(testutil.NewSequentialIDs("snap").Next))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestBolt creates a new bbolt store in a temp dir.
func createTestBolt(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bolt")
	s, err := OpenBolt(path, WithIDs(testutil.NewSequentialIDs("snap").Next))
	if err != nil {
		t.Fatalf("OpenBolt() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, createTestStore(t)) })
	t.Run("bolt", func(t *testing.T) { fn(t, createTestBolt(t)) })
}

func testSnapshot(workbook string, values map[string]any) Snapshot {
	return Snapshot{Workbook: workbook, WorkbookHash: "wb-hash", Values: values}
}
