package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seed saves one snapshot per assignment through the set command.
func seed(t *testing.T, db string, assignments ...string) {
	t.Helper()
	for _, a := range assignments {
		_, stderr, code := run(t, "set", loanPath, a, "--db", db)
		require.Equal(t, ExitSuccess, code, stderr)
	}
}

func TestHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "loan.db")
	seed(t, db, "Principal=2000", "Rate=0.25", "Inputs!A3=3")

	stdout, stderr, code := run(t, "history", loanPath, "--db", db, "--format", "json")
	require.Equal(t, ExitSuccess, code, stderr)
	result := decodeEnvelope[HistoryResult](t, stdout).Data
	assert.Equal(t, "loan", result.Workbook)
	require.Len(t, result.Snapshots, 3)
	assert.Equal(t, int64(3), result.Snapshots[0].Seq, "newest first")
	assert.Equal(t, map[string]any{"Inputs!A1": 2000.0, "Inputs!A2": 0.25, "Inputs!A3": 3.0}, result.Snapshots[0].Values)

	stdout, _, code = run(t, "history", "loan", "--db", db, "--limit", "1", "-v")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Inputs!A3 = 3")
	assert.NotContains(t, stdout, "   1  ")
}

func TestHistory_Where(t *testing.T) {
	for _, ext := range []string{".db", ".bolt"} {
		t.Run(ext, func(t *testing.T) {
			db := filepath.Join(t.TempDir(), "loan"+ext)
			seed(t, db, "Principal=2000", "Rate=0.25", "Principal=900")

			stdout, stderr, code := run(t, "history", "loan", "--db", db, "--format", "json",
				"--where", "Inputs!$a$2=0.25")
			require.Equal(t, ExitSuccess, code, stderr)
			result := decodeEnvelope[HistoryResult](t, stdout).Data
			require.Len(t, result.Snapshots, 2)
			assert.Equal(t, int64(3), result.Snapshots[0].Seq)
			assert.Equal(t, int64(2), result.Snapshots[1].Seq)

			stdout, _, code = run(t, "history", "loan", "--db", db, "--format", "json",
				"--where", "Inputs!A2", "--where", "Inputs!A1>=1000")
			require.Equal(t, ExitSuccess, code)
			result = decodeEnvelope[HistoryResult](t, stdout).Data
			require.Len(t, result.Snapshots, 1)
			assert.Equal(t, int64(2), result.Snapshots[0].Seq)
		})
	}
}

func TestHistory_BadWhere(t *testing.T) {
	db := filepath.Join(t.TempDir(), "loan.db")
	_, stderr, code := run(t, "history", "loan", "--db", db, "--where", "A1=1")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "invalid filter")
}

func TestHistory_DeleteBolt(t *testing.T) {
	db := filepath.Join(t.TempDir(), "loan.bolt")
	seed(t, db, "Principal=5")

	stdout, stderr, code := run(t, "history", "loan", "--db", db, "--delete")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "Deleted 1 snapshots of loan")

	stdout, _, code = run(t, "history", "loan", "--db", db)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "No snapshots of loan.")
}

func TestHistory_RequiresDB(t *testing.T) {
	_, stderr, code := run(t, "history", "loan")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, `"db" not set`)
}

func TestReplay(t *testing.T) {
	db := filepath.Join(t.TempDir(), "loan.db")
	seed(t, db, "Principal=2000", "Rate=0.25")

	stdout, stderr, code := run(t, "replay", loanPath, "--db", db, "--format", "json")
	require.Equal(t, ExitSuccess, code, stderr)
	result := decodeEnvelope[ReplayResult](t, stdout).Data
	assert.Equal(t, 2, result.Total)
	assert.True(t, result.AllDeterministic)
	for _, r := range result.Snapshots {
		assert.True(t, r.Restored)
		assert.False(t, r.Stale)
		assert.Empty(t, r.Error)
	}

	stdout, _, code = run(t, "replay", loanPath, "--db", db, "--snapshot", result.Snapshots[0].ID)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "1 snapshots replayed: all deterministic")
}

func TestReplay_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "loan.db")
	stdout, stderr, code := run(t, "replay", loanPath, "--db", db)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "No snapshots of loan.")
}

func TestReplay_UnknownSnapshot(t *testing.T) {
	db := filepath.Join(t.TempDir(), "loan.db")
	_, _, code := run(t, "replay", loanPath, "--db", db, "--snapshot", "missing")
	assert.Equal(t, ExitCommandError, code)
}
