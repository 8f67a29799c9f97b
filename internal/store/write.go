package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Save appends snap as the newest snapshot of its workbook.
// Returns the stored snapshot and whether a new row was inserted.
//
// The newest-snapshot check and the insert share a transaction, so two
// saves of the same state never produce two rows.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) (Snapshot, bool, error) {
	snap, err := prepare(snap)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: %w", err)
	}
	valuesJSON, err := marshalValues(snap.Values)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: %w", err)
	}
	historyJSON, err := marshalHistory(snap.History)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	latest, err := scanSnapshot(tx.QueryRowContext(ctx, `
		SELECT id, workbook, seq, workbook_hash, state_hash, cell_values, history
		FROM snapshots
		WHERE workbook = ?
		ORDER BY seq DESC
		LIMIT 1
	`, snap.Workbook))
	switch {
	case errors.Is(err, ErrNotFound):
		snap.Seq = 1
	case err != nil:
		return Snapshot{}, false, fmt.Errorf("save snapshot: %w", err)
	case latest.StateHash == snap.StateHash && latest.WorkbookHash == snap.WorkbookHash:
		return latest, false, nil
	default:
		snap.Seq = latest.Seq + 1
	}

	snap.ID = s.opts.newID()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots
		(id, workbook, seq, workbook_hash, state_hash, cell_values, history)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		snap.ID,
		snap.Workbook,
		snap.Seq,
		snap.WorkbookHash,
		snap.StateHash,
		valuesJSON,
		historyJSON,
	)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: commit: %w", err)
	}

	// Round-trip the stored text so the caller sees what a later read sees.
	snap.Values, err = unmarshalValues(valuesJSON)
	if err != nil {
		return Snapshot{}, false, err
	}
	snap.History = unmarshalHistory(historyJSON)
	return snap, true, nil
}

// Delete removes every snapshot of a workbook and reports how many were
// removed.
func (s *SQLiteStore) Delete(ctx context.Context, workbook string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE workbook = ?`, workbook)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (Snapshot, error) {
	var snap Snapshot
	var valuesJSON, historyJSON string
	err := row.Scan(
		&snap.ID,
		&snap.Workbook,
		&snap.Seq,
		&snap.WorkbookHash,
		&snap.StateHash,
		&valuesJSON,
		&historyJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.Values, err = unmarshalValues(valuesJSON)
	if err != nil {
		return Snapshot{}, err
	}
	snap.History = unmarshalHistory(historyJSON)
	return snap, nil
}
