package store

import (
	"context"
	"fmt"

	"github.com/roach88/gridcalc/internal/queryir"
	"github.com/roach88/gridcalc/internal/querysql"
)

// Latest returns the newest snapshot of a workbook, or ErrNotFound.
func (s *SQLiteStore) Latest(ctx context.Context, workbook string) (Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, `
		SELECT id, workbook, seq, workbook_hash, state_hash, cell_values, history
		FROM snapshots
		WHERE workbook = ?
		ORDER BY seq DESC
		LIMIT 1
	`, workbook))
	if err != nil {
		return Snapshot{}, fmt.Errorf("latest snapshot of %q: %w", workbook, err)
	}
	return snap, nil
}

// Get returns a snapshot by id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, `
		SELECT id, workbook, seq, workbook_hash, state_hash, cell_values, history
		FROM snapshots
		WHERE id = ?
	`, id))
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", id, err)
	}
	return snap, nil
}

// List returns every snapshot of a workbook ordered by seq.
//
// Returns an empty slice (not nil) if the workbook has none.
func (s *SQLiteStore) List(ctx context.Context, workbook string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workbook, seq, workbook_hash, state_hash, cell_values, history
		FROM snapshots
		WHERE workbook = ?
		ORDER BY seq ASC
	`, workbook)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

// Find compiles q to SQL over the cell_values JSON.
func (s *SQLiteStore) Find(ctx context.Context, q queryir.Select) ([]Snapshot, error) {
	query, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("find snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}
