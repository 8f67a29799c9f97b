package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/gridcalc/internal/facade"
	"github.com/roach88/gridcalc/internal/ir"
	"github.com/roach88/gridcalc/internal/queryir"
)

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("snapshot not found")

// ErrWorkbookChanged is returned by Restore when a snapshot was taken
// against a different workbook description.
var ErrWorkbookChanged = errors.New("snapshot was taken against a different workbook description")

// Snapshot is one saved state of a workbook.
type Snapshot struct {
	ID           string          `json:"id"`
	Workbook     string          `json:"workbook"`
	Seq          int64           `json:"seq"`
	WorkbookHash string          `json:"workbookHash"`
	StateHash    string          `json:"stateHash"`
	Values       map[string]any  `json:"values"`
	History      json.RawMessage `json:"history,omitempty"`
}

// Store saves and loads snapshots.
type Store interface {
	// Save appends snap as the newest snapshot of its workbook, assigning ID
	// and Seq. A state equal to the newest one is not stored again; the
	// existing snapshot is returned with inserted=false.
	Save(ctx context.Context, snap Snapshot) (saved Snapshot, inserted bool, err error)

	// Latest returns the newest snapshot of a workbook.
	Latest(ctx context.Context, workbook string) (Snapshot, error)

	// Get returns a snapshot by id.
	Get(ctx context.Context, id string) (Snapshot, error)

	// List returns every snapshot of a workbook, oldest first.
	List(ctx context.Context, workbook string) ([]Snapshot, error)

	// Find returns the snapshots matching a query, validated first. Both
	// backends return the same snapshots in the same order.
	Find(ctx context.Context, q queryir.Select) ([]Snapshot, error)

	// Delete removes every snapshot of a workbook and reports how many
	// there were.
	Delete(ctx context.Context, workbook string) (int64, error)

	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	newID func() string
}

// WithIDs sets the snapshot id generator. Default: UUIDv7.
func WithIDs(next func() string) Option {
	return func(o *options) {
		o.newID = next
	}
}

func buildOptions(opts []Option) options {
	o := options{newID: func() string { return uuid.Must(uuid.NewV7()).String() }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open opens the backend matching the file extension: .bolt and .bbolt use
// bbolt, anything else SQLite.
func Open(path string, opts ...Option) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bolt", ".bbolt":
		return OpenBolt(path, opts...)
	default:
		return OpenSQLite(path, opts...)
	}
}

// Capture snapshots the entered state of w. ID and Seq are assigned by Save.
func Capture(w *facade.Workbook) (Snapshot, error) {
	state := w.GetState()
	wh, err := ir.WorkbookHash(w.Description())
	if err != nil {
		return Snapshot{}, fmt.Errorf("capture: %w", err)
	}
	sh, err := ir.StateHash(state.Values)
	if err != nil {
		return Snapshot{}, fmt.Errorf("capture: %w", err)
	}
	return Snapshot{
		Workbook:     w.Name(),
		WorkbookHash: wh,
		StateHash:    sh,
		Values:       state.Values,
		History:      state.History,
	}, nil
}

// Restore applies snap to w and waits for recalculation. A snapshot taken
// against another description is refused unless force is set.
func Restore(ctx context.Context, w *facade.Workbook, snap Snapshot, force bool) error {
	if !force {
		wh, err := ir.WorkbookHash(w.Description())
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		if wh != snap.WorkbookHash {
			return fmt.Errorf("restore %s: %w", snap.ID, ErrWorkbookChanged)
		}
	}
	return w.SetState(ctx, facade.State{Values: maps.Clone(snap.Values), History: snap.History})
}

// prepare fills in what Save derives from the snapshot itself.
func prepare(snap Snapshot) (Snapshot, error) {
	if snap.Workbook == "" {
		return Snapshot{}, errors.New("snapshot has no workbook name")
	}
	if snap.Values == nil {
		snap.Values = map[string]any{}
	}
	if snap.StateHash == "" {
		h, err := ir.StateHash(snap.Values)
		if err != nil {
			return Snapshot{}, err
		}
		snap.StateHash = h
	}
	return snap, nil
}
