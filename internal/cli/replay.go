package cli

import (
	"context"
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/roach88/gridcalc/internal/facade"
	"github.com/roach88/gridcalc/internal/harness"
	"github.com/roach88/gridcalc/internal/ir"
	"github.com/roach88/gridcalc/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Snapshot string // optional - one snapshot only
}

// ReplaySnapshotResult is the replay outcome of one snapshot.
type ReplaySnapshotResult struct {
	ID            string `json:"id"`
	Seq           int64  `json:"seq"`
	Values        int    `json:"values"`
	Stale         bool   `json:"stale"` // taken against another description
	Restored      bool   `json:"restored"`
	Deterministic bool   `json:"deterministic"`
	Error         string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Workbook         string                 `json:"workbook"`
	Snapshots        []ReplaySnapshotResult `json:"snapshots"`
	Total            int                    `json:"total"`
	AllDeterministic bool                   `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <workbook>",
		Short: "Restore saved snapshots and verify determinism",
		Long: `Restore every saved snapshot of a workbook into two fresh builds and
check that both produce the same formula values and that the restored state
hashes to the saved state hash.

Snapshots taken against an older description are restored anyway and
reported as stale.

Exit codes:
  0 - Every snapshot restored deterministically
  1 - A snapshot failed to restore or diverged
  2 - Command error (workbook or database not found, etc.)

Examples:
  gridcalc replay ./loan.yaml --db ./loan.db
  gridcalc replay ./loan.yaml --db ./loan.db --snapshot 0190c2...
  gridcalc replay ./loan.yaml --db ./loan.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "snapshot database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "replay one snapshot only")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	a, err := openWorkbook(ctx, opts.RootOptions, path, false)
	if err != nil {
		return reportLoadError(out, err)
	}
	b, err := facade.New(a.Description(), facade.WithLogger(opts.Logger()))
	if err != nil {
		return fail(out, ErrCodeGeneric, WrapExitError(ExitCommandError, "failed to build workbook", err), nil)
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return fail(out, ErrCodeStore, err, nil)
	}
	defer st.Close()

	var snaps []store.Snapshot
	if opts.Snapshot != "" {
		snap, err := st.Get(ctx, opts.Snapshot)
		if err != nil {
			return fail(out, ErrCodeStore, WrapExitError(ExitCommandError, "failed to read snapshot", err), nil)
		}
		snaps = []store.Snapshot{snap}
	} else {
		snaps, err = st.List(ctx, a.Name())
		if err != nil {
			return fail(out, ErrCodeStore, WrapExitError(ExitCommandError, "failed to list snapshots", err), nil)
		}
	}

	result := ReplayResult{
		Workbook:         a.Name(),
		Snapshots:        make([]ReplaySnapshotResult, 0, len(snaps)),
		Total:            len(snaps),
		AllDeterministic: true,
	}
	for _, snap := range snaps {
		r := replaySnapshot(ctx, a, b, snap)
		opts.Logger().Debug("snapshot replayed", "id", r.ID, "deterministic", r.Deterministic, "stale", r.Stale)
		if !r.Deterministic {
			result.AllDeterministic = false
		}
		result.Snapshots = append(result.Snapshots, r)
	}

	if out.IsJSON() {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		printReplay(out, result)
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// replaySnapshot resets both workbooks, restores snap into each and
// compares the outcome.
func replaySnapshot(ctx context.Context, a, b *facade.Workbook, snap store.Snapshot) ReplaySnapshotResult {
	r := ReplaySnapshotResult{ID: snap.ID, Seq: snap.Seq, Values: len(snap.Values)}

	if snap.Workbook != a.Name() {
		r.Error = fmt.Sprintf("snapshot belongs to workbook %q", snap.Workbook)
		return r
	}
	wh, err := ir.WorkbookHash(a.Description())
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Stale = wh != snap.WorkbookHash

	for _, wb := range []*facade.Workbook{a, b} {
		if err := wb.Reset(ctx); err != nil {
			r.Error = err.Error()
			return r
		}
		if err := store.Restore(ctx, wb, snap, true); err != nil {
			r.Error = err.Error()
			return r
		}
	}
	r.Restored = true

	got, err := ir.StateHash(a.GetState().Values)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	if got != snap.StateHash {
		r.Error = "restored state does not match the saved state hash"
		return r
	}

	first, second := harness.FormulaValues(a), harness.FormulaValues(b)
	if !reflect.DeepEqual(first, second) {
		r.Error = "formula values differ between two restores"
		return r
	}
	r.Deterministic = true
	return r
}

func printReplay(out *OutputFormatter, result ReplayResult) {
	if result.Total == 0 {
		out.Printf("No snapshots of %s.\n", result.Workbook)
		return
	}
	for _, r := range result.Snapshots {
		mark := "✓"
		if !r.Deterministic {
			mark = "✗"
		}
		stale := ""
		if r.Stale {
			stale = " (stale)"
		}
		out.Printf("%s %4d  %s  %d values%s\n", mark, r.Seq, r.ID, r.Values, stale)
		if r.Error != "" {
			out.Printf("    %s\n", r.Error)
		}
	}
	status := "all deterministic"
	if !result.AllDeterministic {
		status = "FAILED"
	}
	out.Printf("\n%d snapshots replayed: %s\n", result.Total, status)
}
