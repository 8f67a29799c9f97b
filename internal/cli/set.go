package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gridcalc/internal/engine"
	"github.com/roach88/gridcalc/internal/facade"
	"github.com/roach88/gridcalc/internal/store"
)

// SetOptions holds flags for the set command.
type SetOptions struct {
	*RootOptions
	Database string
	Cells    []string
	Raw      bool
}

// Assignment is one parsed ref=value argument.
type Assignment struct {
	Ref     string `json:"ref"`
	Value   any    `json:"value"`
	Formula string `json:"formula,omitempty"`
}

// SetResult is the output of set.
type SetResult struct {
	Workbook string              `json:"workbook"`
	Applied  []Assignment        `json:"applied"`
	Values   []CellValue         `json:"values"`
	Passes   []engine.PassStats  `json:"passes"`
	Errors   []engine.Diagnostic `json:"calculation_errors"`
	Snapshot *store.Snapshot     `json:"snapshot,omitempty"`
	Inserted bool                `json:"inserted,omitempty"`
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <workbook> <ref=value>...",
		Short: "Write values into a workbook and print what changed",
		Long: `Write one or more values into a workbook, waiting for recalculation
after each, and print the written references and the cells given by --cells.

A value is read as JSON when it parses (numbers, true/false, null, arrays
of rows) and as text otherwise. A value starting with "=" installs a
formula instead.

With --db the newest snapshot of the workbook is restored first and the
resulting state saved as a new snapshot. Formulas are not part of the
saved state.

Examples:
  gridcalc set ./loan.yaml Rate=0.25 --cells Model!A1
  gridcalc set ./loan.yaml 'Flows=[[1,2,3]]'
  gridcalc set ./loan.yaml Model!B1==Model!A1*2
  gridcalc set ./loan.yaml Principal=2000 --db ./loan.db`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd.Context(), opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "snapshot database to restore from and save to")
	cmd.Flags().StringSliceVar(&opts.Cells, "cells", nil, "addresses or names to print after writing")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "ignore number formats")

	return cmd
}

func runSet(ctx context.Context, opts *SetOptions, path string, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	assignments := make([]Assignment, 0, len(args))
	for _, arg := range args {
		a, err := ParseAssignment(arg)
		if err != nil {
			return fail(out, ErrCodeBadInput, WrapExitError(ExitCommandError, "invalid assignment", err), nil)
		}
		assignments = append(assignments, a)
	}

	wb, err := openWorkbook(ctx, opts.RootOptions, path, false)
	if err != nil {
		return reportLoadError(out, err)
	}

	var st store.Store
	if opts.Database != "" {
		if st, err = openStore(opts.Database); err != nil {
			return fail(out, ErrCodeStore, err, nil)
		}
		defer st.Close()
		if _, err := restoreSnapshot(ctx, st, wb, "", false); err != nil {
			return fail(out, ErrCodeStore, err, nil)
		}
	}

	result := SetResult{Workbook: wb.Name(), Applied: assignments}
	wb.OnCalculationDone(func(p engine.PassStats) {
		result.Passes = append(result.Passes, p)
	})

	for _, a := range assignments {
		if err := apply(ctx, wb, a); err != nil {
			code := ErrCodeGeneric
			if engine.IsBadAddress(err) {
				code = ErrCodeBadRef
			}
			return fail(out, code, WrapExitError(ExitFailure, fmt.Sprintf("set %s", a.Ref), err), nil)
		}
		opts.Logger().Debug("assignment applied", "ref", a.Ref, "calculated", wb.LastPass().Calculated)
	}

	refs := opts.Cells
	if len(refs) == 0 {
		for _, a := range assignments {
			refs = append(refs, a.Ref)
		}
	}
	for _, ref := range refs {
		result.Values = append(result.Values, readCell(wb, ref, opts.Raw))
	}
	result.Errors = nonNil(wb.CalculationErrors())

	if st != nil {
		snap, err := store.Capture(wb)
		if err != nil {
			return fail(out, ErrCodeStore, WrapExitError(ExitCommandError, "failed to capture state", err), nil)
		}
		saved, inserted, err := st.Save(ctx, snap)
		if err != nil {
			return fail(out, ErrCodeStore, WrapExitError(ExitCommandError, "failed to save snapshot", err), nil)
		}
		result.Snapshot = &saved
		result.Inserted = inserted
	}

	if out.IsJSON() {
		return out.Success(result)
	}
	for _, v := range result.Values {
		if v.Error != "" {
			out.Printf("%s\t! %s\n", v.Ref, v.Error)
			continue
		}
		out.Printf("%s\t%s\n", v.Ref, formatValue(v.Value))
	}
	printDiagnostics(out, result.Errors)
	calculated := 0
	for _, p := range result.Passes {
		calculated += p.Calculated
	}
	out.Printf("\n%d writes, %d cells recalculated\n", len(assignments), calculated)
	if result.Snapshot != nil {
		if result.Inserted {
			out.Printf("Saved snapshot %s (seq %d)\n", result.Snapshot.ID, result.Snapshot.Seq)
		} else {
			out.Printf("State unchanged since snapshot %s\n", result.Snapshot.ID)
		}
	}
	return nil
}

func apply(ctx context.Context, wb *facade.Workbook, a Assignment) error {
	if a.Formula != "" {
		return wb.SetFormula(ctx, a.Ref, a.Formula)
	}
	return wb.SetValue(ctx, a.Ref, a.Value)
}

// ParseAssignment splits "ref=value" at the first "=". The value is JSON
// when it parses and text otherwise; "=..." is a formula.
func ParseAssignment(arg string) (Assignment, error) {
	ref, raw, ok := strings.Cut(arg, "=")
	ref = strings.TrimSpace(ref)
	if !ok || ref == "" {
		return Assignment{}, fmt.Errorf("%q: expected ref=value", arg)
	}
	if strings.HasPrefix(raw, "=") {
		return Assignment{Ref: ref, Formula: raw}, nil
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Assignment{Ref: ref, Value: raw}, nil
	}
	grid, err := toGrid(v)
	if err != nil {
		return Assignment{}, fmt.Errorf("%q: %w", arg, err)
	}
	return Assignment{Ref: ref, Value: grid}, nil
}

// toGrid turns decoded JSON arrays into the [][]any the facade accepts. A
// flat array is one row.
func toGrid(v any) (any, error) {
	rows, ok := v.([]any)
	if !ok {
		if _, isMap := v.(map[string]any); isMap {
			return nil, errors.New("objects are not cell values")
		}
		return v, nil
	}
	grid := make([][]any, 0, len(rows))
	for _, r := range rows {
		cells, ok := r.([]any)
		if !ok {
			return [][]any{rows}, nil
		}
		grid = append(grid, cells)
	}
	return grid, nil
}
