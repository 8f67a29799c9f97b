package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/gridcalc/internal/engine"
	"github.com/roach88/gridcalc/internal/facade"
	"github.com/roach88/gridcalc/internal/store"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Cells    []string
	Raw      bool
	Async    bool
	Database string
	Snapshot string
	Force    bool
}

// CellValue is one evaluated reference.
type CellValue struct {
	Ref   string `json:"ref"`
	Value any    `json:"value"`
	Error string `json:"error,omitempty"`
}

// EvalResult is the output of eval.
type EvalResult struct {
	Workbook          string              `json:"workbook"`
	Snapshot          string              `json:"snapshot,omitempty"`
	Values            []CellValue         `json:"values"`
	Pass              engine.PassStats    `json:"pass"`
	BuildErrors       []engine.Diagnostic `json:"build_errors"`
	Warnings          []engine.Diagnostic `json:"warnings"`
	CalculationErrors []engine.Diagnostic `json:"calculation_errors"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <workbook>",
		Short: "Build a workbook and print its values",
		Long: `Build a workbook description, run the first calculation pass and print
the requested values together with build and calculation diagnostics.

Without --cells every formula cell is printed in sheet order. --db restores
the newest saved snapshot (or --snapshot) before printing.

Exit codes:
  0 - Workbook evaluated
  1 - Schema violation or formulas that failed to build
  2 - Command error (missing file, unreadable database, etc.)

Examples:
  gridcalc eval ./loan.yaml
  gridcalc eval ./loan.yaml --cells Model!A1,Rate --raw
  gridcalc eval ./loan.yaml --db ./loan.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Cells, "cells", nil, "addresses or names to print (comma separated)")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "ignore number formats")
	cmd.Flags().BoolVar(&opts.Async, "async", false, "build in time slices, logging progress")
	cmd.Flags().StringVar(&opts.Database, "db", "", "snapshot database to restore from")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "snapshot id to restore (default newest)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "restore even if the workbook description changed")

	return cmd
}

func runEval(ctx context.Context, opts *EvalOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	wb, err := openWorkbook(ctx, opts.RootOptions, path, opts.Async)
	if err != nil {
		return reportLoadError(out, err)
	}

	result := EvalResult{Workbook: wb.Name()}

	if opts.Database != "" {
		id, err := restoreFromStore(ctx, opts.Database, wb, opts.Snapshot, opts.Force)
		if err != nil {
			return fail(out, ErrCodeStore, err, nil)
		}
		result.Snapshot = id
	} else if opts.Snapshot != "" {
		return fail(out, ErrCodeGeneric, NewExitError(ExitCommandError, "--snapshot requires --db"), nil)
	}

	refs := opts.Cells
	if len(refs) == 0 {
		refs = formulaAddresses(wb)
	}
	for _, ref := range refs {
		result.Values = append(result.Values, readCell(wb, ref, opts.Raw))
	}

	result.Pass = wb.LastPass()
	result.BuildErrors = nonNil(wb.BuildErrors())
	result.Warnings = nonNil(wb.Warnings())
	result.CalculationErrors = nonNil(wb.CalculationErrors())
	if result.Values == nil {
		result.Values = []CellValue{}
	}

	if out.IsJSON() {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		printEval(out, result)
	}

	if len(result.BuildErrors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d formulas failed to build", len(result.BuildErrors)))
	}
	return nil
}

func restoreFromStore(ctx context.Context, dbPath string, wb *facade.Workbook, id string, force bool) (string, error) {
	st, err := openStore(dbPath)
	if err != nil {
		return "", err
	}
	defer st.Close()
	return restoreSnapshot(ctx, st, wb, id, force)
}

// restoreSnapshot applies snapshot id, or the newest snapshot when id is
// empty, and returns the id applied. An empty store restores nothing.
func restoreSnapshot(ctx context.Context, st store.Store, wb *facade.Workbook, id string, force bool) (string, error) {
	var snap store.Snapshot
	var err error
	if id != "" {
		snap, err = st.Get(ctx, id)
	} else {
		snap, err = st.Latest(ctx, wb.Name())
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
	}
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}
	if snap.Workbook != wb.Name() {
		return "", WrapExitError(ExitFailure,
			fmt.Sprintf("snapshot %s belongs to workbook %q", snap.ID, snap.Workbook), store.ErrWorkbookChanged)
	}
	if err := store.Restore(ctx, wb, snap, force); err != nil {
		return "", WrapExitError(ExitFailure, "failed to restore snapshot", err)
	}
	return snap.ID, nil
}

// formulaAddresses lists every formula cell in sheet order, row-major.
func formulaAddresses(wb *facade.Workbook) []string {
	var out []string
	for _, sheet := range wb.Engine().Sheets() {
		for c := range sheet.Cells() {
			if c.IsValue() || c.IsBlank() {
				continue
			}
			out = append(out, c.Address())
		}
	}
	return out
}

func readCell(wb *facade.Workbook, ref string, raw bool) CellValue {
	read := wb.GetValue
	if raw {
		read = wb.GetRawValue
	}
	v, err := read(ref)
	if err != nil {
		return CellValue{Ref: ref, Error: err.Error()}
	}
	return CellValue{Ref: ref, Value: v}
}

func printEval(out *OutputFormatter, r EvalResult) {
	if r.Snapshot != "" {
		out.Printf("Restored snapshot %s\n", r.Snapshot)
	}
	for _, v := range r.Values {
		if v.Error != "" {
			out.Printf("%s\t! %s\n", v.Ref, v.Error)
			continue
		}
		out.Printf("%s\t%s\n", v.Ref, formatValue(v.Value))
	}
	printDiagnostics(out, r.BuildErrors, r.Warnings, r.CalculationErrors)
	out.Printf("\n%s: %d cells calculated in %s\n", r.Workbook, r.Pass.Calculated, r.Pass.Elapsed)
}

func printDiagnostics(out *OutputFormatter, lists ...[]engine.Diagnostic) {
	for _, list := range lists {
		for _, d := range list {
			out.Printf("  %s\n", d)
		}
	}
}

// reportLoadError returns a load failure, classified for the JSON
// envelope.
func reportLoadError(out *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	var details any
	if errors.Is(err, fs.ErrNotExist) {
		code = ErrCodeNotFound
	}
	if se := schemaError(err); se != nil {
		code = se.Errors[0].Code
		details = se.Errors
	}
	return fail(out, code, err, details)
}

func nonNil(d []engine.Diagnostic) []engine.Diagnostic {
	if d == nil {
		return []engine.Diagnostic{}
	}
	return d
}
