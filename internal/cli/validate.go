package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/gridcalc/internal/facade"
	"github.com/roach88/gridcalc/internal/ir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool
}

// FileValidation is the outcome for one workbook file.
type FileValidation struct {
	Path     string               `json:"path"`
	Workbook string               `json:"workbook,omitempty"`
	Valid    bool                 `json:"valid"`
	Cells    int                  `json:"cells"`
	Errors   []ir.ValidationError `json:"errors,omitempty"`
	Warnings []ir.ValidationError `json:"warnings,omitempty"`
}

// ValidateResult is the output of validate.
type ValidateResult struct {
	Files   []FileValidation `json:"files"`
	Valid   int              `json:"valid"`
	Invalid int              `json:"invalid"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Check workbook descriptions without evaluating them",
		Long: `Check workbook descriptions against the workbook schema and compile
every formula. Directories are searched for .json, .yaml and .yml files.

Schema violations and formulas that do not compile make a file invalid.
Unresolved names and addresses are warnings; --strict treats them as errors.

Exit codes:
  0 - All files valid
  1 - One or more files invalid
  2 - Command error (path not found, no files)

Examples:
  gridcalc validate ./loan.yaml
  gridcalc validate ./workbooks --strict --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat warnings as errors")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	files, err := findWorkbookFiles(paths)
	if err != nil {
		return fail(out, ErrCodeNotFound, err, nil)
	}
	if len(files) == 0 {
		return fail(out, ErrCodeNoFiles, NewExitError(ExitCommandError, "no workbook files found"), nil)
	}

	result := ValidateResult{Files: make([]FileValidation, 0, len(files))}
	for _, path := range files {
		fv := validateFile(opts, path)
		if fv.Valid {
			result.Valid++
		} else {
			result.Invalid++
		}
		result.Files = append(result.Files, fv)
	}

	if out.IsJSON() {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		for _, fv := range result.Files {
			mark := "✓"
			if !fv.Valid {
				mark = "✗"
			}
			out.Printf("%s %s (%d cells)\n", mark, fv.Path, fv.Cells)
			for _, e := range fv.Errors {
				out.Printf("  %s\n", e)
			}
			for _, w := range fv.Warnings {
				out.Printf("  warning %s\n", w)
			}
		}
		out.Printf("\n%d valid, %d invalid\n", result.Valid, result.Invalid)
	}

	if result.Invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d workbooks invalid", result.Invalid, len(files)))
	}
	return nil
}

func validateFile(opts *ValidateOptions, path string) FileValidation {
	fv := FileValidation{Path: path}

	desc, err := ir.LoadFile(path)
	if err != nil {
		if se := schemaError(err); se != nil {
			fv.Errors = se.Errors
		} else {
			fv.Errors = []ir.ValidationError{{Field: "file", Message: err.Error(), Code: ErrCodeGeneric}}
		}
		return fv
	}
	fv.Workbook = desc.Name
	fv.Cells = desc.CellCount()

	wb, err := facade.New(desc, facade.WithLogger(opts.Logger()))
	if err != nil {
		fv.Errors = []ir.ValidationError{{Field: "workbook", Message: err.Error(), Code: ErrCodeBuildFailed}}
		return fv
	}
	for _, d := range wb.BuildErrors() {
		fv.Errors = append(fv.Errors, ir.ValidationError{Field: d.Address, Message: d.Message, Code: ErrCodeBuildFailed})
	}
	for _, d := range wb.Warnings() {
		fv.Warnings = append(fv.Warnings, ir.ValidationError{Field: d.Address, Message: d.Message, Code: ErrCodeBadRef})
	}

	fv.Valid = len(fv.Errors) == 0 && (!opts.Strict || len(fv.Warnings) == 0)
	return fv
}

func schemaError(err error) *ir.SchemaError {
	var se *ir.SchemaError
	if errors.As(err, &se) && len(se.Errors) > 0 {
		return se
	}
	return nil
}
