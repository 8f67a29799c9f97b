package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gridcalc/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name      string   `json:"name"`
	File      string   `json:"file"`
	Pass      bool     `json:"pass"`
	Golden    string   `json:"golden,omitempty"` // "match", "updated" or "missing"
	RoundTrip string   `json:"round_trip,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run workbook scenarios",
		Long: `Run every scenario file (.yaml, .yml) in a directory. Each scenario
builds its workbook, applies its flow of writes, and checks its expectations
and assertions.

When <scenarios-dir>/golden/<name>.golden exists the scenario's trace and
final values must match it byte for byte; --update rewrites it. Scenarios
that only write values are also rebuilt from their saved state and must
reproduce the same formula values.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  gridcalc test ./scenarios
  gridcalc test ./scenarios --filter "loan*"
  gridcalc test ./scenarios --update
  gridcalc test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(ctx context.Context, opts *TestOptions, dir string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fail(out, ErrCodeNotFound,
			NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir)), nil)
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return fail(out, ErrCodeGeneric, WrapExitError(ExitCommandError, "failed to find scenarios", err), nil)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr := runScenario(ctx, opts, dir, file)
		opts.Logger().Debug("scenario finished", "name", sr.Name, "pass", sr.Pass)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	if out.IsJSON() {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		printTests(out, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

// findScenarioFiles lists the YAML files directly inside dir, sorted by
// name. Subdirectories hold golden files and shared workbooks.
func findScenarioFiles(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(e.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func runScenario(ctx context.Context, opts *TestOptions, dir, file string) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr
	}
	sr.Name = scenario.Name

	result, err := harness.RunContext(ctx, scenario)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.Errors = append(sr.Errors, result.Errors...)

	status, err := checkGolden(goldenFilePath(dir, scenario.Name), scenario.Name, result, opts.Update)
	sr.Golden = status
	if err != nil {
		sr.Errors = append(sr.Errors, err.Error())
	}

	rt, err := harness.CheckRoundTrip(ctx, scenario, result)
	switch {
	case err != nil:
		sr.Errors = append(sr.Errors, fmt.Sprintf("round trip: %v", err))
	case rt.Skipped:
		sr.RoundTrip = "skipped"
	case rt.OK():
		sr.RoundTrip = "ok"
	default:
		sr.RoundTrip = "mismatch"
		for _, m := range rt.Mismatches {
			sr.Errors = append(sr.Errors, fmt.Sprintf("round trip %s: expected %v, got %v", m.Address, m.Expected, m.Actual))
		}
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

func goldenFilePath(dir, name string) string {
	return filepath.Join(dir, "golden", name+".golden")
}

// checkGolden compares result with the golden file at path, or rewrites the
// file when update is set.
func checkGolden(path, name string, result *harness.Result, update bool) (string, error) {
	got, err := harness.NewSnapshot(name, result).Marshal()
	if err != nil {
		return "", fmt.Errorf("golden: %w", err)
	}

	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("golden: %w", err)
		}
		if err := os.WriteFile(path, got, 0o644); err != nil {
			return "", fmt.Errorf("golden: %w", err)
		}
		return "updated", nil
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "missing", nil
	}
	if err != nil {
		return "", fmt.Errorf("golden: %w", err)
	}
	if !bytes.Equal(bytes.TrimSpace(want), bytes.TrimSpace(got)) {
		return "mismatch", fmt.Errorf("golden mismatch: %s differs from the run (rerun with --update to accept)", path)
	}
	return "match", nil
}

func printTests(out *OutputFormatter, result TestResult) {
	if result.Total == 0 {
		out.Printf("No scenarios found.\n")
		return
	}
	for _, sr := range result.Scenarios {
		if sr.Pass {
			note := ""
			if sr.Golden == "updated" {
				note = " (golden updated)"
			}
			out.Printf("✓ %s%s\n", sr.Name, note)
			continue
		}
		out.Printf("✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			out.Printf("  %s\n", e)
		}
	}
	out.Printf("\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
