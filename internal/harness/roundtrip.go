package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/gridcalc/internal/facade"
)

// RoundTripResult reports whether a scenario's final values can be
// reproduced from its description plus its persisted state.
type RoundTripResult struct {
	Scenario string `json:"scenario"`

	// Skipped is set for scenarios that install formulas: formulas are not
	// part of the persisted state, so a rebuild cannot reproduce them.
	Skipped bool `json:"skipped,omitempty"`

	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// Mismatch is a formula cell whose rebuilt value differs from the value
// the scenario ended with.
type Mismatch struct {
	Address  string `json:"address"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
}

// OK reports whether the round trip reproduced every value.
func (r RoundTripResult) OK() bool { return len(r.Mismatches) == 0 }

// CheckRoundTrip rebuilds the scenario's workbook, applies result.State and
// compares every formula cell with result.Cells.
func CheckRoundTrip(ctx context.Context, scenario *Scenario, result *Result) (RoundTripResult, error) {
	out := RoundTripResult{Scenario: scenario.Name}
	for _, step := range scenario.Flow {
		if step.Formula != "" {
			out.Skipped = true
			return out, nil
		}
	}

	wb, err := facade.New(scenario.desc, Options()...)
	if err != nil {
		return out, fmt.Errorf("rebuild %s: %w", scenario.Name, err)
	}
	if err := wb.SetState(ctx, facade.State{Values: maps.Clone(result.State)}); err != nil {
		return out, fmt.Errorf("restore %s: %w", scenario.Name, err)
	}

	rebuilt := FormulaValues(wb)
	for _, addr := range slices.Sorted(maps.Keys(result.Cells)) {
		want := result.Cells[addr]
		got, ok := rebuilt[addr]
		if !ok || !valuesMatch(want, got) {
			out.Mismatches = append(out.Mismatches, Mismatch{Address: addr, Expected: want, Actual: got})
		}
	}
	return out, nil
}
