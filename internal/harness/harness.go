package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/gridcalc/internal/engine"
	"github.com/roach88/gridcalc/internal/facade"
	"github.com/roach88/gridcalc/internal/testutil"
)

// Harness drives one scenario against a freshly built workbook.
type Harness struct {
	wb     *facade.Workbook
	result *Result
}

// Options returns the facade options scenarios run with: a fixed clock at
// testutil.Epoch, sequential pass ids and a discarding logger. Callers
// rebuilding a scenario's workbook use them to get identical values.
func Options() []facade.Option {
	ids := testutil.NewSequentialIDs("pass")
	return []facade.Option{
		facade.WithLogger(slog.New(slog.DiscardHandler)),
		facade.WithEngineOptions(
			engine.WithClock(testutil.NewFixedClock(testutil.Epoch)),
			engine.WithPassIDs(ids.Next),
		),
	}
}

// Run executes a scenario with a background context.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext executes a scenario and returns its result.
//
// Execution flow:
//  1. Build the workbook from the scenario's description
//  2. Apply setup writes
//  3. Apply flow steps, checking expectations after each
//  4. Evaluate assertions
//  5. Capture formula cell values and the persisted state
//
// Failed expectations and assertions are reported in Result.Errors. The
// returned error is reserved for problems that stop the run: a scenario
// without a loaded workbook, a failing setup write or a cancelled context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	if scenario.desc == nil {
		return nil, errors.New("scenario has no workbook; load it with LoadScenario or ParseScenario")
	}

	wb, err := facade.New(scenario.desc, Options()...)
	if err != nil {
		return nil, fmt.Errorf("build workbook: %w", err)
	}

	h := &Harness{wb: wb, result: NewResult()}
	wb.OnCalculationDone(func(p engine.PassStats) {
		h.result.record(TraceEvent{
			Type:       EventPass,
			PassID:     p.ID,
			Calculated: p.Calculated,
			Errors:     p.Errors,
		})
	})

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, err
	}
	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, wb) {
		h.result.AddError(msg)
	}

	h.result.Cells = FormulaValues(wb)
	h.result.State = wb.GetState().Values
	return h.result, nil
}

func (h *Harness) executeSetup(ctx context.Context, setup []SetStep) error {
	for i, step := range setup {
		h.result.record(TraceEvent{Type: EventSet, Ref: step.Ref, Value: step.Value})
		if err := h.wb.SetValue(ctx, step.Ref, normalizeInput(step.Value)); err != nil {
			return fmt.Errorf("setup[%d]: set %s: %w", i, step.Ref, err)
		}
	}
	return nil
}

func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep) error {
	for i, step := range flow {
		var err error
		switch {
		case step.Reset:
			h.result.record(TraceEvent{Type: EventReset})
			err = h.wb.Reset(ctx)
		case step.Formula != "":
			h.result.record(TraceEvent{Type: EventFormula, Ref: step.Ref, Formula: step.Formula})
			err = h.wb.SetFormula(ctx, step.Ref, step.Formula)
		case step.Ref != "":
			h.result.record(TraceEvent{Type: EventSet, Ref: step.Ref, Value: step.Value})
			err = h.wb.SetValue(ctx, step.Ref, normalizeInput(step.Value))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			h.result.AddError(fmt.Sprintf("flow[%d]: %v", i, err))
			continue
		}

		for _, ref := range slices.Sorted(maps.Keys(step.Expect)) {
			if err := checkValue(h.wb, ref, step.Expect[ref], step.Raw); err != nil {
				h.result.AddError(fmt.Sprintf("flow[%d]: %v", i, err))
			}
		}
	}
	return nil
}

// FormulaValues returns the raw value of every formula cell keyed by
// Sheet!A1 address.
func FormulaValues(wb *facade.Workbook) map[string]any {
	out := make(map[string]any)
	for _, sheet := range wb.Engine().Sheets() {
		for c := range sheet.Cells() {
			if c.IsValue() || c.IsBlank() {
				continue
			}
			out[c.Address()] = c.Value().Raw()
		}
	}
	return out
}

// normalizeInput turns YAML sequences into the [][]any grids the facade
// accepts. A flat sequence is one row.
func normalizeInput(v any) any {
	rows, ok := v.([]any)
	if !ok {
		return v
	}
	grid := make([][]any, 0, len(rows))
	for _, r := range rows {
		cells, ok := r.([]any)
		if !ok {
			return [][]any{rows}
		}
		grid = append(grid, cells)
	}
	return grid
}
