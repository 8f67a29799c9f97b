// Package facade is the surface external callers use to drive a workbook:
// reading and writing values by address or name, waiting for
// recalculation, and saving or restoring the values a user has entered.
//
// The facade never exposes cells. Values cross it as plain Go values:
// float64, string, bool, nil for blank cells and the error code string (such
// as "#DIV/0!") for spreadsheet errors. Ranges cross it as [][]any, row by
// row.
//
// A Workbook is not safe for concurrent use. internal/server shows how to
// serialize access from many goroutines.
package facade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/gridcalc/internal/address"
	"github.com/roach88/gridcalc/internal/engine"
	"github.com/roach88/gridcalc/internal/formula"
	"github.com/roach88/gridcalc/internal/ir"
	"github.com/roach88/gridcalc/internal/value"
)

// ErrShape is returned when a 2-D array does not fit the target range.
var ErrShape = errors.New("array does not fit the target range")

// ErrPeriod is returned when a period index falls outside the range.
var ErrPeriod = errors.New("period out of range")

// Workbook wraps a built engine.Workbook.
type Workbook struct {
	desc   *ir.Workbook
	opts   []engine.Option
	funcs  map[string]formula.Func
	logger *slog.Logger

	wb      *engine.Workbook
	entered map[string]bool // addresses written through SetValue or SetState
	history []byte

	onDone []func(engine.PassStats)
}

// Option configures a Workbook.
type Option func(*Workbook)

// WithFunction registers a custom function. It takes precedence over a
// built-in of the same name and survives Reset.
func WithFunction(name string, fn formula.Func) Option {
	return func(w *Workbook) {
		w.funcs[strings.ToUpper(name)] = fn
	}
}

// WithLogger sets the logger for the facade and its engine.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workbook) {
		w.logger = l
	}
}

// WithEngineOptions passes options through to every engine the facade
// builds.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(w *Workbook) {
		w.opts = append(w.opts, opts...)
	}
}

func newFacade(desc *ir.Workbook, opts []Option) *Workbook {
	w := &Workbook{
		desc:    desc,
		funcs:   make(map[string]formula.Func),
		logger:  slog.Default(),
		entered: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workbook) engineOptions() []engine.Option {
	opts := []engine.Option{engine.WithLogger(w.logger), engine.WithFunctions(w.funcs)}
	return append(opts, w.opts...)
}

// New builds desc and runs the first calculation pass to completion.
func New(desc *ir.Workbook, opts ...Option) (*Workbook, error) {
	w := newFacade(desc, opts)
	if err := w.rebuild(context.Background(), false, nil); err != nil {
		return nil, err
	}
	return w, nil
}

// NewAsync builds desc in time slices, reporting progress after each, then
// runs the first calculation pass the same way. Cancelling ctx abandons the
// build.
func NewAsync(ctx context.Context, desc *ir.Workbook, onProgress func(engine.Progress), opts ...Option) (*Workbook, error) {
	w := newFacade(desc, opts)
	if err := w.rebuild(ctx, true, onProgress); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Workbook) rebuild(ctx context.Context, async bool, onProgress func(engine.Progress)) error {
	b, err := engine.NewBuilder(w.desc, w.engineOptions()...)
	if err != nil {
		return err
	}
	wb, err := b.Run(ctx, onProgress)
	if err != nil {
		return err
	}
	for _, fn := range w.onDone {
		wb.OnCalculationDone(fn)
	}
	w.wb = wb
	if async {
		return wb.Run(ctx)
	}
	return wb.ForceCalculate()
}

// Reset discards every edit and rebuilds the workbook from its description.
// Custom functions and OnCalculationDone callbacks are kept.
func (w *Workbook) Reset(ctx context.Context) error {
	w.entered = make(map[string]bool)
	w.history = nil
	if err := w.rebuild(ctx, true, nil); err != nil {
		return fmt.Errorf("reset %q: %w", w.desc.Name, err)
	}
	w.logger.Debug("workbook reset", "workbook", w.desc.Name)
	return nil
}

// Engine returns the underlying engine workbook.
func (w *Workbook) Engine() *engine.Workbook { return w.wb }

// Name returns the workbook name.
func (w *Workbook) Name() string { return w.desc.Name }

// Description returns the description the workbook is built from.
func (w *Workbook) Description() *ir.Workbook { return w.desc }

// GetValue reads an address or named range. A single cell yields a scalar,
// anything larger a [][]any. Cells carrying a number format are returned as
// formatted text.
func (w *Workbook) GetValue(ref string) (any, error) {
	return w.get(ref, true)
}

// GetRawValue is GetValue without number formatting.
func (w *Workbook) GetRawValue(ref string) (any, error) {
	return w.get(ref, false)
}

func (w *Workbook) get(ref string, format bool) (any, error) {
	all, err := w.wb.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if len(all) == 1 && all[0].IsCell() {
		b := all[0]
		return w.read(b.Sheet, b.StartRow, b.StartCol, format), nil
	}
	var rows [][]any
	for _, b := range all {
		for r := b.StartRow; r <= b.EndRow; r++ {
			row := make([]any, 0, b.Width())
			for c := b.StartCol; c <= b.EndCol; c++ {
				row = append(row, w.read(b.Sheet, r, c, format))
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// GetPeriodValue returns the period-th cell of a range, counting from zero
// in row-major order. It reads one period of a time-series row or column.
func (w *Workbook) GetPeriodValue(ref string, period int) (any, error) {
	all, err := w.wb.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if period < 0 {
		return nil, fmt.Errorf("%s period %d: %w", ref, period, ErrPeriod)
	}
	n := period
	for _, b := range all {
		size := b.Height() * b.Width()
		if n < size {
			return w.read(b.Sheet, b.StartRow+n/b.Width(), b.StartCol+n%b.Width(), true), nil
		}
		n -= size
	}
	return nil, fmt.Errorf("%s period %d: %w", ref, period, ErrPeriod)
}

func (w *Workbook) read(sheet string, row, col int, format bool) any {
	v := w.wb.Value(sheet, row, col)
	if !format {
		return v.Raw()
	}
	c := w.wb.Cell(sheet, row, col)
	if c == nil || c.NumberFormat() == "" || v.Kind() == value.KindError {
		return v.Raw()
	}
	s, ferr := formula.FormatValue(v, c.NumberFormat())
	if ferr != nil {
		w.logger.Debug("number format failed", "cell", c.Address(), "nf", c.NumberFormat(), "err", ferr.Message)
		return v.Raw()
	}
	return s
}

// SetValue writes a scalar or a [][]any to an address or named range and
// returns once the ensuing recalculation pass completes. A scalar written
// to a range fills every cell. An array written to a single cell fills the
// block anchored there; written to a range, it must fit inside it.
func (w *Workbook) SetValue(ctx context.Context, ref string, v any) error {
	if err := w.write(ref, v); err != nil {
		return err
	}
	return w.wb.Run(ctx)
}

// SetFormula installs formula text such as "=A1*2" in one cell and waits
// for recalculation.
func (w *Workbook) SetFormula(ctx context.Context, ref string, text string) error {
	all, err := w.wb.Resolve(ref)
	if err != nil {
		return err
	}
	if len(all) != 1 || !all[0].IsCell() {
		return fmt.Errorf("set formula %s: %w", ref, ErrShape)
	}
	b := all[0]
	if err := w.wb.SetFormula(b.Sheet, b.StartRow, b.StartCol, text); err != nil {
		return err
	}
	delete(w.entered, address.Format(b.Sheet, b.StartRow, b.StartCol))
	return w.wb.Run(ctx)
}

func (w *Workbook) write(ref string, v any) error {
	all, err := w.wb.Resolve(ref)
	if err != nil {
		return err
	}
	grid, isGrid := v.([][]any)
	for _, b := range all {
		if !isGrid {
			for r := b.StartRow; r <= b.EndRow; r++ {
				for c := b.StartCol; c <= b.EndCol; c++ {
					if err := w.put(b.Sheet, r, c, v); err != nil {
						return err
					}
				}
			}
			continue
		}
		if !b.IsCell() && !fits(grid, b) {
			return fmt.Errorf("set %s: %w", b, ErrShape)
		}
		for i, row := range grid {
			for j, x := range row {
				if err := w.put(b.Sheet, b.StartRow+i, b.StartCol+j, x); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func fits(grid [][]any, b address.Bounds) bool {
	if len(grid) > b.Height() {
		return false
	}
	for _, row := range grid {
		if len(row) > b.Width() {
			return false
		}
	}
	return true
}

func (w *Workbook) put(sheet string, row, col int, x any) error {
	if err := w.wb.SetValue(sheet, row, col, value.FromInput(x)); err != nil {
		return err
	}
	w.entered[address.Format(sheet, row, col)] = true
	return nil
}

// OnCalculationDone registers fn to run after every completed pass,
// including passes of workbooks rebuilt by Reset.
func (w *Workbook) OnCalculationDone(fn func(engine.PassStats)) {
	w.onDone = append(w.onDone, fn)
	w.wb.OnCalculationDone(fn)
}

// OnNextCalculationDone registers fn to run once, after the next completed
// pass.
func (w *Workbook) OnNextCalculationDone(fn func(engine.PassStats)) {
	w.wb.OnNextCalculationDone(fn)
}

// BuildErrors returns formulas that failed to compile.
func (w *Workbook) BuildErrors() []engine.Diagnostic { return w.wb.BuildErrors() }

// Warnings returns compile warnings and reference cycles.
func (w *Workbook) Warnings() []engine.Diagnostic { return w.wb.Warnings() }

// CalculationErrors returns failures raised while evaluating formulas.
func (w *Workbook) CalculationErrors() []engine.Diagnostic { return w.wb.CalculationErrors() }

// LastPass returns the statistics of the most recent calculation pass.
func (w *Workbook) LastPass() engine.PassStats { return w.wb.LastPass() }

// Entered returns the addresses written through SetValue or SetState that
// still hold constants, sorted.
func (w *Workbook) Entered() []string {
	var out []string
	for _, addr := range slices.Sorted(maps.Keys(w.entered)) {
		sheet, rest, err := address.SplitSheet(addr)
		if err != nil {
			continue
		}
		b, err := address.ParseOne(rest)
		if err != nil {
			continue
		}
		if c := w.wb.Cell(sheet, b.StartRow, b.StartCol); c != nil && c.IsValue() {
			out = append(out, addr)
		}
	}
	return out
}
