package engine

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/gridcalc/internal/address"
	"github.com/roach88/gridcalc/internal/compiler"
	"github.com/roach88/gridcalc/internal/formula"
	"github.com/roach88/gridcalc/internal/ir"
	"github.com/roach88/gridcalc/internal/value"
)

// Scheduling defaults.
const (
	DefaultSliceBudget  = 20 * time.Millisecond
	DefaultForceTimeout = 20 * time.Second
)

// Workbook owns the worksheets, the dependency graph and the calculation
// queue of one built workbook description.
//
// A Workbook is not safe for concurrent use. All edits and calculation
// happen on one logical thread; servers serialize access in front of it.
type Workbook struct {
	desc   *ir.Workbook
	sheets map[string]*Worksheet
	order  []*Worksheet
	names  map[string]address.Bounds // workbook-scoped, keyed by upper-cased name

	lib      *formula.Library
	funcs    map[string]formula.Func
	compiler *compiler.Compiler

	queue     *calcQueue
	observers map[string][]observer // by sheet name
	pending   []*Cell               // dirtied during the current pass, in order
	sweepAt   int

	buildErrors []Diagnostic
	warnings    []Diagnostic
	calcErrors  []Diagnostic

	sliceBudget    time.Duration
	forceTimeout   time.Duration
	stuckThreshold int
	clock          formula.Clock
	logger         *slog.Logger
	passID         func() string

	pass     *PassStats
	passSeq  int64
	lastPass PassStats
	onDone   []func(PassStats)
	onNext   []func(PassStats)
}

// observer is a formula watching a range, so a cell created inside the range
// later becomes one of its parents.
type observer struct {
	bounds address.Bounds
	cell   *Cell
}

// Option configures a Workbook.
type Option func(*Workbook)

// WithSliceBudget bounds the work done by one Tick or build Step.
//
// Default: 20ms (DefaultSliceBudget)
func WithSliceBudget(d time.Duration) Option {
	return func(w *Workbook) {
		w.sliceBudget = d
	}
}

// WithForceTimeout bounds ForceCalculate.
//
// Default: 20s (DefaultForceTimeout)
func WithForceTimeout(d time.Duration) Option {
	return func(w *Workbook) {
		w.forceTimeout = d
	}
}

// WithStuckThreshold sets how many parent notifications a dirty cell may
// receive without becoming ready before it is calculated anyway.
//
// Default: 0, meaning the cell's own parent count.
// Use WithStuckThreshold(1) in tests to force the fallback early.
func WithStuckThreshold(n int) Option {
	return func(w *Workbook) {
		w.stuckThreshold = n
	}
}

// WithClock sets the clock read by TODAY, NOW and slice budgeting.
func WithClock(c formula.Clock) Option {
	return func(w *Workbook) {
		w.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Workbook) {
		w.logger = l
	}
}

// WithFunctions adds workbook-local functions. They take precedence over
// built-ins of the same name.
func WithFunctions(fns map[string]formula.Func) Option {
	return func(w *Workbook) {
		for name, fn := range fns {
			w.funcs[strings.ToUpper(name)] = fn
		}
	}
}

// WithPassIDs sets the generator of calculation pass ids. Default: UUIDv7.
func WithPassIDs(next func() string) Option {
	return func(w *Workbook) {
		w.passID = next
	}
}

func newWorkbook(desc *ir.Workbook, opts ...Option) *Workbook {
	w := &Workbook{
		desc:         desc,
		sheets:       make(map[string]*Worksheet, len(desc.Worksheets)),
		names:        make(map[string]address.Bounds, len(desc.NamedRanges)),
		lib:          formula.NewLibrary(),
		funcs:        make(map[string]formula.Func),
		queue:        newCalcQueue(),
		observers:    make(map[string][]observer),
		sliceBudget:  DefaultSliceBudget,
		forceTimeout: DefaultForceTimeout,
		clock:        formula.SystemClock{},
		logger:       slog.Default(),
		passID:       NewPassID,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.compiler = compiler.New(w.lib, compiler.WithLogger(w.logger))

	for _, name := range desc.SheetNames() {
		s := newWorksheet(w, name)
		w.sheets[name] = s
		w.order = append(w.order, s)
		for n, nr := range desc.Worksheets[name].NamedRanges {
			s.names[strings.ToUpper(n)] = namedBounds(nr, name)
		}
	}
	for n, nr := range desc.NamedRanges {
		w.names[strings.ToUpper(n)] = namedBounds(nr, w.defaultSheet())
	}
	return w
}

func namedBounds(nr ir.NamedRange, sheet string) address.Bounds {
	if nr.Worksheet != "" {
		sheet = nr.Worksheet
	}
	sr, sc, er, ec := nr.Corners()
	return address.Bounds{Sheet: sheet, StartRow: sr, StartCol: sc, EndRow: er, EndCol: ec}
}

// Name returns the workbook name.
func (w *Workbook) Name() string { return w.desc.Name }

// Description returns the description the workbook was built from.
func (w *Workbook) Description() *ir.Workbook { return w.desc }

// Library returns the workbook's function library.
func (w *Workbook) Library() *formula.Library { return w.lib }

// Sheets returns the worksheets in build order.
func (w *Workbook) Sheets() []*Worksheet { return slices.Clone(w.order) }

// Sheet returns a worksheet by name. Names match case-insensitively when
// there is no exact match.
func (w *Workbook) Sheet(name string) (*Worksheet, bool) {
	if s, ok := w.sheets[name]; ok {
		return s, true
	}
	for _, s := range w.order {
		if strings.EqualFold(s.name, name) {
			return s, true
		}
	}
	return nil, false
}

func (w *Workbook) defaultSheet() string {
	if len(w.order) == 0 {
		return ""
	}
	return w.order[0].name
}

// Cell returns the cell at the given position, or nil.
func (w *Workbook) Cell(sheet string, row, col int) *Cell {
	s, ok := w.Sheet(sheet)
	if !ok {
		return nil
	}
	return s.Cell(row, col)
}

// Value returns the current value at the given position.
func (w *Workbook) Value(sheet string, row, col int) value.Value {
	s, ok := w.Sheet(sheet)
	if !ok {
		return value.Err(value.CodeRef)
	}
	return s.Lookup(row, col)
}

// Values returns the current values inside b, row by row.
func (w *Workbook) Values(b address.Bounds) [][]value.Value {
	s, ok := w.Sheet(b.Sheet)
	out := make([][]value.Value, b.Height())
	for i := range out {
		out[i] = make([]value.Value, b.Width())
		for j := range out[i] {
			if !ok {
				out[i][j] = value.Err(value.CodeRef)
				continue
			}
			out[i][j] = s.Lookup(b.StartRow+i, b.StartCol+j)
		}
	}
	return out
}

// Resolve turns a named range or an address into sheet-qualified bounds.
// Unqualified addresses refer to the first worksheet. Sheet-scoped names
// are written Sheet!Name.
func (w *Workbook) Resolve(ref string) ([]address.Bounds, error) {
	ref = strings.TrimSpace(ref)
	if b, ok := w.names[strings.ToUpper(ref)]; ok {
		return []address.Bounds{b}, nil
	}
	if sheet, rest, err := address.SplitSheet(ref); err == nil && sheet != "" {
		if s, ok := w.Sheet(sheet); ok {
			if b, ok := s.localName(rest); ok {
				return []address.Bounds{b}, nil
			}
		}
	}

	all, err := address.Parse(ref)
	if err != nil {
		return nil, &CalcError{Code: ErrCodeBadAddress, Message: err.Error()}
	}
	for i := range all {
		if all[i].Sheet == "" {
			all[i].Sheet = w.defaultSheet()
		}
		s, ok := w.Sheet(all[i].Sheet)
		if !ok {
			return nil, &CalcError{
				Code:    ErrCodeUnknownSheet,
				Message: fmt.Sprintf("no worksheet named %q", all[i].Sheet),
				Address: ref,
			}
		}
		all[i].Sheet = s.name
	}
	return all, nil
}

// SetValue stores a constant in a cell, creating it if needed, and schedules
// its dependents. A formula cell written this way becomes a constant.
// References are collapsed to the value they point at.
func (w *Workbook) SetValue(sheet string, row, col int, v value.Value) error {
	c, err := w.editable(sheet, row, col)
	if err != nil {
		return err
	}
	if v == nil {
		v = value.Blank{}
	}
	if value.IsRef(v) {
		v = value.Scalar(v, row, col)
	}

	wasBlank := c.isBlank
	if !c.isValue {
		w.unlink(c)
		w.forget(c)
	}
	c.prog = constant(v)
	c.isValue = true
	c.isBlank = v.Kind() == value.KindBlank
	c.text = ""
	c.status = nil
	if wasBlank && !c.isBlank {
		w.adopt(c)
	}
	w.touch(c)
	return nil
}

// SetExpression replaces a cell's formula, rediscovers its parents and
// schedules it together with its dependents.
func (w *Workbook) SetExpression(sheet string, row, col int, node *ir.Node) error {
	c, err := w.editable(sheet, row, col)
	if err != nil {
		return err
	}
	wasBlank := c.isBlank
	w.unlink(c)
	w.forget(c)
	c.text = ""
	w.compile(c, node)
	if wasBlank {
		w.adopt(c)
	}
	w.link(c)
	w.touch(c)
	return nil
}

// SetFormula parses formula text such as "=A1*2" and installs it with
// SetExpression. Text that does not parse is rejected and the cell is left
// unchanged.
func (w *Workbook) SetFormula(sheet string, row, col int, text string) error {
	node, err := ir.ParseFormula(text)
	if err != nil {
		return fmt.Errorf("set formula %s: %w", address.Format(sheet, row, col), err)
	}
	if err := w.SetExpression(sheet, row, col, node); err != nil {
		return err
	}
	w.Cell(sheet, row, col).text = text
	return nil
}

func (w *Workbook) editable(sheet string, row, col int) (*Cell, error) {
	s, ok := w.Sheet(sheet)
	if !ok {
		return nil, &CalcError{Code: ErrCodeUnknownSheet, Message: fmt.Sprintf("no worksheet named %q", sheet)}
	}
	if row < 1 || col < 1 {
		return nil, &CalcError{Code: ErrCodeBadAddress, Message: fmt.Sprintf("row %d col %d out of range", row, col)}
	}
	c, _ := s.ensure(row, col)
	return c, nil
}

// touch dirties an edited cell and its dependents, and queues the cell when
// nothing it reads is pending.
func (w *Workbook) touch(c *Cell) {
	w.endirten(c)
	if c.ready() {
		w.queue.Push(c)
	}
}

func constant(v value.Value) compiler.Program {
	return compiler.Program{Eval: func(*formula.Context) value.Value { return v }}
}

// compile installs the program of a formula cell and records its
// diagnostics.
func (w *Workbook) compile(c *Cell, node *ir.Node) {
	p := w.compiler.Compile(node, &scope{w: w, sheet: c.sheet})
	c.prog = p
	c.isValue = false
	c.isBlank = false
	c.status = nil
	for _, d := range p.Errors {
		w.recordBuildError(c, d.Code, d.Message)
	}
	for _, d := range p.Warnings {
		w.recordWarning(c.Address(), d.Code, d.Message)
	}
}

func (w *Workbook) recordBuildError(c *Cell, code, msg string) {
	d := Diagnostic{Kind: KindBuild, Address: c.Address(), Code: code, Message: msg}
	w.buildErrors = append(w.buildErrors, d)
	c.status = &d
	w.logger.Warn("formula build error", "cell", d.Address, "code", code, "msg", msg)
}

func (w *Workbook) recordWarning(addr, code, msg string) {
	w.warnings = append(w.warnings, Diagnostic{Kind: KindWarning, Address: addr, Code: code, Message: msg})
	w.logger.Warn("formula warning", "cell", addr, "code", code, "msg", msg)
}

// forget drops the build diagnostics of a cell about to be redefined.
func (w *Workbook) forget(c *Cell) {
	addr := c.Address()
	drop := func(d Diagnostic) bool { return d.Address == addr }
	w.buildErrors = slices.DeleteFunc(w.buildErrors, drop)
	w.warnings = slices.DeleteFunc(w.warnings, drop)
	c.status = nil
}

// BuildErrors returns formulas that failed to compile.
func (w *Workbook) BuildErrors() []Diagnostic { return slices.Clone(w.buildErrors) }

// Warnings returns formulas that compiled with substituted error values, and
// reference cycles.
func (w *Workbook) Warnings() []Diagnostic { return slices.Clone(w.warnings) }

// CalculationErrors returns failures raised while evaluating formulas.
func (w *Workbook) CalculationErrors() []Diagnostic { return slices.Clone(w.calcErrors) }

// Roots returns the cells without precedents, in build order.
func (w *Workbook) Roots() []*Cell {
	var roots []*Cell
	for _, s := range w.order {
		for c := range s.Cells() {
			if c.IsRoot() {
				roots = append(roots, c)
			}
		}
	}
	return roots
}
