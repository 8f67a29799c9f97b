// Package compiler turns expression trees into evaluator closures.
//
// A formula is compiled once, when its cell is built or edited. The result is
// a Program: a closure re-invoked on every recalculation, plus the references
// discovered while compiling. Dependency discovery never happens at
// evaluation time.
//
// Compilation does not fail. Problems are reported as diagnostics on the
// Program: warnings leave the formula running with an error value in place of
// the offending sub-expression, build errors replace the whole evaluator with
// a constant error value.
package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/roach88/gridcalc/internal/address"
	"github.com/roach88/gridcalc/internal/formula"
	"github.com/roach88/gridcalc/internal/ir"
	"github.com/roach88/gridcalc/internal/value"
)

// Scope is what a formula can see from the cell it is compiled for.
type Scope interface {
	// Sheet is the worksheet the formula lives on. Unqualified references
	// resolve against it.
	Sheet() string

	// Grid resolves a worksheet by name.
	Grid(sheet string) (value.Grid, bool)

	// Name resolves a named range visible from Sheet. The bounds carry the
	// sheet the range lives on.
	Name(name string) (address.Bounds, bool)

	// Function returns a workbook-local function. Local functions take
	// precedence over the library.
	Function(name string) (formula.Func, bool)
}

// Program is a compiled formula.
type Program struct {
	// Eval computes the formula's value. It never returns nil.
	Eval formula.Thunk

	// Refs lists every range the formula reads, sheet-qualified, in the
	// order they appear.
	Refs []address.Bounds

	// Errors are build errors. When present, Eval returns a constant error
	// and Refs is empty.
	Errors []Diagnostic

	Warnings []Diagnostic
}

// Failed reports whether the formula had a build error.
func (p Program) Failed() bool { return len(p.Errors) > 0 }

// Compiler compiles formulas against one function library. Literal values
// are interned per compiler, so a workbook full of identical constants
// shares their evaluators.
//
// A Compiler is not safe for concurrent use.
type Compiler struct {
	lib    *formula.Library
	logger *slog.Logger
	lits   map[value.Value]formula.Thunk
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = l
	}
}

// New creates a compiler over lib.
func New(lib *formula.Library, opts ...Option) *Compiler {
	c := &Compiler{
		lib:    lib,
		logger: slog.Default(),
		lits:   make(map[value.Value]formula.Thunk),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Library returns the library calls are resolved against.
func (c *Compiler) Library() *formula.Library { return c.lib }

// Interned returns the number of distinct literal values seen so far.
func (c *Compiler) Interned() int { return len(c.lits) }

// Constant returns the program of a cell holding a plain value.
func (c *Compiler) Constant(v value.Value) Program {
	return Program{Eval: c.intern(v)}
}

// Compile compiles an expression tree. It recovers from panics: the program
// then evaluates to #REF! and carries an ErrCompilePanic diagnostic.
func (c *Compiler) Compile(node *ir.Node, scope Scope) (p Program) {
	u := &unit{c: c, scope: scope}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("formula compilation panicked",
				"sheet", scope.Sheet(),
				"formula", node.String(),
				"panic", r,
				"stack", string(debug.Stack()))
			d := Diagnostic{Code: ErrCompilePanic, Message: fmt.Sprintf("compile panic: %v", r), Node: node.String()}
			p = failed(value.CodeRef, d, u.warnings)
		}
	}()

	eval, err := u.compile(node)
	if err != nil {
		var f *fatal
		if !errors.As(err, &f) {
			f = &fatal{code: value.CodeRef, diag: Diagnostic{Code: ErrMalformedNode, Message: err.Error()}}
		}
		return failed(f.code, f.diag, u.warnings)
	}
	for _, w := range u.warnings {
		c.logger.Debug("formula warning", "sheet", scope.Sheet(), "code", w.Code, "msg", w.Message)
	}
	return Program{Eval: eval, Refs: u.refs, Warnings: u.warnings}
}

func failed(code value.Code, d Diagnostic, warnings []Diagnostic) Program {
	e := value.NewError(code, d.Message)
	return Program{
		Eval:     func(*formula.Context) value.Value { return e },
		Errors:   []Diagnostic{d},
		Warnings: warnings,
	}
}

func (c *Compiler) intern(v value.Value) formula.Thunk {
	if t, ok := c.lits[v]; ok {
		return t
	}
	t := func(*formula.Context) value.Value { return v }
	c.lits[v] = t
	return t
}

// fatal is a build error: it aborts the formula.
type fatal struct {
	code value.Code
	diag Diagnostic
}

func (f *fatal) Error() string { return f.diag.Error() }

// unit is the state of one Compile call.
type unit struct {
	c        *Compiler
	scope    Scope
	refs     []address.Bounds
	warnings []Diagnostic
}

func (u *unit) malformed(n *ir.Node, format string, args ...any) error {
	return &fatal{
		code: value.CodeRef,
		diag: Diagnostic{Code: ErrMalformedNode, Message: fmt.Sprintf(format, args...), Node: n.String()},
	}
}

// warn records a warning and returns the error value that stands in for the
// offending node.
func (u *unit) warn(code string, errCode value.Code, n *ir.Node, msg string) formula.Thunk {
	u.warnings = append(u.warnings, Diagnostic{Code: code, Message: msg, Node: n.String()})
	e := value.NewError(errCode, msg)
	return func(*formula.Context) value.Value { return e }
}

func (u *unit) compile(n *ir.Node) (formula.Thunk, error) {
	if n == nil {
		return nil, &fatal{code: value.CodeRef, diag: Diagnostic{Code: ErrMalformedNode, Message: "missing expression"}}
	}
	switch n.Type {
	case ir.NodeValue, ir.NodeString, ir.NodeBool:
		return u.literal(n)
	case ir.NodeBinary:
		return u.binary(n)
	case ir.NodeUnary:
		return u.unary(n)
	case ir.NodeReference:
		return u.reference(n)
	case ir.NodeNamedRange:
		return u.namedRange(n)
	case ir.NodeFunc:
		return u.call(n)
	case ir.NodeArray:
		return u.array(n)
	}
	return nil, u.malformed(n, "unknown node type %q", n.Type)
}

// compileArg compiles a call argument or array element. A nil node is an
// empty placeholder and evaluates to Blank.
func (u *unit) compileArg(n *ir.Node) (formula.Thunk, error) {
	if n == nil {
		return u.c.intern(value.Blank{}), nil
	}
	return u.compile(n)
}

func (u *unit) literal(n *ir.Node) (formula.Thunk, error) {
	var v value.Value
	switch n.Type {
	case ir.NodeString:
		switch s := n.Value.(type) {
		case string:
			v = value.Text(s)
		case nil:
			v = value.Text("")
		default:
			v = value.Text(fmt.Sprint(s))
		}
	case ir.NodeBool:
		b, ok := n.Value.(bool)
		if !ok {
			return nil, u.malformed(n, "bool literal holds %T", n.Value)
		}
		v = value.Bool(b)
	default:
		var ok bool
		if v, ok = numberLiteral(n.Value); !ok {
			return nil, u.malformed(n, "unsupported literal %T", n.Value)
		}
	}
	return u.c.intern(v), nil
}

// numberLiteral converts the payload of a value node. Decoders hand us
// float64 (JSON) or int (YAML); numeric strings are accepted too, and a nil
// payload is an empty argument.
func numberLiteral(raw any) (value.Value, bool) {
	switch x := raw.(type) {
	case string:
		if f, ok := value.ParseNumber(strings.TrimSpace(x)); ok {
			return value.Number(f), true
		}
		return value.FromRaw(x), true
	case nil, float64, float32, int, int64, int32, uint64, bool:
		return value.FromRaw(x), true
	}
	return nil, false
}

func (u *unit) reference(n *ir.Node) (formula.Thunk, error) {
	if n.Address == "" {
		return nil, u.malformed(n, "reference without an address")
	}
	all, err := address.Parse(n.Address)
	if err != nil {
		return u.warn(ErrBadAddress, value.CodeRef, n, err.Error()), nil
	}
	ranges := make([]*value.RangeRef, 0, len(all))
	for _, b := range all {
		if b.Sheet == "" {
			b.Sheet = n.Worksheet
		}
		if b.Sheet == "" {
			b.Sheet = u.scope.Sheet()
		}
		r, ok := u.bind(b)
		if !ok {
			return u.warn(ErrUnknownSheet, value.CodeRef, n, fmt.Sprintf("no worksheet named %q", b.Sheet)), nil
		}
		ranges = append(ranges, r)
	}
	var v value.Value = ranges[0]
	if len(ranges) > 1 {
		v = &value.MultiRangeRef{Ranges: ranges}
	}
	return func(*formula.Context) value.Value { return v }, nil
}

// bind resolves qualified bounds to a range and records them as a reference.
func (u *unit) bind(b address.Bounds) (*value.RangeRef, bool) {
	g, ok := u.scope.Grid(b.Sheet)
	if !ok {
		return nil, false
	}
	u.refs = append(u.refs, b)
	return value.NewRange(g, b.StartRow, b.StartCol, b.EndRow, b.EndCol), true
}

func (u *unit) namedRange(n *ir.Node) (formula.Thunk, error) {
	if n.Name == "" {
		return nil, u.malformed(n, "named range reference without a name")
	}
	b, ok := u.scope.Name(n.Name)
	if !ok {
		return u.warn(ErrUnresolvedName, value.CodeName, n, fmt.Sprintf("unresolved name %q", n.Name)), nil
	}
	if b.Sheet == "" {
		b.Sheet = u.scope.Sheet()
	}
	r, ok := u.bind(b)
	if !ok {
		return u.warn(ErrUnknownSheet, value.CodeRef, n, fmt.Sprintf("name %q points at missing worksheet %q", n.Name, b.Sheet)), nil
	}
	return func(*formula.Context) value.Value { return r }, nil
}

func (u *unit) call(n *ir.Node) (formula.Thunk, error) {
	if n.Name == "" {
		return nil, u.malformed(n, "function call without a name")
	}
	name := strings.ToUpper(n.Name)
	fn, ok := u.scope.Function(name)
	if !ok {
		fn, ok = u.c.lib.Lookup(name)
	}
	if !ok {
		msg := fmt.Sprintf("unknown function %s", name)
		if s := Suggest(name, u.c.lib.Names()); s != "" {
			msg += fmt.Sprintf(" (did you mean %s?)", s)
		}
		return nil, &fatal{code: value.CodeCalc, diag: Diagnostic{Code: ErrUnknownFunction, Message: msg, Node: n.String()}}
	}

	args := make([]formula.Thunk, len(n.Args))
	for i, a := range n.Args {
		t, err := u.compileArg(a)
		if err != nil {
			return nil, err
		}
		args[i] = t
	}
	return func(ctx *formula.Context) value.Value {
		if v := fn(args, ctx); v != nil {
			return v
		}
		return value.Errorf(value.CodeValue, "%s returned no value", name)
	}, nil
}

func (u *unit) array(n *ir.Node) (formula.Thunk, error) {
	if len(n.Rows) == 0 {
		return nil, u.malformed(n, "empty array literal")
	}
	cells := make([][]formula.Thunk, len(n.Rows))
	constant := true
	for i, row := range n.Rows {
		cells[i] = make([]formula.Thunk, len(row))
		for j, el := range row {
			t, err := u.compileArg(el)
			if err != nil {
				return nil, err
			}
			cells[i][j] = t
			constant = constant && (el == nil || isLiteral(el))
		}
	}
	build := func(ctx *formula.Context) value.Value {
		rows := make([][]value.Value, len(cells))
		for i, row := range cells {
			rows[i] = make([]value.Value, len(row))
			for j, t := range row {
				v := t(ctx)
				if value.IsRef(v) {
					v = value.Scalar(v, ctx.Row, ctx.Col)
				}
				rows[i][j] = v
			}
		}
		return value.NewArray(rows)
	}
	if constant {
		v := build(nil)
		return func(*formula.Context) value.Value { return v }, nil
	}
	return build, nil
}

func isLiteral(n *ir.Node) bool {
	switch n.Type {
	case ir.NodeValue, ir.NodeString, ir.NodeBool:
		return true
	}
	return false
}
