package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridcalc/internal/address"
	"github.com/roach88/gridcalc/internal/formula"
	"github.com/roach88/gridcalc/internal/ir"
	"github.com/roach88/gridcalc/internal/value"
)

type sheet struct {
	name  string
	cells map[[2]int]value.Value
}

func newSheet(name string) *sheet {
	return &sheet{name: name, cells: map[[2]int]value.Value{}}
}

func (s *sheet) Name() string { return s.name }

func (s *sheet) Lookup(row, col int) value.Value {
	if v, ok := s.cells[[2]int{row, col}]; ok {
		return v
	}
	return value.Blank{}
}

func (s *sheet) set(a string, raw any) *sheet {
	b, err := address.ParseOne(a)
	if err != nil {
		panic(err)
	}
	s.cells[[2]int{b.StartRow, b.StartCol}] = value.FromRaw(raw)
	return s
}

type testScope struct {
	home   string
	sheets map[string]*sheet
	names  map[string]address.Bounds
	funcs  map[string]formula.Func
}

func newScope(sheets ...*sheet) *testScope {
	s := &testScope{home: sheets[0].name, sheets: map[string]*sheet{}, names: map[string]address.Bounds{}, funcs: map[string]formula.Func{}}
	for _, sh := range sheets {
		s.sheets[sh.name] = sh
	}
	return s
}

func (s *testScope) Sheet() string { return s.home }

func (s *testScope) Grid(name string) (value.Grid, bool) {
	sh, ok := s.sheets[name]
	return sh, ok
}

func (s *testScope) Name(name string) (address.Bounds, bool) {
	b, ok := s.names[name]
	return b, ok
}

func (s *testScope) Function(name string) (formula.Func, bool) {
	fn, ok := s.funcs[name]
	return fn, ok
}

// panicScope blows up while references are being resolved.
type panicScope struct{ *testScope }

func (panicScope) Grid(string) (value.Grid, bool) { panic("grid lookup failed") }

func eval(p Program, row, col int) value.Value {
	return value.Resolve(p.Eval(&formula.Context{Sheet: "S", Row: row, Col: col}))
}

func requireCode(t *testing.T, code value.Code, v value.Value) {
	t.Helper()
	e, ok := value.AsError(v)
	require.True(t, ok, "want %s, got %v", code, v.Raw())
	require.Equal(t, code, e.Code, e.Message)
}

func newCompiler() *Compiler {
	return New(formula.NewLibrary())
}

func TestCompile_LiteralsAreInterned(t *testing.T) {
	c := newCompiler()
	scope := newScope(newSheet("S"))

	a := c.Compile(ir.Binary(ir.OpAdd, ir.Num(5), ir.Num(5)), scope)
	b := c.Compile(ir.Call("CONCAT", ir.Str("x"), ir.Num(5), ir.Str("x")), scope)
	require.False(t, a.Failed())
	require.False(t, b.Failed())

	assert.Equal(t, 2, c.Interned())
	assert.Equal(t, value.Number(10), eval(a, 1, 1))
	assert.Equal(t, value.Text("x5x"), eval(b, 1, 1))

	c.Constant(value.Number(5))
	assert.Equal(t, 2, c.Interned())
}

func TestCompile_Literals(t *testing.T) {
	c := newCompiler()
	scope := newScope(newSheet("S"))

	tests := []struct {
		node *ir.Node
		want value.Value
	}{
		{ir.Num(1.5), value.Number(1.5)},
		{&ir.Node{Type: ir.NodeValue, Value: 3}, value.Number(3)},
		{&ir.Node{Type: ir.NodeValue, Value: "42"}, value.Number(42)},
		{&ir.Node{Type: ir.NodeValue}, value.Blank{}},
		{ir.Str("hi"), value.Text("hi")},
		{ir.Boolean(true), value.Bool(true)},
	}
	for _, tt := range tests {
		p := c.Compile(tt.node, scope)
		require.False(t, p.Failed(), tt.node.String())
		assert.Equal(t, tt.want, eval(p, 1, 1), tt.node.String())
	}

	p := c.Compile(&ir.Node{Type: ir.NodeBool, Value: "yes"}, scope)
	require.True(t, p.Failed())
	assert.Equal(t, ErrMalformedNode, p.Errors[0].Code)
}

func TestCompile_References(t *testing.T) {
	c := newCompiler()
	s := newSheet("S").set("A1", 1).set("A2", 2).set("A3", 3)
	other := newSheet("Other Sheet").set("B2", 10)
	scope := newScope(s, other)

	p := c.Compile(ir.Call("SUM", ir.Ref("A1:A3"), ir.Ref("'Other Sheet'!B2")), scope)
	require.False(t, p.Failed())
	assert.Equal(t, value.Number(16), eval(p, 1, 5))
	require.Len(t, p.Refs, 2)
	assert.Equal(t, address.Bounds{Sheet: "S", StartRow: 1, StartCol: 1, EndRow: 3, EndCol: 1}, p.Refs[0])
	assert.Equal(t, "Other Sheet", p.Refs[1].Sheet)

	// the worksheet qualifier applies to unqualified addresses
	q := c.Compile(&ir.Node{Type: ir.NodeReference, Address: "B2", Worksheet: "Other Sheet"}, scope)
	assert.Equal(t, value.Number(10), eval(q, 1, 1))

	// references are seen live, not copied at compile time
	s.set("A1", 100)
	assert.Equal(t, value.Number(115), eval(p, 1, 5))
}

func TestCompile_RangeCollapse(t *testing.T) {
	c := newCompiler()
	s := newSheet("S")
	for row := 1; row <= 10; row++ {
		s.cells[[2]int{row, 1}] = value.Number(float64(row * 10))
	}
	scope := newScope(s)

	// =A1:A10 in B5 sees A5
	p := c.Compile(ir.Ref("A1:A10"), scope)
	got := p.Eval(&formula.Context{Sheet: "S", Row: 5, Col: 2})
	assert.Equal(t, value.Number(50), value.Scalar(got, 5, 2))

	// operators collapse their operands
	sum := c.Compile(ir.Binary(ir.OpAdd, ir.Ref("A1:A10"), ir.Num(1)), scope)
	assert.Equal(t, value.Number(51), eval(sum, 5, 2))

	// outside the range's rows there is nothing to intersect
	requireCode(t, value.CodeValue, eval(sum, 11, 2))
}

func TestCompile_ReferenceWarnings(t *testing.T) {
	c := newCompiler()
	scope := newScope(newSheet("S"))

	p := c.Compile(ir.Binary(ir.OpAdd, ir.Ref("Missing!A1"), ir.Num(1)), scope)
	require.False(t, p.Failed())
	require.Len(t, p.Warnings, 1)
	assert.Equal(t, ErrUnknownSheet, p.Warnings[0].Code)
	requireCode(t, value.CodeRef, eval(p, 1, 1))
	assert.Empty(t, p.Refs)

	p = c.Compile(ir.Ref("A1:"), scope)
	require.Len(t, p.Warnings, 1)
	assert.Equal(t, ErrBadAddress, p.Warnings[0].Code)
	requireCode(t, value.CodeRef, eval(p, 1, 1))
}

func TestCompile_NamedRanges(t *testing.T) {
	c := newCompiler()
	s := newSheet("S").set("C3", 0.05)
	scope := newScope(s)
	scope.names["Rate"] = address.Bounds{Sheet: "S", StartRow: 3, StartCol: 3, EndRow: 3, EndCol: 3}

	p := c.Compile(ir.Binary(ir.OpMul, ir.NamedRef("Rate"), ir.Num(100)), scope)
	require.False(t, p.Failed())
	assert.Equal(t, value.Number(5), eval(p, 1, 1))
	assert.Equal(t, []address.Bounds{scope.names["Rate"]}, p.Refs)

	p = c.Compile(ir.Binary(ir.OpMul, ir.NamedRef("Nope"), ir.Num(100)), scope)
	require.False(t, p.Failed())
	require.Len(t, p.Warnings, 1)
	assert.Equal(t, ErrUnresolvedName, p.Warnings[0].Code)
	requireCode(t, value.CodeName, eval(p, 1, 1))
}

func TestCompile_UnknownFunction(t *testing.T) {
	c := newCompiler()
	scope := newScope(newSheet("S"))

	p := c.Compile(ir.Binary(ir.OpAdd, ir.Call("summ", ir.Ref("A1:A3")), ir.Num(1)), scope)
	require.True(t, p.Failed())
	assert.Equal(t, ErrUnknownFunction, p.Errors[0].Code)
	assert.Contains(t, p.Errors[0].Message, "did you mean SUM?")
	assert.Empty(t, p.Refs)
	requireCode(t, value.CodeCalc, eval(p, 1, 1))
}

func TestCompile_LocalFunctionsWin(t *testing.T) {
	c := newCompiler()
	scope := newScope(newSheet("S"))
	scope.funcs["SUM"] = func([]formula.Thunk, *formula.Context) value.Value { return value.Number(42) }
	scope.funcs["NIL"] = func([]formula.Thunk, *formula.Context) value.Value { return nil }

	assert.Equal(t, value.Number(42), eval(c.Compile(ir.Call("sum", ir.Num(1)), scope), 1, 1))
	requireCode(t, value.CodeValue, eval(c.Compile(ir.Call("NIL"), scope), 1, 1))
}

func TestCompile_EmptyArguments(t *testing.T) {
	c := newCompiler()
	scope := newScope(newSheet("S"))

	// IF(FALSE,1,) has a nil third argument
	p := c.Compile(ir.Call("IF", ir.Boolean(false), ir.Num(1), nil), scope)
	require.False(t, p.Failed())
	assert.Equal(t, value.Blank{}, eval(p, 1, 1))
}

func TestCompile_Malformed(t *testing.T) {
	c := newCompiler()
	scope := newScope(newSheet("S"))

	nodes := []*ir.Node{
		nil,
		{Type: "bogus"},
		{Type: ir.NodeBinary, Op: ir.OpAdd, Left: ir.Num(1)},
		{Type: ir.NodeBinary, Op: "mod", Left: ir.Num(1), Right: ir.Num(2)},
		{Type: ir.NodeUnary, Op: "not", Operand: ir.Num(1)},
		{Type: ir.NodeReference},
		{Type: ir.NodeFunc},
		{Type: ir.NodeArray},
		ir.Call("SUM", &ir.Node{Type: "bogus"}),
	}
	for _, n := range nodes {
		p := c.Compile(n, scope)
		require.True(t, p.Failed(), n.String())
		assert.Equal(t, ErrMalformedNode, p.Errors[0].Code, n.String())
		requireCode(t, value.CodeRef, eval(p, 1, 1))
	}
}

func TestCompile_RecoversPanics(t *testing.T) {
	c := newCompiler()
	scope := panicScope{newScope(newSheet("S"))}

	p := c.Compile(ir.Ref("A1"), scope)
	require.True(t, p.Failed())
	assert.Equal(t, ErrCompilePanic, p.Errors[0].Code)
	assert.Contains(t, p.Errors[0].Message, "grid lookup failed")
	requireCode(t, value.CodeRef, eval(p, 1, 1))
}

func TestCompile_Arrays(t *testing.T) {
	c := newCompiler()
	scope := newScope(newSheet("S").set("A1", 9))

	keys := ir.Array([]*ir.Node{ir.Num(1)}, []*ir.Node{ir.Num(3)}, []*ir.Node{ir.Num(7)})
	approx := c.Compile(ir.Call("VLOOKUP", ir.Num(5), keys, ir.Num(1), ir.Boolean(true)), scope)
	exact := c.Compile(ir.Call("VLOOKUP", ir.Num(5), keys, ir.Num(1), ir.Boolean(false)), scope)
	assert.Equal(t, value.Number(3), eval(approx, 1, 1))
	requireCode(t, value.CodeNA, eval(exact, 1, 1))

	// non-constant elements are evaluated on every call
	mixed := c.Compile(ir.Call("SUM", ir.Array([]*ir.Node{ir.Unary(ir.OpNeg, ir.Num(1)), ir.Ref("A1")})), scope)
	assert.Equal(t, value.Number(8), eval(mixed, 1, 1))
	assert.Equal(t, []address.Bounds{address.Cell("S", 1, 1)}, mixed.Refs)
}

func TestCompile_ErrorsPropagateLeftFirst(t *testing.T) {
	c := newCompiler()
	s := newSheet("S")
	s.cells[[2]int{1, 1}] = value.Err(value.CodeDiv0)
	s.cells[[2]int{1, 2}] = value.Err(value.CodeNA)
	scope := newScope(s)

	requireCode(t, value.CodeDiv0, eval(c.Compile(ir.Binary(ir.OpAdd, ir.Ref("A1"), ir.Ref("B1")), scope), 1, 3))
	requireCode(t, value.CodeNA, eval(c.Compile(ir.Binary(ir.OpCat, ir.Str("x"), ir.Ref("B1")), scope), 1, 3))
	requireCode(t, value.CodeNA, eval(c.Compile(ir.Unary(ir.OpNeg, ir.Ref("B1")), scope), 1, 3))

	guarded := c.Compile(ir.Call("IFERROR", ir.Binary(ir.OpAdd, ir.Ref("A1"), ir.Num(1)), ir.Num(-1)), scope)
	assert.Equal(t, value.Number(-1), eval(guarded, 1, 3))
}
