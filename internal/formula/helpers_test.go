package formula

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/gridcalc/internal/address"
	"github.com/roach88/gridcalc/internal/testutil"
	"github.com/roach88/gridcalc/internal/value"
)

// grid is a map-backed value.Grid.
type grid struct {
	name  string
	cells map[[2]int]value.Value
}

// newGrid lays rows out from A1. nil entries stay blank.
func newGrid(rows ...[]any) *grid {
	g := &grid{name: "S", cells: map[[2]int]value.Value{}}
	for r, row := range rows {
		for c, v := range row {
			if v != nil {
				g.cells[[2]int{r + 1, c + 1}] = value.FromRaw(v)
			}
		}
	}
	return g
}

func (g *grid) Name() string { return g.name }

func (g *grid) Lookup(row, col int) value.Value {
	if v, ok := g.cells[[2]int{row, col}]; ok {
		return v
	}
	return value.Blank{}
}

func (g *grid) set(a string, v value.Value) {
	b, err := address.ParseOne(a)
	if err != nil {
		panic(err)
	}
	g.cells[[2]int{b.StartRow, b.StartCol}] = v
}

func lit(v any) Thunk {
	val := value.FromRaw(v)
	return func(*Context) value.Value { return val }
}

func errArg(code value.Code) Thunk {
	return func(*Context) value.Value { return value.Err(code) }
}

func ref(g *grid, a string) Thunk {
	b, err := address.ParseOne(a)
	if err != nil {
		panic(err)
	}
	r := value.NewRange(g, b.StartRow, b.StartCol, b.EndRow, b.EndCol)
	return func(*Context) value.Value { return r }
}

// arr builds an array literal argument.
func arr(rows ...[]any) Thunk {
	vals := make([][]value.Value, len(rows))
	for i, row := range rows {
		for _, v := range row {
			vals[i] = append(vals[i], value.FromRaw(v))
		}
	}
	r := value.NewArray(vals)
	return func(*Context) value.Value { return r }
}

func col(vs ...any) Thunk {
	rows := make([][]any, len(vs))
	for i, v := range vs {
		rows[i] = []any{v}
	}
	return arr(rows...)
}

// boom fails the test if evaluated.
func boom(t *testing.T) Thunk {
	return func(*Context) value.Value {
		t.Fatalf("argument evaluated but should not have been")
		return nil
	}
}

func testContext() *Context {
	return &Context{Sheet: "S", Row: 1, Col: 10, Clock: testutil.NewFixedClock(time.Time{})}
}

var testLibrary = NewLibrary()

// call invokes a library function and resolves a single-cell reference
// result so assertions see plain values.
func call(t *testing.T, name string, args ...Thunk) value.Value {
	t.Helper()
	fn, ok := testLibrary.Lookup(name)
	require.True(t, ok, "function %s not registered", name)
	return value.Resolve(fn(args, testContext()))
}

func requireCode(t *testing.T, code value.Code, v value.Value) {
	t.Helper()
	e, ok := value.AsError(v)
	require.True(t, ok, "want %s, got %v (%s)", code, v.Raw(), v.Kind())
	require.Equal(t, code, e.Code, "message: %s", e.Message)
}

func requireNumber(t *testing.T, want float64, v value.Value) {
	t.Helper()
	require.Equal(t, value.KindNumber, v.Kind(), "got %v", v.Raw())
	require.InDelta(t, want, v.Num(), 1e-9)
}
