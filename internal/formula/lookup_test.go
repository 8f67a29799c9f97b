package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridcalc/internal/value"
)

func TestVLookup_ApproximateBoundary(t *testing.T) {
	keys := col(1, 3, 7)

	// last value not exceeding the key
	requireNumber(t, 3, call(t, "VLOOKUP", lit(5), keys, lit(1), lit(true)))
	requireNumber(t, 3, call(t, "VLOOKUP", lit(5), keys, lit(1)))
	requireCode(t, value.CodeNA, call(t, "VLOOKUP", lit(5), keys, lit(1), lit(false)))

	// Every candidate is smaller than the key: the final row is returned.
	// This fallback is part of the approximate-match contract.
	requireNumber(t, 7, call(t, "VLOOKUP", lit(9), keys, lit(1), lit(true)))

	// key below the first row
	requireCode(t, value.CodeNA, call(t, "VLOOKUP", lit(0), keys, lit(1), lit(true)))
}

func TestVLookup_Table(t *testing.T) {
	g := newGrid([]any{1, "one"}, []any{3, "three"}, []any{7, "seven"})
	table := ref(g, "A1:B3")

	assert.Equal(t, value.Text("three"), call(t, "VLOOKUP", lit(3), table, lit(2), lit(false)))
	assert.Equal(t, value.Text("three"), call(t, "VLOOKUP", lit(4), table, lit(2)))
	requireCode(t, value.CodeRef, call(t, "VLOOKUP", lit(3), table, lit(3), lit(false)))
	requireCode(t, value.CodeValue, call(t, "VLOOKUP", lit(3), table, lit(0)))
	requireCode(t, value.CodeDiv0, call(t, "VLOOKUP", errArg(value.CodeDiv0), table, lit(2)))
}

func TestLookup_RangeErrors(t *testing.T) {
	withErr := col(1, "#DIV/0!", 7)

	// the key is found before the error, yet the error wins
	requireCode(t, value.CodeDiv0, call(t, "VLOOKUP", lit(1), withErr, lit(1), lit(false)))
	requireCode(t, value.CodeDiv0, call(t, "VLOOKUP", lit(7), withErr, lit(1)))
	requireCode(t, value.CodeDiv0, call(t, "HLOOKUP", lit(1), arr([]any{1, "#DIV/0!", 7}), lit(1)))
	requireCode(t, value.CodeDiv0, call(t, "MATCH", lit(1), withErr, lit(0)))
	requireCode(t, value.CodeDiv0, call(t, "MATCH", lit(7), withErr))
	requireCode(t, value.CodeDiv0, call(t, "XLOOKUP", lit(7), withErr, col("a", "b", "c")))
	requireCode(t, value.CodeDiv0, call(t, "XLOOKUP", lit(9), withErr, col("a", "b", "c"), lit("none")))
	requireCode(t, value.CodeDiv0, call(t, "XMATCH", lit(1), withErr))
}

func TestVLookup_TextKeys(t *testing.T) {
	g := newGrid([]any{"apple", 1}, []any{"Banana", 2}, []any{"cherry", 3})
	table := ref(g, "A1:B3")

	requireNumber(t, 2, call(t, "VLOOKUP", lit("banana"), table, lit(2), lit(false)))
	requireNumber(t, 3, call(t, "VLOOKUP", lit("ch*"), table, lit(2), lit(false)))
	requireNumber(t, 2, call(t, "VLOOKUP", lit("bz"), table, lit(2), lit(true)))
}

func TestHLookup(t *testing.T) {
	table := arr([]any{1, 3, 7}, []any{"a", "b", "c"})
	assert.Equal(t, value.Text("c"), call(t, "HLOOKUP", lit(7), table, lit(2), lit(false)))
	assert.Equal(t, value.Text("b"), call(t, "HLOOKUP", lit(5), table, lit(2)))
	requireCode(t, value.CodeNA, call(t, "HLOOKUP", lit(2), table, lit(2), lit(false)))
}

func TestMatch(t *testing.T) {
	requireNumber(t, 2, call(t, "MATCH", lit(3), col(1, 3, 7), lit(0)))
	requireNumber(t, 2, call(t, "MATCH", lit(6), col(1, 3, 7)))
	requireNumber(t, 1, call(t, "MATCH", lit(5), col(7, 3, 1), lit(-1)))
	requireNumber(t, 2, call(t, "MATCH", lit("b*"), col("apple", "banana"), lit(0)))
	requireCode(t, value.CodeNA, call(t, "MATCH", lit(4), col(1, 3, 7), lit(0)))
	requireCode(t, value.CodeNA, call(t, "MATCH", lit(1), arr([]any{1, 2}, []any{3, 4}), lit(0)))
}

func TestXLookup(t *testing.T) {
	keys, vals := col(1, 3, 7), col("a", "b", "c")

	assert.Equal(t, value.Text("b"), call(t, "XLOOKUP", lit(3), keys, vals))
	requireCode(t, value.CodeNA, call(t, "XLOOKUP", lit(4), keys, vals))
	assert.Equal(t, value.Text("none"), call(t, "XLOOKUP", lit(9), keys, vals, lit("none")))
	assert.Equal(t, value.Text("b"), call(t, "XLOOKUP", lit(4), keys, vals, nil, lit(-1)))
	assert.Equal(t, value.Text("c"), call(t, "XLOOKUP", lit(4), keys, vals, nil, lit(1)))
	assert.Equal(t, value.Text("a"), call(t, "XLOOKUP", lit("?"), col("x", "y"), col("a", "b"), nil, lit(2)))
	requireCode(t, value.CodeValue, call(t, "XLOOKUP", lit(1), keys, vals, nil, lit(5)))

	// search direction
	dup := col(1, 2, 1)
	labels := col("first", "middle", "last")
	assert.Equal(t, value.Text("first"), call(t, "XLOOKUP", lit(1), dup, labels))
	assert.Equal(t, value.Text("last"), call(t, "XLOOKUP", lit(1), dup, labels, nil, lit(0), lit(-1)))
}

func TestXLookup_ReturnsRow(t *testing.T) {
	table := arr([]any{"x", 1, 2}, []any{"y", 3, 4})
	keys := col("x", "y")
	fn, _ := testLibrary.Lookup("XLOOKUP")
	got := fn([]Thunk{lit("y"), keys, table}, testContext())

	r, ok := got.(*value.RangeRef)
	require.True(t, ok)
	assert.Equal(t, 1, r.Height())
	assert.Equal(t, 3, r.Width())
	assert.Equal(t, value.Number(4), r.GetAt(0, 2))
}

func TestXMatch(t *testing.T) {
	requireNumber(t, 3, call(t, "XMATCH", lit(7), col(1, 3, 7)))
	requireNumber(t, 3, call(t, "XMATCH", lit(6), col(1, 3, 7), lit(1)))
	requireNumber(t, 2, call(t, "XMATCH", lit(6), col(1, 3, 7), lit(-1)))
	requireCode(t, value.CodeNA, call(t, "XMATCH", lit(8), col(1, 3, 7)))
}

func TestIndex(t *testing.T) {
	g := newGrid([]any{1, "one"}, []any{3, "three"}, []any{7, "seven"})
	table := ref(g, "A1:B3")

	assert.Equal(t, value.Text("three"), call(t, "INDEX", table, lit(2), lit(2)))
	requireNumber(t, 7, call(t, "INDEX", col(1, 3, 7), lit(3)))
	requireNumber(t, 3, call(t, "INDEX", arr([]any{1, 3, 7}), lit(2)))
	requireCode(t, value.CodeRef, call(t, "INDEX", table, lit(4), lit(1)))

	fn, _ := testLibrary.Lookup("INDEX")
	whole := fn([]Thunk{table, lit(0), lit(2)}, testContext())
	r, ok := whole.(*value.RangeRef)
	require.True(t, ok)
	assert.Equal(t, 3, r.Height())
	assert.Equal(t, value.Text("seven"), r.Get(2))
}

func TestOffset(t *testing.T) {
	g := newGrid([]any{1, "one"}, []any{3, "three"}, []any{7, "seven"})

	assert.Equal(t, value.Text("three"), call(t, "OFFSET", ref(g, "A1"), lit(1), lit(1)))
	requireCode(t, value.CodeRef, call(t, "OFFSET", ref(g, "A1"), lit(-1), lit(0)))

	fn, _ := testLibrary.Lookup("OFFSET")
	block := fn([]Thunk{ref(g, "A1"), lit(1), lit(0), lit(2), lit(2)}, testContext())
	r, ok := block.(*value.RangeRef)
	require.True(t, ok)
	sr, sc, er, ec := r.Bounds()
	assert.Equal(t, []int{2, 1, 3, 2}, []int{sr, sc, er, ec})
	requireNumber(t, 10, call(t, "SUM", func(*Context) value.Value { return block }))
}
