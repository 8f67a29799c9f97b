package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridcalc/internal/address"
	"github.com/roach88/gridcalc/internal/compiler"
	"github.com/roach88/gridcalc/internal/formula"
	"github.com/roach88/gridcalc/internal/ir"
	"github.com/roach88/gridcalc/internal/testutil"
	"github.com/roach88/gridcalc/internal/value"
)

func val(row, col int, v any) ir.CellSpec {
	return ir.CellSpec{Row: row, Col: col, V: v}
}

func fx(row, col int, f string) ir.CellSpec {
	return ir.CellSpec{Row: row, Col: col, F: f}
}

func oneSheet(cells ...ir.CellSpec) *ir.Workbook {
	return &ir.Workbook{
		Name:       "test",
		Worksheets: map[string]*ir.Worksheet{"S": {Cells: cells}},
	}
}

func testOptions(opts ...Option) []Option {
	base := []Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithClock(testutil.NewFixedClock(time.Time{})),
	}
	return append(base, opts...)
}

// buildCalculated builds desc and runs the first pass.
func buildCalculated(t *testing.T, desc *ir.Workbook, opts ...Option) *Workbook {
	t.Helper()
	wb, err := Build(desc, testOptions(opts...)...)
	require.NoError(t, err)
	require.NoError(t, wb.ForceCalculate())
	return wb
}

func get(t *testing.T, wb *Workbook, ref string) value.Value {
	t.Helper()
	all, err := wb.Resolve(ref)
	require.NoError(t, err)
	b := all[0]
	return wb.Value(b.Sheet, b.StartRow, b.StartCol)
}

func set(t *testing.T, wb *Workbook, ref string, v value.Value) {
	t.Helper()
	b, err := address.ParseOne(ref)
	require.NoError(t, err)
	if b.Sheet == "" {
		b.Sheet = "S"
	}
	require.NoError(t, wb.SetValue(b.Sheet, b.StartRow, b.StartCol, v))
}

func requireCode(t *testing.T, code value.Code, v value.Value) *value.Error {
	t.Helper()
	e, ok := value.AsError(v)
	require.True(t, ok, "want %s, got %v", code, v.Raw())
	require.Equal(t, code, e.Code, e.Message)
	return e
}

// probe counts evaluations per cell.
type probe map[string]int

func (p probe) fn(args []formula.Thunk, ctx *formula.Context) value.Value {
	p[ctx.Address()]++
	if len(args) > 0 {
		return value.Scalar(args[0](ctx), ctx.Row, ctx.Col)
	}
	return value.Number(float64(ctx.Row))
}

func TestBuild_Calculates(t *testing.T) {
	wb := buildCalculated(t, oneSheet(
		val(1, 1, 1),
		val(2, 1, 2),
		fx(3, 1, "=A1+A2"),
		fx(1, 2, "=SUM(A1:A3)"),
		val(2, 2, "hello"),
		fx(3, 2, `=UPPER(B2)&"!"`),
	))

	assert.Equal(t, value.Number(3), get(t, wb, "A3"))
	assert.Equal(t, value.Number(6), get(t, wb, "B1"))
	assert.Equal(t, value.Text("HELLO!"), get(t, wb, "B3"))
	assert.Equal(t, value.Blank{}, get(t, wb, "Z100"))
	assert.False(t, wb.Busy())
	assert.Equal(t, 6, wb.LastPass().Calculated)
}

func TestBuild_Rejects(t *testing.T) {
	_, err := Build(nil)
	assert.Error(t, err)

	_, err = Build(&ir.Workbook{Name: "empty"})
	assert.Error(t, err)
}

func TestUninitializedBeforeFirstPass(t *testing.T) {
	wb, err := Build(oneSheet(val(1, 1, 1), fx(1, 2, "=A1*2")), testOptions()...)
	require.NoError(t, err)

	requireCode(t, value.CodeUninitialized, get(t, wb, "B1"))
	require.NoError(t, wb.ForceCalculate())
	assert.Equal(t, value.Number(2), get(t, wb, "B1"))
}

func TestDirtyPropagation(t *testing.T) {
	wb := buildCalculated(t, oneSheet(
		val(1, 1, 1),
		fx(1, 2, "=A1*2"),
		fx(1, 3, "=B1+1"),
		fx(1, 4, "=SUM(B1:C1)"),
		val(2, 1, 100),
		fx(2, 2, "=A2"),
	))
	require.Equal(t, value.Number(5), get(t, wb, "D1"))

	set(t, wb, "A1", value.Number(5))
	for _, a := range []string{"A1", "B1", "C1", "D1"} {
		assert.True(t, wb.Cell("S", mustCell(t, a).StartRow, mustCell(t, a).StartCol).Dirty(), a)
	}
	assert.False(t, wb.Cell("S", 2, 2).Dirty(), "unrelated cells stay clean")

	require.NoError(t, wb.ForceCalculate())
	assert.Equal(t, value.Number(10), get(t, wb, "B1"))
	assert.Equal(t, value.Number(11), get(t, wb, "C1"))
	assert.Equal(t, value.Number(21), get(t, wb, "D1"))
	assert.Equal(t, 4, wb.LastPass().Calculated)
	assert.Zero(t, wb.LastPass().Forced)
}

func mustCell(t *testing.T, a string) address.Bounds {
	t.Helper()
	b, err := address.ParseOne(a)
	require.NoError(t, err)
	return b
}

func TestIdempotence(t *testing.T) {
	p := probe{}
	wb := buildCalculated(t, oneSheet(
		val(1, 1, 1),
		fx(1, 2, "=PROBE(A1)"),
		fx(1, 3, "=PROBE(B1)"),
	), WithFunctions(map[string]formula.Func{"PROBE": p.fn}))
	require.Equal(t, probe{"S!B1": 1, "S!C1": 1}, p)
	before := wb.LastPass()

	require.NoError(t, wb.ForceCalculate())
	assert.True(t, wb.Tick(context.Background()))
	require.NoError(t, wb.Run(context.Background()))

	assert.Equal(t, probe{"S!B1": 1, "S!C1": 1}, p, "a clean workbook evaluates nothing")
	assert.Equal(t, before, wb.LastPass(), "no pass runs without edits")
}

func TestErrorPropagation(t *testing.T) {
	wb := buildCalculated(t, oneSheet(
		fx(1, 1, "=1/0"),
		fx(1, 2, "=A1+1"),
		fx(1, 3, "=IFERROR(B1,-1)"),
	))

	e := requireCode(t, value.CodeDiv0, get(t, wb, "B1"))
	assert.Equal(t, "S!A1", e.Origin, "errors keep the cell they came from")
	assert.Equal(t, value.Number(-1), get(t, wb, "C1"))
	assert.Empty(t, wb.CalculationErrors(), "error values are not calculation failures")
}

func TestLookupBoundary(t *testing.T) {
	wb := buildCalculated(t, oneSheet(
		fx(1, 1, "=VLOOKUP(5,{1;3;7},1,TRUE)"),
		fx(1, 2, "=VLOOKUP(5,{1;3;7},1,FALSE)"),
		fx(1, 3, "=VLOOKUP(9,{1;3;7},1,TRUE)"),
		fx(1, 4, "=VLOOKUP(0,{1;3;7},1,TRUE)"),
	))

	assert.Equal(t, value.Number(3), get(t, wb, "A1"))
	requireCode(t, value.CodeNA, get(t, wb, "B1"))
	// every key smaller than the search value: the final row
	assert.Equal(t, value.Number(7), get(t, wb, "C1"))
	requireCode(t, value.CodeNA, get(t, wb, "D1"))
}

func TestRangeCollapse(t *testing.T) {
	cells := []ir.CellSpec{fx(5, 2, "=A1:A10"), fx(11, 2, "=A1:A10"), fx(5, 3, "=B5*2")}
	for row := 1; row <= 10; row++ {
		cells = append(cells, val(row, 1, row*10))
	}
	wb := buildCalculated(t, oneSheet(cells...))

	assert.Equal(t, value.Number(50), get(t, wb, "B5"))
	assert.Equal(t, value.Number(100), get(t, wb, "C5"))
	requireCode(t, value.CodeValue, get(t, wb, "B11"))

	set(t, wb, "A5", value.Number(7))
	require.NoError(t, wb.ForceCalculate())
	assert.Equal(t, value.Number(14), get(t, wb, "C5"))
}

func TestSchedulerFairness(t *testing.T) {
	const n = 60
	p := probe{}
	var cells []ir.CellSpec
	for row := 1; row <= n; row++ {
		cells = append(cells, fx(row, 1, "=PROBE()"))
	}
	clock := testutil.NewStepClock(time.Time{}, time.Millisecond)
	wb, err := Build(oneSheet(cells...),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithClock(clock),
		WithSliceBudget(5*time.Millisecond),
		WithFunctions(map[string]formula.Func{"PROBE": p.fn}))
	require.NoError(t, err)
	require.Equal(t, n, wb.Queued())

	ticks := 0
	for !wb.Tick(context.Background()) {
		ticks++
		require.Less(t, ticks, n, "every tick makes progress")
		for addr, count := range p {
			require.Equal(t, 1, count, "%s calculated twice", addr)
		}
	}

	assert.Greater(t, ticks, 1, "work spans several slices")
	assert.Len(t, p, n)
	for row := 1; row <= n; row++ {
		assert.Equal(t, 1, p[address.Format("S", row, 1)])
		assert.Equal(t, value.Number(float64(row)), wb.Value("S", row, 1))
	}
	assert.Equal(t, n, wb.LastPass().Calculated)
}

func TestReferenceCycle(t *testing.T) {
	p := probe{}
	wb := buildCalculated(t, oneSheet(
		fx(1, 1, "=PROBE(B1)+1"),
		fx(1, 2, "=PROBE(A1)+1"),
		fx(1, 3, "=PROBE(B1)*10"),
	), WithFunctions(map[string]formula.Func{"PROBE": p.fn}))

	assert.Equal(t, probe{"S!A1": 1, "S!B1": 1, "S!C1": 1}, p, "each cell calculated exactly once")
	for _, c := range []*Cell{wb.Cell("S", 1, 1), wb.Cell("S", 1, 2), wb.Cell("S", 1, 3)} {
		assert.False(t, c.Dirty(), c.Address())
	}
	assert.GreaterOrEqual(t, wb.LastPass().Forced, 1)

	var cycles []Diagnostic
	for _, d := range wb.Warnings() {
		if d.Code == compiler.ErrReferenceCycle {
			cycles = append(cycles, d)
		}
	}
	require.Len(t, cycles, 1)
	assert.Equal(t, "S!A1", cycles[0].Address)
	assert.Contains(t, cycles[0].Message, "S!A1 -> S!B1 -> S!A1")
}

func TestSelfReference(t *testing.T) {
	wb := buildCalculated(t, oneSheet(fx(1, 1, "=A1+1"), fx(1, 2, "=A1")))

	require.NotEmpty(t, wb.Warnings())
	assert.Equal(t, "cell references itself: S!A1", wb.Warnings()[0].Message)
	assert.False(t, wb.Cell("S", 1, 1).Dirty())
	assert.False(t, wb.Cell("S", 1, 2).Dirty())
}

// stuckWorkbook has D1 reading a root (A1) and a member of the B1/C1 cycle.
func stuckWorkbook() *ir.Workbook {
	return oneSheet(
		val(1, 1, 1),
		fx(1, 2, "=C1+1"),
		fx(1, 3, "=B1+1"),
		fx(1, 4, "=A1+B1"),
	)
}

func TestStuckThreshold_Default(t *testing.T) {
	wb := buildCalculated(t, stuckWorkbook())

	pass := wb.LastPass()
	assert.Equal(t, 4, pass.Calculated)
	assert.Equal(t, 1, pass.Forced, "only the cycle entry is forced")
	// D1 waited for B1 even though B1 sits in a cycle
	b1, d1 := wb.Value("S", 1, 2), wb.Value("S", 1, 4)
	assert.Equal(t, b1.Kind(), d1.Kind())
}

func TestStuckThreshold_Early(t *testing.T) {
	wb := buildCalculated(t, stuckWorkbook(), WithStuckThreshold(1))

	pass := wb.LastPass()
	assert.Equal(t, 4, pass.Calculated)
	assert.Equal(t, 2, pass.Forced, "D1 is forced before B1 is ready")
	// D1 ran while B1 was still uninitialized and is not revisited
	requireCode(t, value.CodeUninitialized, wb.Value("S", 1, 4))
}

func TestCalculationErrors(t *testing.T) {
	boom := func([]formula.Thunk, *formula.Context) value.Value { panic("kaboom") }
	wb := buildCalculated(t, oneSheet(
		val(1, 1, 2),
		fx(1, 2, "=BOOM(A1)"),
		fx(1, 3, "=B1+1"),
		fx(1, 4, "=A1*3"),
	), WithFunctions(map[string]formula.Func{"BOOM": boom}))

	e := requireCode(t, value.CodeCalc, get(t, wb, "B1"))
	assert.Equal(t, "kaboom", e.Message)
	requireCode(t, value.CodeCalc, get(t, wb, "C1"))
	assert.Equal(t, value.Number(6), get(t, wb, "D1"), "the pass continues past a failure")

	errs := wb.CalculationErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, KindCalculation, errs[0].Kind)
	assert.Equal(t, "S!B1", errs[0].Address)
	assert.Equal(t, 1, wb.LastPass().Errors)
	assert.Empty(t, wb.BuildErrors())
}

func TestCalculationErrors_CashFlowSigns(t *testing.T) {
	wb := buildCalculated(t, oneSheet(
		val(1, 1, 10),
		val(2, 1, 20),
		fx(1, 2, "=IRR(A1:A2)"),
		fx(2, 2, "=IFERROR(XIRR(A1:A2, A1:A2), 0)"),
		fx(3, 2, "=IRR(A1:A2, 0.2)+1"),
	))

	e := requireCode(t, value.CodeCalc, get(t, wb, "B1"))
	assert.Contains(t, e.Message, "positive and one negative")
	requireCode(t, value.CodeCalc, get(t, wb, "B2"))
	requireCode(t, value.CodeCalc, get(t, wb, "B3"))

	errs := wb.CalculationErrors()
	require.Len(t, errs, 3)
	addrs := []string{errs[0].Address, errs[1].Address, errs[2].Address}
	assert.ElementsMatch(t, []string{"S!B1", "S!B2", "S!B3"}, addrs)
	for _, d := range errs {
		assert.Equal(t, value.CodeCalc.String(), d.Code)
	}

	set(t, wb, "A1", value.Number(-10))
	require.NoError(t, wb.ForceCalculate())
	assert.Equal(t, value.KindNumber, get(t, wb, "B1").Kind())
}

func TestBuildErrors(t *testing.T) {
	wb := buildCalculated(t, oneSheet(
		val(1, 1, 1),
		fx(1, 2, "=SUMM(A1)"),
		fx(1, 3, "=1+"),
		fx(1, 4, "=B1"),
	))

	requireCode(t, value.CodeCalc, get(t, wb, "B1"))
	requireCode(t, value.CodeRef, get(t, wb, "C1"))
	requireCode(t, value.CodeCalc, get(t, wb, "D1"))

	errs := wb.BuildErrors()
	require.Len(t, errs, 2)
	assert.Equal(t, compiler.ErrUnknownFunction, errs[0].Code)
	assert.Contains(t, errs[0].Message, "did you mean SUM?")
	assert.Equal(t, compiler.ErrMalformedNode, errs[1].Code)
	require.NotNil(t, wb.Cell("S", 1, 2).ErrorStatus())
	assert.Equal(t, "S!B1", wb.Cell("S", 1, 2).ErrorStatus().Address)
	assert.Empty(t, wb.Cell("S", 1, 2).Parents(), "a failed formula reads nothing")
}

func TestForceCalculate_Timeout(t *testing.T) {
	var cells []ir.CellSpec
	for row := 1; row <= 20; row++ {
		cells = append(cells, val(row, 1, row))
	}
	wb, err := Build(oneSheet(cells...),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithClock(testutil.NewStepClock(time.Time{}, time.Second)),
		WithForceTimeout(3*time.Second))
	require.NoError(t, err)

	err = wb.ForceCalculate()
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.True(t, errors.Is(err, ErrCalculationTimeout))
	assert.True(t, wb.Busy(), "the remaining work stays queued")
}

func TestRun_Cancelled(t *testing.T) {
	wb, err := Build(oneSheet(val(1, 1, 1), fx(1, 2, "=A1")), testOptions()...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = wb.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCancelled(err))
	assert.False(t, IsTimeout(err))
	var ce *CalcError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeCancelled, ce.Code)
	assert.True(t, wb.Busy())

	require.NoError(t, wb.Run(context.Background()))
	assert.Equal(t, value.Number(1), get(t, wb, "B1"))
}

func TestCallbacks(t *testing.T) {
	ids := testutil.NewSequentialIDs("pass")
	wb, err := Build(oneSheet(val(1, 1, 1), fx(1, 2, "=A1+1")), testOptions(WithPassIDs(ids.Next))...)
	require.NoError(t, err)

	var every, once []PassStats
	wb.OnCalculationDone(func(p PassStats) { every = append(every, p) })
	wb.OnNextCalculationDone(func(p PassStats) { once = append(once, p) })

	require.NoError(t, wb.ForceCalculate())
	set(t, wb, "A1", value.Number(2))
	require.NoError(t, wb.ForceCalculate())

	require.Len(t, every, 2)
	require.Len(t, once, 1)
	assert.Equal(t, "pass-000001", once[0].ID)
	assert.Equal(t, "pass-000002", every[1].ID)
	assert.Equal(t, int64(2), every[1].Seq)
	assert.Equal(t, 2, every[0].Calculated)
	assert.Equal(t, 2, every[1].Calculated)
}

func TestTodayReadsClock(t *testing.T) {
	wb := buildCalculated(t, oneSheet(fx(1, 1, "=TODAY()"), fx(1, 2, "=YEAR(A1)")))

	assert.Equal(t, value.Number(45292), get(t, wb, "A1"))
	assert.Equal(t, value.Number(2024), get(t, wb, "B1"))
}
