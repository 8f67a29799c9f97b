package formula

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridcalc/internal/value"
)

func TestIRR_Converges(t *testing.T) {
	flows := []float64{-100, 30, 30, 30, 30}

	rate, err := IRR(flows, defaultGuess)
	require.Nil(t, err)
	assert.InDelta(t, 0.0771, rate, 1e-3)

	// NPV discounts from period 1, so the period-0 flow is added back.
	residual := NPV(rate, flows[1:]) + flows[0]
	assert.InDelta(t, 0, residual, 1e-8)

	requireNumber(t, rate, call(t, "IRR", col(-100, 30, 30, 30, 30)))
}

func TestIRR_NeedsBothSigns(t *testing.T) {
	_, err := IRR([]float64{10, 20, 30}, defaultGuess)
	require.NotNil(t, err)
	assert.Equal(t, value.CodeCalc, err.Code)
	assert.Contains(t, err.Message, "positive and one negative")

	_, err = XIRR([]float64{-5, -6}, []float64{45292, 45300}, defaultGuess)
	require.NotNil(t, err)
	assert.Equal(t, value.CodeCalc, err.Code)

	// the cell fails outright instead of returning an error value
	e := requireAbort(t, func() { call(t, "IRR", col(-1, -2)) })
	assert.Contains(t, e.Message, "IRR")
	requireAbort(t, func() { call(t, "XIRR", col(10, 20), col(45292, 45300)) })
}

func requireAbort(t *testing.T, fn func()) (e *value.Error) {
	t.Helper()
	defer func() {
		r := recover()
		var ok bool
		e, ok = r.(*value.Error)
		require.True(t, ok, "want a *value.Error panic, got %v", r)
		require.Equal(t, value.CodeCalc, e.Code)
	}()
	fn()
	return nil
}

func TestNewton_BoundedIterations(t *testing.T) {
	root, n, ok := Newton(
		func(x float64) float64 { return x*x - 2 },
		func(x float64) float64 { return 2 * x },
		1,
	)
	require.True(t, ok)
	assert.InDelta(t, math.Sqrt2, root, 1e-12)
	assert.Less(t, n, 10)

	_, n, ok = Newton(
		func(x float64) float64 { return x*x + 1 },
		func(x float64) float64 { return 2 * x },
		0.5,
	)
	assert.False(t, ok)
	assert.LessOrEqual(t, n, NewtonMaxIter)
}

func TestNPV(t *testing.T) {
	requireNumber(t, 100/1.1+100/1.21, call(t, "NPV", lit(0.1), lit(100), lit(100)))
	requireNumber(t, 100/1.1+100/1.21, call(t, "NPV", lit(0.1), col(100, 100)))
}

func TestXNPVAndXIRR(t *testing.T) {
	values, dates := col(-1000, 1100), col(45292, 45292+365)

	requireNumber(t, 0, call(t, "XNPV", lit(0.1), values, dates))

	got := call(t, "XIRR", values, dates)
	require.Equal(t, value.KindNumber, got.Kind())
	assert.InDelta(t, 0.1, got.Num(), 1e-9)

	requireCode(t, value.CodeNum, call(t, "XIRR", col(-1000, 1100), col(45292)))
	requireCode(t, value.CodeNum, call(t, "XNPV", lit(0.1), values, col(45292, 45000)))
}

func TestForecast(t *testing.T) {
	requireNumber(t, 8, call(t, "FORECAST", lit(4), col(2, 4, 6), col(1, 2, 3)))
	requireCode(t, value.CodeDiv0, call(t, "FORECAST", lit(4), col(2, 4), col(1, 1)))
	requireCode(t, value.CodeNA, call(t, "FORECAST", lit(4), col(2, 4), col(1, 2, 3)))
}

func TestPMT(t *testing.T) {
	got := call(t, "PMT", lit(0.01), lit(12), lit(1000))
	require.Equal(t, value.KindNumber, got.Kind())
	assert.InDelta(t, -88.8488, got.Num(), 1e-4)

	requireNumber(t, -100, call(t, "PMT", lit(0), lit(10), lit(1000)))
	requireCode(t, value.CodeNum, call(t, "PMT", lit(0.01), lit(0), lit(1000)))
}
