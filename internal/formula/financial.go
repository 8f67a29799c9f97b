package formula

import (
	"math"

	"github.com/roach88/gridcalc/internal/value"
)

// Newton-Raphson settings shared by IRR and XIRR. Iteration stops once both
// the step and the residual fall below the tolerance.
const (
	NewtonTolerance = 1e-10
	NewtonMaxIter   = 100
	defaultGuess    = 0.1
)

func registerFinancial(l *Library) {
	l.Register("NPV", fnNPV)
	l.Register("IRR", fnIRR)
	l.Register("XNPV", fnXNPV)
	l.Register("XIRR", fnXIRR)
	l.Register("FORECAST", fnForecast)
	l.Register("PMT", fnPMT)
}

// Newton finds a root of f from guess. It reports the root, the number of
// iterations used, and whether it converged.
func Newton(f, df func(float64) float64, guess float64) (float64, int, bool) {
	x := guess
	for i := 1; i <= NewtonMaxIter; i++ {
		d := df(x)
		if d == 0 || math.IsNaN(d) {
			return x, i, false
		}
		next := x - f(x)/d
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return x, i, false
		}
		if math.Abs(next-x) < NewtonTolerance && math.Abs(f(next)) < NewtonTolerance {
			return next, i, true
		}
		x = next
	}
	return x, NewtonMaxIter, false
}

// NPV discounts values received at the end of periods 1..n.
func NPV(rate float64, values []float64) float64 {
	sum := 0.0
	for i, v := range values {
		sum += v / math.Pow(1+rate, float64(i+1))
	}
	return sum
}

// IRR returns the rate at which the cash flows (the first at period 0) have
// zero net present value. A series without both a positive and a negative
// flow fails with CodeCalc; a Newton failure is CodeNum.
func IRR(values []float64, guess float64) (float64, *value.Error) {
	if !mixedSigns(values) {
		return 0, value.NewError(value.CodeCalc, "IRR: cash flows need at least one positive and one negative value")
	}
	f := func(r float64) float64 {
		sum := 0.0
		for i, v := range values {
			sum += v / math.Pow(1+r, float64(i))
		}
		return sum
	}
	df := func(r float64) float64 {
		sum := 0.0
		for i, v := range values {
			sum -= float64(i) * v / math.Pow(1+r, float64(i+1))
		}
		return sum
	}
	rate, n, ok := Newton(f, df, guess)
	if !ok {
		return 0, value.Errorf(value.CodeNum, "IRR: no convergence after %d iterations", n)
	}
	return rate, nil
}

// XIRR is IRR over irregularly dated cash flows, with day offsets measured
// from the first date on a 365-day year.
func XIRR(values, dates []float64, guess float64) (float64, *value.Error) {
	if !mixedSigns(values) {
		return 0, value.NewError(value.CodeCalc, "XIRR: cash flows need at least one positive and one negative value")
	}
	f := func(r float64) float64 { return xnpv(r, values, dates) }
	df := func(r float64) float64 {
		sum := 0.0
		for i, v := range values {
			t := (dates[i] - dates[0]) / 365
			sum -= t * v / math.Pow(1+r, t+1)
		}
		return sum
	}
	rate, n, ok := Newton(f, df, guess)
	if !ok {
		return 0, value.Errorf(value.CodeNum, "XIRR: no convergence after %d iterations", n)
	}
	return rate, nil
}

func xnpv(rate float64, values, dates []float64) float64 {
	sum := 0.0
	for i, v := range values {
		sum += v / math.Pow(1+rate, (dates[i]-dates[0])/365)
	}
	return sum
}

// abort stops evaluation of the calling cell. The engine recovers it as a
// calculation error, so IFERROR cannot mask it.
func abort(err *value.Error) {
	panic(err)
}

func mixedSigns(values []float64) bool {
	var pos, neg bool
	for _, v := range values {
		pos = pos || v > 0
		neg = neg || v < 0
	}
	return pos && neg
}

func fnNPV(args []Thunk, ctx *Context) value.Value {
	if err := arity("NPV", args, 2, -1); err != nil {
		return err
	}
	rate, err := number(args, 0, ctx)
	if err != nil {
		return err
	}
	values, err := numbers(args[1:], ctx)
	if err != nil {
		return err
	}
	return result(NPV(rate, values))
}

func fnIRR(args []Thunk, ctx *Context) value.Value {
	if err := arity("IRR", args, 1, 2); err != nil {
		return err
	}
	values, err := numbers(args[:1], ctx)
	if err != nil {
		return err
	}
	guess, err := numberOr(args, 1, ctx, defaultGuess)
	if err != nil {
		return err
	}
	rate, err := IRR(values, guess)
	if err != nil {
		ctx.logger().Debug("irr failed", "cell", ctx.Address(), "flows", len(values), "err", err.Message)
		if err.Code == value.CodeCalc {
			abort(err)
		}
		return err
	}
	return result(rate)
}

// datedFlows reads a values range and a dates range of equal length.
func datedFlows(name string, args []Thunk, from int, ctx *Context) ([]float64, []float64, *value.Error) {
	values, err := numbers(args[from:from+1], ctx)
	if err != nil {
		return nil, nil, err
	}
	dates, err := numbers(args[from+1:from+2], ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(values) != len(dates) || len(values) == 0 {
		return nil, nil, value.Errorf(value.CodeNum, "%s: %d values but %d dates", name, len(values), len(dates))
	}
	for _, d := range dates[1:] {
		if d < dates[0] {
			return nil, nil, value.Errorf(value.CodeNum, "%s: dates precede the first date", name)
		}
	}
	return values, dates, nil
}

func fnXNPV(args []Thunk, ctx *Context) value.Value {
	if err := arity("XNPV", args, 3, 3); err != nil {
		return err
	}
	rate, err := number(args, 0, ctx)
	if err != nil {
		return err
	}
	values, dates, err := datedFlows("XNPV", args, 1, ctx)
	if err != nil {
		return err
	}
	return result(xnpv(rate, values, dates))
}

func fnXIRR(args []Thunk, ctx *Context) value.Value {
	if err := arity("XIRR", args, 2, 3); err != nil {
		return err
	}
	values, dates, err := datedFlows("XIRR", args, 0, ctx)
	if err != nil {
		return err
	}
	guess, err := numberOr(args, 2, ctx, defaultGuess)
	if err != nil {
		return err
	}
	rate, err := XIRR(values, dates, guess)
	if err != nil {
		ctx.logger().Debug("xirr failed", "cell", ctx.Address(), "flows", len(values), "err", err.Message)
		if err.Code == value.CodeCalc {
			abort(err)
		}
		return err
	}
	return result(rate)
}

// fnForecast predicts y at x by least-squares linear regression over the
// pairs where both known values are numbers.
func fnForecast(args []Thunk, ctx *Context) value.Value {
	if err := arity("FORECAST", args, 3, 3); err != nil {
		return err
	}
	x, err := number(args, 0, ctx)
	if err != nil {
		return err
	}
	ys, err := rangeArg(args, 1, ctx)
	if err != nil {
		return err
	}
	xs, err := rangeArg(args, 2, ctx)
	if err != nil {
		return err
	}
	if ys.Count() != xs.Count() {
		return value.NewError(value.CodeNA, "FORECAST: known ranges differ in size")
	}
	var px, py []float64
	for i := range ys.Count() {
		yv, xv := ys.Get(i), xs.Get(i)
		if e, ok := value.AsError(yv); ok {
			return e
		}
		if e, ok := value.AsError(xv); ok {
			return e
		}
		if yv.Kind() == value.KindNumber && xv.Kind() == value.KindNumber {
			py = append(py, yv.Num())
			px = append(px, xv.Num())
		}
	}
	if len(px) == 0 {
		return value.NewError(value.CodeDiv0, "FORECAST: no numeric pairs")
	}
	mx, my := mean(px), mean(py)
	var num, den float64
	for i := range px {
		num += (px[i] - mx) * (py[i] - my)
		den += (px[i] - mx) * (px[i] - mx)
	}
	if den == 0 {
		return value.NewError(value.CodeDiv0, "FORECAST: known x values have zero variance")
	}
	return result(my + num/den*(x-mx))
}

// fnPMT is the periodic payment of a loan. type 1 pays at period start.
func fnPMT(args []Thunk, ctx *Context) value.Value {
	if err := arity("PMT", args, 3, 5); err != nil {
		return err
	}
	rate, err := number(args, 0, ctx)
	if err != nil {
		return err
	}
	nper, err := number(args, 1, ctx)
	if err != nil {
		return err
	}
	pv, err := number(args, 2, ctx)
	if err != nil {
		return err
	}
	fv, err := numberOr(args, 3, ctx, 0)
	if err != nil {
		return err
	}
	typ, err := numberOr(args, 4, ctx, 0)
	if err != nil {
		return err
	}
	if nper == 0 {
		return value.NewError(value.CodeNum, "PMT: zero periods")
	}
	if rate == 0 {
		return result(-(pv + fv) / nper)
	}
	if typ != 0 {
		typ = 1
	}
	g := math.Pow(1+rate, nper)
	return result(-rate * (pv*g + fv) / ((1 + rate*typ) * (g - 1)))
}
