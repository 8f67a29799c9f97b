package formula

import (
	"math"
	"strconv"

	"github.com/roach88/gridcalc/internal/value"
)

func registerMath(l *Library) {
	l.Register("ABS", unary("ABS", math.Abs))
	l.Register("INT", unary("INT", math.Floor))
	l.Register("EXP", unary("EXP", math.Exp))
	l.Register("SQRT", domain("SQRT", math.Sqrt, func(x float64) bool { return x >= 0 }))
	l.Register("LN", domain("LN", math.Log, func(x float64) bool { return x > 0 }))
	l.Register("ROUND", rounder("ROUND", RoundHalfAway))
	l.Register("ROUNDUP", rounder("ROUNDUP", roundAway))
	l.Register("ROUNDDOWN", rounder("ROUNDDOWN", roundToward))
	l.Register("MOD", fnMod)
	l.Register("POWER", fnPower)
}

func unary(name string, f func(float64) float64) Func {
	return domain(name, f, nil)
}

// domain wraps a one-argument function, returning #NUM! outside its domain.
func domain(name string, f func(float64) float64, ok func(float64) bool) Func {
	return func(args []Thunk, ctx *Context) value.Value {
		if err := arity(name, args, 1, 1); err != nil {
			return err
		}
		x, err := number(args, 0, ctx)
		if err != nil {
			return err
		}
		if ok != nil && !ok(x) {
			return value.Errorf(value.CodeNum, "%s: %s outside the domain", name, value.FormatNumber(x))
		}
		return result(f(x))
	}
}

func rounder(name string, round func(float64, int) float64) Func {
	return func(args []Thunk, ctx *Context) value.Value {
		if err := arity(name, args, 1, 2); err != nil {
			return err
		}
		x, err := number(args, 0, ctx)
		if err != nil {
			return err
		}
		digits, err := integerOr(args, 1, ctx, 0)
		if err != nil {
			return err
		}
		return result(round(x, digits))
	}
}

// denoise drops binary representation noise by rounding to 15 significant
// digits, so 2.675*100 is 267.5 rather than 267.49999999999997.
func denoise(f float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'g', 15, 64), 64)
	if err != nil {
		return f
	}
	return r
}

// RoundHalfAway rounds to the given number of decimal digits, halves away
// from zero. Negative digits round to the left of the decimal point.
func RoundHalfAway(f float64, digits int) float64 {
	return scaled(f, digits, math.Round)
}

func roundAway(f float64, digits int) float64 {
	return scaled(f, digits, func(x float64) float64 {
		if x < 0 {
			return -math.Ceil(-x)
		}
		return math.Ceil(x)
	})
}

func roundToward(f float64, digits int) float64 {
	return scaled(f, digits, math.Trunc)
}

func scaled(f float64, digits int, round func(float64) float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	p := math.Pow(10, float64(digits))
	return round(denoise(f*p)) / p
}

func fnMod(args []Thunk, ctx *Context) value.Value {
	if err := arity("MOD", args, 2, 2); err != nil {
		return err
	}
	n, err := number(args, 0, ctx)
	if err != nil {
		return err
	}
	d, err := number(args, 1, ctx)
	if err != nil {
		return err
	}
	if d == 0 {
		return value.NewError(value.CodeDiv0, "MOD by zero")
	}
	return result(n - d*math.Floor(n/d))
}

func fnPower(args []Thunk, ctx *Context) value.Value {
	if err := arity("POWER", args, 2, 2); err != nil {
		return err
	}
	x, err := number(args, 0, ctx)
	if err != nil {
		return err
	}
	y, err := number(args, 1, ctx)
	if err != nil {
		return err
	}
	if x == 0 && y < 0 {
		return value.NewError(value.CodeDiv0, "POWER: zero to a negative power")
	}
	return result(math.Pow(x, y))
}
