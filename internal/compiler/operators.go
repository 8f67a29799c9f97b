package compiler

import (
	"math"

	"github.com/roach88/gridcalc/internal/formula"
	"github.com/roach88/gridcalc/internal/ir"
	"github.com/roach88/gridcalc/internal/value"
)

// binaryFunc applies an operator to two resolved, non-error scalars.
type binaryFunc func(a, b value.Value) value.Value

var binaryOps = map[string]binaryFunc{
	ir.OpAdd: arithmetic(func(x, y float64) float64 { return x + y }),
	ir.OpSub: arithmetic(func(x, y float64) float64 { return x - y }),
	ir.OpMul: arithmetic(func(x, y float64) float64 { return x * y }),
	ir.OpDiv: divide,
	ir.OpExp: power,
	ir.OpEq:  func(a, b value.Value) value.Value { return value.Bool(textEqual(a, b)) },
	ir.OpNeq: func(a, b value.Value) value.Value { return value.Bool(!textEqual(a, b)) },
	ir.OpLt:  ordering(func(x, y float64) bool { return x < y }),
	ir.OpGt:  ordering(func(x, y float64) bool { return x > y }),
	ir.OpLte: ordering(func(x, y float64) bool { return x <= y }),
	ir.OpGte: ordering(func(x, y float64) bool { return x >= y }),
	ir.OpCat: func(a, b value.Value) value.Value { return value.Text(a.Text() + b.Text()) },
}

func (u *unit) binary(n *ir.Node) (formula.Thunk, error) {
	fn, ok := binaryOps[n.Op]
	if !ok {
		return nil, u.malformed(n, "unknown binary operator %q", n.Op)
	}
	if n.Left == nil || n.Right == nil {
		return nil, u.malformed(n, "binary %s needs two operands", n.Op)
	}
	left, err := u.compile(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := u.compile(n.Right)
	if err != nil {
		return nil, err
	}
	return func(ctx *formula.Context) value.Value {
		a := operand(left, ctx)
		if e, ok := value.AsError(a); ok {
			return e
		}
		b := operand(right, ctx)
		if e, ok := value.AsError(b); ok {
			return e
		}
		return fn(a, b)
	}, nil
}

func (u *unit) unary(n *ir.Node) (formula.Thunk, error) {
	var fn func(float64) float64
	switch n.Op {
	case ir.OpNeg:
		fn = func(x float64) float64 { return -x }
	case ir.OpPos:
		fn = func(x float64) float64 { return x }
	case ir.OpPercent:
		fn = func(x float64) float64 { return x / 100 }
	default:
		return nil, u.malformed(n, "unknown unary operator %q", n.Op)
	}
	if n.Operand == nil {
		return nil, u.malformed(n, "unary %s needs an operand", n.Op)
	}
	inner, err := u.compile(n.Operand)
	if err != nil {
		return nil, err
	}
	return func(ctx *formula.Context) value.Value {
		v := operand(inner, ctx)
		if e, ok := value.AsError(v); ok {
			return e
		}
		x, e := toNumber(v)
		if e != nil {
			return e
		}
		return value.Number(fn(x))
	}, nil
}

// operand evaluates an operator argument in scalar context, so ranges
// collapse by implicit intersection with the calling cell.
func operand(t formula.Thunk, ctx *formula.Context) value.Value {
	return value.Scalar(t(ctx), ctx.Row, ctx.Col)
}

func toNumber(v value.Value) (float64, *value.Error) {
	f := v.Num()
	if math.IsNaN(f) {
		return 0, value.Errorf(value.CodeValue, "%q is not a number", v.Text())
	}
	return f, nil
}

func arithmetic(op func(x, y float64) float64) binaryFunc {
	return func(a, b value.Value) value.Value {
		x, err := toNumber(a)
		if err != nil {
			return err
		}
		y, err := toNumber(b)
		if err != nil {
			return err
		}
		r := op(x, y)
		if math.IsInf(r, 0) || math.IsNaN(r) {
			return value.NewError(value.CodeNum, "numeric overflow")
		}
		return value.Number(r)
	}
}

func divide(a, b value.Value) value.Value {
	x, err := toNumber(a)
	if err != nil {
		return err
	}
	y, err := toNumber(b)
	if err != nil {
		return err
	}
	if y == 0 {
		return value.NewError(value.CodeDiv0, "division by zero")
	}
	return value.Number(x / y)
}

// power yields #VALUE! for results that are not finite, such as 0^-1 or
// (-8)^(1/3).
func power(a, b value.Value) value.Value {
	x, err := toNumber(a)
	if err != nil {
		return err
	}
	y, err := toNumber(b)
	if err != nil {
		return err
	}
	r := math.Pow(x, y)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return value.Errorf(value.CodeValue, "%s^%s is not a finite number", a.Text(), b.Text())
	}
	return value.Number(r)
}

// textEqual compares as text, ignoring case. Numbers compare by their
// general-format text, which rounds to 15 significant digits. A blank equals
// the empty value of the other side's kind.
func textEqual(a, b value.Value) bool {
	switch {
	case a.Kind() == value.KindBlank && b.Kind() == value.KindBlank:
		return true
	case a.Kind() == value.KindBlank:
		a = zeroLike(b)
	case b.Kind() == value.KindBlank:
		b = zeroLike(a)
	}
	return value.Fold(a.Text()) == value.Fold(b.Text())
}

func zeroLike(v value.Value) value.Value {
	switch v.Kind() {
	case value.KindNumber:
		return value.Number(0)
	case value.KindBool:
		return value.Bool(false)
	}
	return value.Text("")
}

// ordering coerces both sides to number. A side that is not numeric
// coerces to NaN, so every ordering against it is FALSE.
func ordering(test func(x, y float64) bool) binaryFunc {
	return func(a, b value.Value) value.Value {
		return value.Bool(test(a.Num(), b.Num()))
	}
}
