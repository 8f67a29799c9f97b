package formula

import (
	"iter"
	"math"
	"strings"

	"github.com/roach88/gridcalc/internal/value"
)

// arity checks the argument count. max < 0 means unbounded.
func arity(name string, args []Thunk, min, max int) *value.Error {
	n := len(args)
	if n < min || (max >= 0 && n > max) {
		return value.Errorf(value.CodeValue, "%s: wrong number of arguments (%d)", name, n)
	}
	return nil
}

// arg evaluates the i-th argument without collapsing references. Missing
// arguments evaluate to Blank.
func arg(args []Thunk, i int, ctx *Context) value.Value {
	if i >= len(args) || args[i] == nil {
		return value.Blank{}
	}
	return args[i](ctx)
}

// scalar evaluates the i-th argument and collapses references as seen from
// the calling cell.
func scalar(args []Thunk, i int, ctx *Context) value.Value {
	return value.Scalar(arg(args, i, ctx), ctx.Row, ctx.Col)
}

// present reports whether the i-th argument was supplied and is not an
// empty placeholder such as the second argument of F(1,,3).
func present(args []Thunk, i int, ctx *Context) bool {
	if i >= len(args) || args[i] == nil {
		return false
	}
	return arg(args, i, ctx).Kind() != value.KindBlank
}

// toNumber coerces a resolved scalar. Errors propagate; text that is not
// numeric is #VALUE!.
func toNumber(v value.Value) (float64, *value.Error) {
	if e, ok := value.AsError(v); ok {
		return 0, e
	}
	f := v.Num()
	if math.IsNaN(f) {
		return 0, value.Errorf(value.CodeValue, "%q is not a number", v.Text())
	}
	return f, nil
}

func number(args []Thunk, i int, ctx *Context) (float64, *value.Error) {
	return toNumber(scalar(args, i, ctx))
}

// numberOr reads an optional numeric argument.
func numberOr(args []Thunk, i int, ctx *Context, def float64) (float64, *value.Error) {
	if !present(args, i, ctx) {
		return def, nil
	}
	return number(args, i, ctx)
}

// integer truncates a numeric argument toward zero.
func integer(args []Thunk, i int, ctx *Context) (int, *value.Error) {
	f, err := number(args, i, ctx)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func integerOr(args []Thunk, i int, ctx *Context, def int) (int, *value.Error) {
	if !present(args, i, ctx) {
		return def, nil
	}
	return integer(args, i, ctx)
}

func text(args []Thunk, i int, ctx *Context) (string, *value.Error) {
	v := scalar(args, i, ctx)
	if e, ok := value.AsError(v); ok {
		return "", e
	}
	return v.Text(), nil
}

func boolean(args []Thunk, i int, ctx *Context) (bool, *value.Error) {
	return toBool(scalar(args, i, ctx))
}

// toBool coerces a resolved scalar to a logical. Text must spell TRUE or
// FALSE or be numeric.
func toBool(v value.Value) (bool, *value.Error) {
	if e, ok := value.AsError(v); ok {
		return false, e
	}
	if v.Kind() == value.KindText {
		s := strings.TrimSpace(v.Text())
		_, numeric := value.ParseNumber(s)
		if !numeric && !strings.EqualFold(s, "TRUE") && !strings.EqualFold(s, "FALSE") {
			return false, value.Errorf(value.CodeValue, "%q is not a logical value", s)
		}
	}
	return v.Bool(), nil
}

// result turns a float into a number value, mapping NaN and infinities to
// #NUM!.
func result(f float64) value.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return value.Err(value.CodeNum)
	}
	return value.Number(f)
}

// cells walks every value an argument stands for, reporting whether the
// value came from a reference (where non-numeric cells are skipped) or was
// passed literally (where it must coerce).
func cells(args []Thunk, ctx *Context) iter.Seq2[value.Value, bool] {
	return func(yield func(value.Value, bool) bool) {
		for i := range args {
			v := arg(args, i, ctx)
			if value.IsRef(v) {
				for c := range value.Each(v) {
					if !yield(c, true) {
						return
					}
				}
				continue
			}
			if !yield(v, false) {
				return
			}
		}
	}
}

// numbers gathers the numeric inputs of an aggregate. Cells inside
// references count only when they hold numbers. Literal arguments are
// coerced, and literal blanks (empty placeholders) are skipped. The first
// error met, in a reference or not, is returned.
func numbers(args []Thunk, ctx *Context) ([]float64, *value.Error) {
	var out []float64
	for v, fromRef := range cells(args, ctx) {
		if e, ok := value.AsError(v); ok {
			return nil, e
		}
		if fromRef {
			if v.Kind() == value.KindNumber {
				out = append(out, v.Num())
			}
			continue
		}
		if v.Kind() == value.KindBlank {
			continue
		}
		f, err := toNumber(v)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// rangeArg evaluates an argument that must refer to cells or be an array.
func rangeArg(args []Thunk, i int, ctx *Context) (*value.RangeRef, *value.Error) {
	v := arg(args, i, ctx)
	if e, ok := value.AsError(v); ok {
		return nil, e
	}
	r, ok := value.AsRange(v)
	if !ok {
		return nil, value.Errorf(value.CodeValue, "argument %d is not a range", i+1)
	}
	return r, nil
}

// searchRange reads args[i] as a range that is searched or matched
// cell by cell. The first error among its cells is returned instead.
func searchRange(args []Thunk, i int, ctx *Context) (*value.RangeRef, *value.Error) {
	r, err := rangeArg(args, i, ctx)
	if err != nil {
		return nil, err
	}
	if e := firstError(r); e != nil {
		return nil, e
	}
	return r, nil
}

// firstError returns the first error value among the cells of r.
func firstError(r *value.RangeRef) *value.Error {
	for v := range r.Each() {
		if e, ok := value.AsError(v); ok {
			return e
		}
	}
	return nil
}
