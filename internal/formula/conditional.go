package formula

import (
	"github.com/roach88/gridcalc/internal/value"
)

func registerConditional(l *Library) {
	l.Register("COUNTIF", fnCountIf)
	l.Register("COUNTIFS", fnCountIfs)
	l.Register("SUMIF", fnSumIf)
	l.Register("SUMIFS", fnSumIfs)
	l.Register("AVERAGEIF", fnAverageIf)
	l.Register("AVERAGEIFS", fnAverageIfs)
}

// criteriaMask evaluates (range, criterion) pairs starting at args[from] and
// returns which cells, in row-major order, satisfy every criterion. All
// ranges must share the first range's shape.
func criteriaMask(name string, args []Thunk, from int, ctx *Context) ([]bool, int, int, *value.Error) {
	if (len(args)-from) < 2 || (len(args)-from)%2 != 0 {
		return nil, 0, 0, value.Errorf(value.CodeValue, "%s: criteria must come in range/criterion pairs", name)
	}
	var mask []bool
	var h, w int
	for i := from; i < len(args); i += 2 {
		r, err := searchRange(args, i, ctx)
		if err != nil {
			return nil, 0, 0, err
		}
		crit := scalar(args, i+1, ctx)
		if mask == nil {
			h, w = r.Height(), r.Width()
			mask = make([]bool, r.Count())
			for k := range mask {
				mask[k] = true
			}
		} else if r.Height() != h || r.Width() != w {
			return nil, 0, 0, value.Errorf(value.CodeValue, "%s: criteria range %d has a different shape", name, (i-from)/2+1)
		}
		pred := CompileCriteria(crit)
		k := 0
		for v := range r.Each() {
			if mask[k] && !pred(v) {
				mask[k] = false
			}
			k++
		}
	}
	return mask, h, w, nil
}

// aggregateMasked sums the numeric cells of target selected by mask. The
// target is resized to the mask's shape from its top-left corner.
func aggregateMasked(target *value.RangeRef, mask []bool, h, w int) (sum float64, n int, err *value.Error) {
	sized, ok := target.Sub(0, 0, h, w)
	if !ok {
		return 0, 0, value.Err(value.CodeRef)
	}
	k := 0
	for v := range sized.Each() {
		if mask[k] {
			if e, isErr := value.AsError(v); isErr {
				return 0, 0, e
			}
			if v.Kind() == value.KindNumber {
				sum += v.Num()
				n++
			}
		}
		k++
	}
	return sum, n, nil
}

func countMask(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}

func fnCountIf(args []Thunk, ctx *Context) value.Value {
	if err := arity("COUNTIF", args, 2, 2); err != nil {
		return err
	}
	mask, _, _, err := criteriaMask("COUNTIF", args, 0, ctx)
	if err != nil {
		return err
	}
	return value.Number(countMask(mask))
}

func fnCountIfs(args []Thunk, ctx *Context) value.Value {
	mask, _, _, err := criteriaMask("COUNTIFS", args, 0, ctx)
	if err != nil {
		return err
	}
	return value.Number(countMask(mask))
}

func fnSumIf(args []Thunk, ctx *Context) value.Value {
	if err := arity("SUMIF", args, 2, 3); err != nil {
		return err
	}
	mask, h, w, err := criteriaMask("SUMIF", args[:2], 0, ctx)
	if err != nil {
		return err
	}
	target, err := optionalTarget(args, 2, 0, ctx)
	if err != nil {
		return err
	}
	sum, _, err := aggregateMasked(target, mask, h, w)
	if err != nil {
		return err
	}
	return result(sum)
}

func fnSumIfs(args []Thunk, ctx *Context) value.Value {
	if err := arity("SUMIFS", args, 3, -1); err != nil {
		return err
	}
	mask, h, w, err := criteriaMask("SUMIFS", args, 1, ctx)
	if err != nil {
		return err
	}
	target, err := searchRange(args, 0, ctx)
	if err != nil {
		return err
	}
	sum, _, err := aggregateMasked(target, mask, h, w)
	if err != nil {
		return err
	}
	return result(sum)
}

func fnAverageIf(args []Thunk, ctx *Context) value.Value {
	if err := arity("AVERAGEIF", args, 2, 3); err != nil {
		return err
	}
	mask, h, w, err := criteriaMask("AVERAGEIF", args[:2], 0, ctx)
	if err != nil {
		return err
	}
	target, err := optionalTarget(args, 2, 0, ctx)
	if err != nil {
		return err
	}
	sum, n, err := aggregateMasked(target, mask, h, w)
	if err != nil {
		return err
	}
	if n == 0 {
		return value.NewError(value.CodeDiv0, "AVERAGEIF matched no numbers")
	}
	return result(sum / float64(n))
}

func fnAverageIfs(args []Thunk, ctx *Context) value.Value {
	if err := arity("AVERAGEIFS", args, 3, -1); err != nil {
		return err
	}
	mask, h, w, err := criteriaMask("AVERAGEIFS", args, 1, ctx)
	if err != nil {
		return err
	}
	target, err := searchRange(args, 0, ctx)
	if err != nil {
		return err
	}
	sum, n, err := aggregateMasked(target, mask, h, w)
	if err != nil {
		return err
	}
	if n == 0 {
		return value.NewError(value.CodeDiv0, "AVERAGEIFS matched no numbers")
	}
	return result(sum / float64(n))
}

// optionalTarget reads args[i] as a range, falling back to args[fallback].
func optionalTarget(args []Thunk, i, fallback int, ctx *Context) (*value.RangeRef, *value.Error) {
	if present(args, i, ctx) {
		return searchRange(args, i, ctx)
	}
	return searchRange(args, fallback, ctx)
}
