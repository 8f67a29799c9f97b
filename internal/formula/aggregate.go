package formula

import (
	"math"
	"slices"

	"github.com/roach88/gridcalc/internal/value"
)

func registerAggregate(l *Library) {
	l.Register("SUM", fnSum)
	l.Register("PRODUCT", fnProduct)
	l.Register("AVERAGE", fnAverage)
	l.Register("COUNT", fnCount)
	l.Register("COUNTA", fnCountA)
	l.Register("MAX", fnMax)
	l.Register("MIN", fnMin)
	l.Register("STDEVP", fnStdevP)
	l.Register("STDEV", fnStdev)
	l.Register("MEDIAN", fnMedian)
	l.Register("SUMPRODUCT", fnSumProduct)
}

func fnSum(args []Thunk, ctx *Context) value.Value {
	nums, err := numbers(args, ctx)
	if err != nil {
		return err
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	return result(sum)
}

func fnProduct(args []Thunk, ctx *Context) value.Value {
	nums, err := numbers(args, ctx)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return value.Number(0)
	}
	p := 1.0
	for _, n := range nums {
		p *= n
	}
	return result(p)
}

func fnAverage(args []Thunk, ctx *Context) value.Value {
	nums, err := numbers(args, ctx)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return value.NewError(value.CodeDiv0, "AVERAGE of no numbers")
	}
	return result(mean(nums))
}

func fnCount(args []Thunk, ctx *Context) value.Value {
	n := 0
	for v, fromRef := range cells(args, ctx) {
		if e, ok := value.AsError(v); ok {
			return e
		}
		switch {
		case v.Kind() == value.KindNumber:
			n++
		case !fromRef && v.Kind() != value.KindBlank && !math.IsNaN(v.Num()):
			n++
		}
	}
	return value.Number(n)
}

func fnCountA(args []Thunk, ctx *Context) value.Value {
	n := 0
	for v := range cells(args, ctx) {
		if e, ok := value.AsError(v); ok {
			return e
		}
		if v.Kind() != value.KindBlank {
			n++
		}
	}
	return value.Number(n)
}

func fnMax(args []Thunk, ctx *Context) value.Value {
	nums, err := numbers(args, ctx)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return value.Number(0)
	}
	return value.Number(slices.Max(nums))
}

func fnMin(args []Thunk, ctx *Context) value.Value {
	nums, err := numbers(args, ctx)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return value.Number(0)
	}
	return value.Number(slices.Min(nums))
}

func fnStdevP(args []Thunk, ctx *Context) value.Value {
	nums, err := numbers(args, ctx)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return value.NewError(value.CodeDiv0, "STDEVP of no numbers")
	}
	return result(math.Sqrt(sumSquares(nums) / float64(len(nums))))
}

func fnStdev(args []Thunk, ctx *Context) value.Value {
	nums, err := numbers(args, ctx)
	if err != nil {
		return err
	}
	if len(nums) < 2 {
		return value.NewError(value.CodeDiv0, "STDEV needs at least two numbers")
	}
	return result(math.Sqrt(sumSquares(nums) / float64(len(nums)-1)))
}

func fnMedian(args []Thunk, ctx *Context) value.Value {
	nums, err := numbers(args, ctx)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return value.NewError(value.CodeNum, "MEDIAN of no numbers")
	}
	slices.Sort(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return value.Number(nums[mid])
	}
	return value.Number((nums[mid-1] + nums[mid]) / 2)
}

// fnSumProduct multiplies equally sized ranges cell by cell. Cells that are
// not numbers count as zero.
func fnSumProduct(args []Thunk, ctx *Context) value.Value {
	if err := arity("SUMPRODUCT", args, 1, -1); err != nil {
		return err
	}
	ranges := make([]*value.RangeRef, len(args))
	for i := range args {
		r, err := rangeArg(args, i, ctx)
		if err != nil {
			return err
		}
		if i > 0 && (r.Height() != ranges[0].Height() || r.Width() != ranges[0].Width()) {
			return value.Errorf(value.CodeValue, "SUMPRODUCT: range %d is %dx%d, want %dx%d",
				i+1, r.Height(), r.Width(), ranges[0].Height(), ranges[0].Width())
		}
		ranges[i] = r
	}
	sum := 0.0
	for k := range ranges[0].Count() {
		p := 1.0
		for _, r := range ranges {
			v := r.Get(k)
			if e, ok := value.AsError(v); ok {
				return e
			}
			if v.Kind() != value.KindNumber {
				p = 0
				continue
			}
			p *= v.Num()
		}
		sum += p
	}
	return result(sum)
}

func mean(nums []float64) float64 {
	s := 0.0
	for _, n := range nums {
		s += n
	}
	return s / float64(len(nums))
}

// sumSquares returns the sum of squared deviations from the mean.
func sumSquares(nums []float64) float64 {
	m := mean(nums)
	s := 0.0
	for _, n := range nums {
		d := n - m
		s += d * d
	}
	return s
}
