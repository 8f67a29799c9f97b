package formula

import (
	"cmp"
	"slices"

	"github.com/roach88/gridcalc/internal/value"
)

func registerRank(l *Library) {
	l.Register("LARGE", fnLarge)
	l.Register("SMALL", fnSmall)
	l.Register("RANK", fnRank)
}

// sortedNumbers materializes the numeric cells of the first argument and
// sorts the copy, descending when desc is set.
func sortedNumbers(args []Thunk, ctx *Context, desc bool) ([]float64, *value.Error) {
	nums, err := numbers(args[:1], ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(nums, func(a, b float64) int {
		if desc {
			return cmp.Compare(b, a)
		}
		return cmp.Compare(a, b)
	})
	return nums, nil
}

func kth(name string, args []Thunk, ctx *Context, desc bool) value.Value {
	if err := arity(name, args, 2, 2); err != nil {
		return err
	}
	nums, err := sortedNumbers(args, ctx, desc)
	if err != nil {
		return err
	}
	k, err := integer(args, 1, ctx)
	if err != nil {
		return err
	}
	if k < 1 || k > len(nums) {
		return value.Errorf(value.CodeNum, "%s: k=%d outside 1..%d", name, k, len(nums))
	}
	return value.Number(nums[k-1])
}

func fnLarge(args []Thunk, ctx *Context) value.Value { return kth("LARGE", args, ctx, true) }
func fnSmall(args []Thunk, ctx *Context) value.Value { return kth("SMALL", args, ctx, false) }

// fnRank ranks a number within a list; order 0 (default) ranks the largest
// as 1. Ties share the best rank.
func fnRank(args []Thunk, ctx *Context) value.Value {
	if err := arity("RANK", args, 2, 3); err != nil {
		return err
	}
	x, err := number(args, 0, ctx)
	if err != nil {
		return err
	}
	order, err := integerOr(args, 2, ctx, 0)
	if err != nil {
		return err
	}
	nums, err := sortedNumbers(args[1:], ctx, order == 0)
	if err != nil {
		return err
	}
	for i, n := range nums {
		if n == x {
			return value.Number(i + 1)
		}
	}
	return value.Errorf(value.CodeNA, "RANK: %s not in list", value.FormatNumber(x))
}
