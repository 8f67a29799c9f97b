package value

import (
	"cmp"
	"iter"
	"strings"

	"golang.org/x/text/cases"
)

// IsRef reports whether v refers to cells rather than holding a value.
func IsRef(v Value) bool {
	switch v.Kind() {
	case KindCellRef, KindRange, KindMultiRange:
		return true
	}
	return false
}

// Resolve dereferences single-cell references. Multi-cell ranges are
// returned unchanged.
func Resolve(v Value) Value {
	switch x := v.(type) {
	case *CellRef:
		return x.Deref()
	case *RangeRef:
		if x.Count() == 1 {
			return x.GetAt(0, 0)
		}
	case *MultiRangeRef:
		if len(x.Ranges) == 1 && x.Ranges[0].Count() == 1 {
			return x.Ranges[0].GetAt(0, 0)
		}
	}
	return v
}

// Scalar collapses v to a single value as seen from the cell at (row, col).
func Scalar(v Value, row, col int) Value {
	switch x := v.(type) {
	case *CellRef:
		return x.Deref()
	case *RangeRef:
		return x.Collapse(row, col)
	case *MultiRangeRef:
		if len(x.Ranges) == 1 {
			return x.Ranges[0].Collapse(row, col)
		}
		return Errorf(CodeValue, "multi-range used as a scalar")
	}
	return v
}

// Each walks every value v stands for: the cells of a range, the single
// referenced cell, or v itself for a plain value.
func Each(v Value) iter.Seq[Value] {
	switch x := v.(type) {
	case *RangeRef:
		return x.Each()
	case *MultiRangeRef:
		return x.Each()
	case *CellRef:
		return func(yield func(Value) bool) { yield(x.Deref()) }
	}
	return func(yield func(Value) bool) { yield(v) }
}

// AsRange returns v as a range when it refers to cells. Plain values become a
// 1x1 constant array so lookup functions can treat every argument alike.
func AsRange(v Value) (*RangeRef, bool) {
	switch x := v.(type) {
	case *RangeRef:
		return x, true
	case *CellRef:
		return x.Range(), true
	case *MultiRangeRef:
		if len(x.Ranges) == 1 {
			return x.Ranges[0], true
		}
		return nil, false
	case *Error:
		return nil, false
	}
	return NewArray([][]Value{{v}}), true
}

// Fold returns the case-folded form used for case-insensitive matching.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// typeRank orders kinds the way sorted lookups do: numbers, then text, then
// logicals. Blanks sort before everything.
func typeRank(v Value) (int, float64, string) {
	switch v.Kind() {
	case KindBlank:
		return 0, 0, ""
	case KindNumber:
		return 1, v.Num(), ""
	case KindText:
		if f, ok := ParseNumber(strings.TrimSpace(v.Text())); ok {
			return 1, f, ""
		}
		return 2, 0, Fold(v.Text())
	case KindBool:
		return 3, v.Num(), ""
	}
	return 4, 0, v.Text()
}

// Compare orders two resolved values. Numeric text compares as a number;
// text compares case-insensitively.
func Compare(a, b Value) int {
	ra, na, sa := typeRank(Resolve(a))
	rb, nb, sb := typeRank(Resolve(b))
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	if ra == 2 || ra == 4 {
		return strings.Compare(sa, sb)
	}
	return cmp.Compare(na, nb)
}

// Equal reports whether two values are equal under Compare.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// SameType reports whether a and b fall in the same sort class, which is
// what approximate lookups require before comparing.
func SameType(a, b Value) bool {
	ra, _, _ := typeRank(Resolve(a))
	rb, _, _ := typeRank(Resolve(b))
	return ra == rb
}
