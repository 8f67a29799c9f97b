package formula

import (
	"github.com/roach88/gridcalc/internal/value"
)

func registerLookup(l *Library) {
	l.Register("VLOOKUP", fnVLookup)
	l.Register("HLOOKUP", fnHLookup)
	l.Register("MATCH", fnMatch)
	l.Register("XLOOKUP", fnXLookup)
	l.Register("XMATCH", fnXMatch)
	l.Register("INDEX", fnIndex)
	l.Register("OFFSET", fnOffset)
}

// vector is a one-dimensional view over a row or a column.
type vector interface {
	Count() int
	Get(i int) value.Value
}

// exactIndex returns the first position equal to key, or -1. Text keys with
// wildcards match by pattern.
func exactIndex(vec vector, key value.Value) int {
	if key.Kind() == value.KindText {
		if re := wildcard(key.Text()); re != nil {
			for i := range vec.Count() {
				v := vec.Get(i)
				if v.Kind() == value.KindText && re.MatchString(v.Text()) {
					return i
				}
			}
			return -1
		}
	}
	for i := range vec.Count() {
		v := vec.Get(i)
		if value.SameType(v, key) && value.Equal(v, key) {
			return i
		}
	}
	return -1
}

// approxIndex implements sorted (approximate) matching over ascending data.
// It returns the last position whose value does not exceed key, scanning
// until the first larger value. When every comparable value is smaller the
// final one is returned. A key below the first value yields -1.
func approxIndex(vec vector, key value.Value) int {
	idx := -1
	for i := range vec.Count() {
		v := vec.Get(i)
		if !value.SameType(v, key) {
			continue
		}
		if value.Compare(v, key) > 0 {
			break
		}
		idx = i
	}
	return idx
}

// approxIndexDesc is approxIndex for descending data: the last position
// whose value is not below key.
func approxIndexDesc(vec vector, key value.Value) int {
	idx := -1
	for i := range vec.Count() {
		v := vec.Get(i)
		if !value.SameType(v, key) {
			continue
		}
		if value.Compare(v, key) < 0 {
			break
		}
		idx = i
	}
	return idx
}

func lookupKey(args []Thunk, ctx *Context) (value.Value, *value.Error) {
	key := scalar(args, 0, ctx)
	if e, ok := value.AsError(key); ok {
		return nil, e
	}
	return key, nil
}

func fnVLookup(args []Thunk, ctx *Context) value.Value {
	return tableLookup("VLOOKUP", args, ctx, true)
}

func fnHLookup(args []Thunk, ctx *Context) value.Value {
	return tableLookup("HLOOKUP", args, ctx, false)
}

// tableLookup searches the first column (vertical) or first row of a table
// and returns the cell at the requested offset of the matching line.
func tableLookup(name string, args []Thunk, ctx *Context, vertical bool) value.Value {
	if err := arity(name, args, 3, 4); err != nil {
		return err
	}
	key, err := lookupKey(args, ctx)
	if err != nil {
		return err
	}
	table, err := searchRange(args, 1, ctx)
	if err != nil {
		return err
	}
	offset, err := integer(args, 2, ctx)
	if err != nil {
		return err
	}
	approx := true
	if present(args, 3, ctx) {
		if approx, err = boolean(args, 3, ctx); err != nil {
			return err
		}
	}

	limit, keys := table.Width(), table.Column(0)
	if !vertical {
		limit, keys = table.Height(), table.Row(0)
	}
	switch {
	case offset < 1:
		return value.Errorf(value.CodeValue, "%s: index %d below 1", name, offset)
	case offset > limit:
		return value.Errorf(value.CodeRef, "%s: index %d beyond the table", name, offset)
	}

	var idx int
	if approx {
		idx = approxIndex(keys, key)
	} else {
		idx = exactIndex(keys, key)
	}
	if idx < 0 {
		return value.Errorf(value.CodeNA, "%s: %s not found", name, key.Text())
	}
	if vertical {
		return table.GetAt(idx, offset-1)
	}
	return table.GetAt(offset-1, idx)
}

func oneDimensional(r *value.RangeRef) bool {
	return r.Height() == 1 || r.Width() == 1
}

func fnMatch(args []Thunk, ctx *Context) value.Value {
	if err := arity("MATCH", args, 2, 3); err != nil {
		return err
	}
	key, err := lookupKey(args, ctx)
	if err != nil {
		return err
	}
	r, err := searchRange(args, 1, ctx)
	if err != nil {
		return err
	}
	if !oneDimensional(r) {
		return value.NewError(value.CodeNA, "MATCH: lookup range must be a single row or column")
	}
	mode, err := integerOr(args, 2, ctx, 1)
	if err != nil {
		return err
	}
	var idx int
	switch {
	case mode > 0:
		idx = approxIndex(r, key)
	case mode == 0:
		idx = exactIndex(r, key)
	default:
		idx = approxIndexDesc(r, key)
	}
	if idx < 0 {
		return value.Errorf(value.CodeNA, "MATCH: %s not found", key.Text())
	}
	return value.Number(idx + 1)
}

// XLOOKUP / XMATCH match modes.
const (
	matchExact        = 0
	matchExactOrLower = -1
	matchExactOrHigh  = 1
	matchWildcard     = 2
)

// xIndex runs an XLOOKUP-style search. searchMode 1 and 2 scan first to
// last, -1 and -2 last to first; binary modes are served by the same scan.
func xIndex(vec vector, key value.Value, matchMode, searchMode int) int {
	n := vec.Count()
	order := func(yield func(int) bool) {
		if searchMode < 0 {
			for i := n - 1; i >= 0; i-- {
				if !yield(i) {
					return
				}
			}
			return
		}
		for i := range n {
			if !yield(i) {
				return
			}
		}
	}

	var re interface{ MatchString(string) bool }
	if matchMode == matchWildcard && key.Kind() == value.KindText {
		if w := wildcard(key.Text()); w != nil {
			re = w
		}
	}

	best := -1
	for i := range order {
		v := vec.Get(i)
		if re != nil {
			if v.Kind() == value.KindText && re.MatchString(v.Text()) {
				return i
			}
			continue
		}
		if !value.SameType(v, key) {
			continue
		}
		c := value.Compare(v, key)
		if c == 0 {
			return i
		}
		switch matchMode {
		case matchExactOrLower:
			if c < 0 && (best < 0 || value.Compare(v, vec.Get(best)) > 0) {
				best = i
			}
		case matchExactOrHigh:
			if c > 0 && (best < 0 || value.Compare(v, vec.Get(best)) < 0) {
				best = i
			}
		}
	}
	return best
}

func xModes(args []Thunk, from int, ctx *Context) (matchMode, searchMode int, err *value.Error) {
	if matchMode, err = integerOr(args, from, ctx, matchExact); err != nil {
		return 0, 0, err
	}
	if searchMode, err = integerOr(args, from+1, ctx, 1); err != nil {
		return 0, 0, err
	}
	if matchMode < -1 || matchMode > 2 {
		return 0, 0, value.Errorf(value.CodeValue, "match mode %d", matchMode)
	}
	switch searchMode {
	case 1, -1, 2, -2:
	default:
		return 0, 0, value.Errorf(value.CodeValue, "search mode %d", searchMode)
	}
	return matchMode, searchMode, nil
}

func fnXLookup(args []Thunk, ctx *Context) value.Value {
	if err := arity("XLOOKUP", args, 3, 6); err != nil {
		return err
	}
	key, err := lookupKey(args, ctx)
	if err != nil {
		return err
	}
	lookup, err := searchRange(args, 1, ctx)
	if err != nil {
		return err
	}
	ret, err := rangeArg(args, 2, ctx)
	if err != nil {
		return err
	}
	if !oneDimensional(lookup) {
		return value.NewError(value.CodeValue, "XLOOKUP: lookup array must be a single row or column")
	}
	matchMode, searchMode, err := xModes(args, 4, ctx)
	if err != nil {
		return err
	}

	idx := xIndex(lookup, key, matchMode, searchMode)
	if idx < 0 {
		if present(args, 3, ctx) {
			return arg(args, 3, ctx)
		}
		return value.Errorf(value.CodeNA, "XLOOKUP: %s not found", key.Text())
	}

	vertical := lookup.Width() == 1 && lookup.Height() > 1
	if lookup.Count() == 1 {
		vertical = ret.Width() == 1 || ret.Height() != 1
	}
	if vertical {
		if idx >= ret.Height() {
			return value.Err(value.CodeRef)
		}
		return ret.Row(idx)
	}
	if idx >= ret.Width() {
		return value.Err(value.CodeRef)
	}
	return ret.Column(idx)
}

func fnXMatch(args []Thunk, ctx *Context) value.Value {
	if err := arity("XMATCH", args, 2, 4); err != nil {
		return err
	}
	key, err := lookupKey(args, ctx)
	if err != nil {
		return err
	}
	r, err := searchRange(args, 1, ctx)
	if err != nil {
		return err
	}
	if !oneDimensional(r) {
		return value.NewError(value.CodeValue, "XMATCH: lookup array must be a single row or column")
	}
	matchMode, searchMode, err := xModes(args, 2, ctx)
	if err != nil {
		return err
	}
	idx := xIndex(r, key, matchMode, searchMode)
	if idx < 0 {
		return value.Errorf(value.CodeNA, "XMATCH: %s not found", key.Text())
	}
	return value.Number(idx + 1)
}

// fnIndex returns a reference into the range. Row or column 0 selects the
// whole column or row.
func fnIndex(args []Thunk, ctx *Context) value.Value {
	if err := arity("INDEX", args, 2, 3); err != nil {
		return err
	}
	r, err := rangeArg(args, 0, ctx)
	if err != nil {
		return err
	}
	row, err := integer(args, 1, ctx)
	if err != nil {
		return err
	}
	col := 0
	if present(args, 2, ctx) {
		if col, err = integer(args, 2, ctx); err != nil {
			return err
		}
	} else if r.Height() == 1 {
		row, col = 1, row
	} else if r.Width() == 1 {
		col = 1
	}

	if row < 0 || col < 0 || row > r.Height() || col > r.Width() {
		return value.Errorf(value.CodeRef, "INDEX: (%d,%d) outside %dx%d", row, col, r.Height(), r.Width())
	}
	switch {
	case row == 0 && col == 0:
		return r
	case row == 0:
		return r.Column(col - 1)
	case col == 0:
		return r.Row(row - 1)
	}
	sub, _ := r.Sub(row-1, col-1, 1, 1)
	return sub
}

// fnOffset returns a reference shifted from a base reference. Targets are
// resolved at evaluation time, so they are not dependency-tracked.
func fnOffset(args []Thunk, ctx *Context) value.Value {
	if err := arity("OFFSET", args, 3, 5); err != nil {
		return err
	}
	base, err := rangeArg(args, 0, ctx)
	if err != nil {
		return err
	}
	rows, err := integer(args, 1, ctx)
	if err != nil {
		return err
	}
	cols, err := integer(args, 2, ctx)
	if err != nil {
		return err
	}
	h, err := integerOr(args, 3, ctx, base.Height())
	if err != nil {
		return err
	}
	w, err := integerOr(args, 4, ctx, base.Width())
	if err != nil {
		return err
	}
	sub, ok := base.Sub(rows, cols, h, w)
	if !ok {
		return value.Errorf(value.CodeRef, "OFFSET: target leaves the sheet")
	}
	return sub
}
