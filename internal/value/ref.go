package value

import (
	"iter"
	"math"
)

// Grid is the cell storage a reference points into. Worksheets implement it;
// so does ArrayGrid for constant array literals. Rows and columns are 1-based.
type Grid interface {
	Name() string

	// Lookup returns the current value at (row, col), or Blank when no cell
	// exists there.
	Lookup(row, col int) Value
}

// CellRef refers to exactly one cell.
type CellRef struct {
	Grid Grid
	Row  int
	Col  int
}

// NewCellRef creates a reference to a single cell.
func NewCellRef(g Grid, row, col int) *CellRef {
	return &CellRef{Grid: g, Row: row, Col: col}
}

// Deref returns the referenced cell's current value.
func (c *CellRef) Deref() Value {
	if c.Grid == nil {
		return Err(CodeRef)
	}
	return c.Grid.Lookup(c.Row, c.Col)
}

func (*CellRef) value()         {}
func (*CellRef) Kind() Kind     { return KindCellRef }
func (c *CellRef) Num() float64 { return c.Deref().Num() }
func (c *CellRef) Bool() bool   { return c.Deref().Bool() }
func (c *CellRef) Text() string { return c.Deref().Text() }
func (c *CellRef) Raw() any     { return c.Deref().Raw() }

// Range returns c as a 1x1 range.
func (c *CellRef) Range() *RangeRef {
	return &RangeRef{grid: c.Grid, startRow: c.Row, startCol: c.Col, endRow: c.Row, endCol: c.Col}
}

// RangeRef is a rectangular block of cells on one grid. Bounds are inclusive
// and always normalized so that start <= end on both axes.
type RangeRef struct {
	grid     Grid
	startRow int
	startCol int
	endRow   int
	endCol   int
}

// NewRange creates a range; reversed corners are swapped.
func NewRange(g Grid, startRow, startCol, endRow, endCol int) *RangeRef {
	if endRow < startRow {
		startRow, endRow = endRow, startRow
	}
	if endCol < startCol {
		startCol, endCol = endCol, startCol
	}
	return &RangeRef{grid: g, startRow: startRow, startCol: startCol, endRow: endRow, endCol: endCol}
}

// Grid returns the grid the range points into.
func (r *RangeRef) Grid() Grid { return r.grid }

// Bounds returns the inclusive 1-based corners.
func (r *RangeRef) Bounds() (startRow, startCol, endRow, endCol int) {
	return r.startRow, r.startCol, r.endRow, r.endCol
}

func (r *RangeRef) Height() int { return r.endRow - r.startRow + 1 }
func (r *RangeRef) Width() int  { return r.endCol - r.startCol + 1 }
func (r *RangeRef) Count() int  { return r.Height() * r.Width() }

// Contains reports whether the absolute position lies inside the range.
func (r *RangeRef) Contains(row, col int) bool {
	return row >= r.startRow && row <= r.endRow && col >= r.startCol && col <= r.endCol
}

// Get returns the i-th cell in row-major order.
func (r *RangeRef) Get(i int) Value {
	if i < 0 || i >= r.Count() {
		return Err(CodeRef)
	}
	w := r.Width()
	return r.GetAt(i/w, i%w)
}

// GetAt returns the cell at the 0-based offset (row, col) within the range.
func (r *RangeRef) GetAt(row, col int) Value {
	if row < 0 || col < 0 || row >= r.Height() || col >= r.Width() || r.grid == nil {
		return Err(CodeRef)
	}
	return r.grid.Lookup(r.startRow+row, r.startCol+col)
}

// Each walks every cell value in row-major order. The sequence is lazy and
// may be ranged over any number of times.
func (r *RangeRef) Each() iter.Seq[Value] {
	return func(yield func(Value) bool) {
		if r.grid == nil {
			yield(Err(CodeRef))
			return
		}
		for row := r.startRow; row <= r.endRow; row++ {
			for col := r.startCol; col <= r.endCol; col++ {
				if !yield(r.grid.Lookup(row, col)) {
					return
				}
			}
		}
	}
}

// Sub returns the block of the given size at 0-based offset (row, col). The
// block may extend past the original range; ok is false when it would leave
// the grid's positive quadrant.
func (r *RangeRef) Sub(row, col, height, width int) (*RangeRef, bool) {
	if height < 1 || width < 1 {
		return nil, false
	}
	sr, sc := r.startRow+row, r.startCol+col
	if sr < 1 || sc < 1 {
		return nil, false
	}
	return &RangeRef{grid: r.grid, startRow: sr, startCol: sc, endRow: sr + height - 1, endCol: sc + width - 1}, true
}

// Row returns the i-th row (0-based) as a range.
func (r *RangeRef) Row(i int) *RangeRef {
	sub, _ := r.Sub(i, 0, 1, r.Width())
	return sub
}

// Column returns the i-th column (0-based) as a range.
func (r *RangeRef) Column(i int) *RangeRef {
	sub, _ := r.Sub(0, i, r.Height(), 1)
	return sub
}

// Collapse resolves the range in a scalar context evaluated from the cell at
// (row, col). A 1x1 range yields its cell. A single row or column yields the
// cell aligned with the caller (implicit intersection); anything else is
// #VALUE!.
func (r *RangeRef) Collapse(row, col int) Value {
	switch {
	case r.Count() == 1:
		return r.GetAt(0, 0)
	case r.Height() == 1 && col >= r.startCol && col <= r.endCol:
		return r.grid.Lookup(r.startRow, col)
	case r.Width() == 1 && row >= r.startRow && row <= r.endRow:
		return r.grid.Lookup(row, r.startCol)
	}
	return Errorf(CodeValue, "range %dx%d does not intersect the calling cell", r.Height(), r.Width())
}

func (*RangeRef) value()     {}
func (*RangeRef) Kind() Kind { return KindRange }

func (r *RangeRef) scalar() Value {
	if r.Count() == 1 {
		return r.GetAt(0, 0)
	}
	return Err(CodeValue)
}

func (r *RangeRef) Num() float64 {
	v := r.scalar()
	if _, ok := v.(*Error); ok {
		return math.NaN()
	}
	return v.Num()
}

func (r *RangeRef) Bool() bool   { return r.scalar().Bool() }
func (r *RangeRef) Text() string { return r.scalar().Text() }
func (r *RangeRef) Raw() any     { return r.scalar().Raw() }

// MultiRangeRef is a comma-joined list of ranges, possibly on several grids.
type MultiRangeRef struct {
	Ranges []*RangeRef
}

func (*MultiRangeRef) value()     {}
func (*MultiRangeRef) Kind() Kind { return KindMultiRange }

func (m *MultiRangeRef) scalar() Value {
	if len(m.Ranges) == 1 {
		return m.Ranges[0].scalar()
	}
	return Err(CodeValue)
}

func (m *MultiRangeRef) Num() float64 { return m.scalar().Num() }
func (m *MultiRangeRef) Bool() bool   { return m.scalar().Bool() }
func (m *MultiRangeRef) Text() string { return m.scalar().Text() }
func (m *MultiRangeRef) Raw() any     { return m.scalar().Raw() }

// Each walks every range in order.
func (m *MultiRangeRef) Each() iter.Seq[Value] {
	return func(yield func(Value) bool) {
		for _, r := range m.Ranges {
			for v := range r.Each() {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// ArrayGrid is an anonymous, immutable grid holding the values of an array
// literal such as {1;3;7}.
type ArrayGrid struct {
	rows [][]Value
}

// NewArray builds a range over a constant 2-D array. Ragged rows are padded
// with #N/A.
func NewArray(rows [][]Value) *RangeRef {
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	g := &ArrayGrid{rows: rows}
	if len(rows) == 0 || width == 0 {
		return &RangeRef{grid: g, startRow: 1, startCol: 1, endRow: 1, endCol: 1}
	}
	return &RangeRef{grid: g, startRow: 1, startCol: 1, endRow: len(rows), endCol: width}
}

func (*ArrayGrid) Name() string { return "" }

func (g *ArrayGrid) Lookup(row, col int) Value {
	if row < 1 || row > len(g.rows) {
		return Err(CodeNA)
	}
	r := g.rows[row-1]
	if col < 1 || col > len(r) {
		return Err(CodeNA)
	}
	return r[col-1]
}
