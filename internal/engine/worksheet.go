package engine

import (
	"cmp"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/gridcalc/internal/address"
	"github.com/roach88/gridcalc/internal/value"
)

// Worksheet is a sparse grid of cells. It implements value.Grid, so ranges
// compiled against it read live cell values.
type Worksheet struct {
	wb    *Workbook
	name  string
	rows  map[int]map[int]*Cell
	names map[string]address.Bounds // sheet-scoped, keyed by upper-cased name
	count int

	// built counts cells processed by the current build stage.
	built int
}

func newWorksheet(wb *Workbook, name string) *Worksheet {
	return &Worksheet{
		wb:    wb,
		name:  name,
		rows:  make(map[int]map[int]*Cell),
		names: make(map[string]address.Bounds),
	}
}

// Name returns the worksheet name.
func (s *Worksheet) Name() string { return s.name }

// Len returns the number of cells.
func (s *Worksheet) Len() int { return s.count }

// Lookup returns the value at (row, col), or Blank when there is no cell.
func (s *Worksheet) Lookup(row, col int) value.Value {
	c := s.Cell(row, col)
	if c == nil {
		return value.Blank{}
	}
	return c.Value()
}

// Cell returns the cell at (row, col), or nil.
func (s *Worksheet) Cell(row, col int) *Cell {
	return s.rows[row][col]
}

// Cells iterates cells in row-major order.
func (s *Worksheet) Cells() iter.Seq[*Cell] {
	return func(yield func(*Cell) bool) {
		for _, r := range slices.Sorted(maps.Keys(s.rows)) {
			row := s.rows[r]
			for _, c := range slices.Sorted(maps.Keys(row)) {
				if !yield(row[c]) {
					return
				}
			}
		}
	}
}

// ensure returns the cell at (row, col), creating a blank one if needed.
func (s *Worksheet) ensure(row, col int) (*Cell, bool) {
	if c := s.Cell(row, col); c != nil {
		return c, false
	}
	r, ok := s.rows[row]
	if !ok {
		r = make(map[int]*Cell)
		s.rows[row] = r
	}
	c := newCell(s, row, col)
	c.ctx.Clock = s.wb.clock
	c.ctx.Logger = s.wb.logger
	r[col] = c
	s.count++
	return c, true
}

// within returns the cells inside b in row-major order. Large sparse ranges,
// such as whole columns, are answered by scanning existing cells instead of
// every coordinate.
func (s *Worksheet) within(b address.Bounds) []*Cell {
	var out []*Cell
	if b.Height()*b.Width() <= s.count {
		for r := b.StartRow; r <= b.EndRow; r++ {
			row, ok := s.rows[r]
			if !ok {
				continue
			}
			for c := b.StartCol; c <= b.EndCol; c++ {
				if cell, ok := row[c]; ok {
					out = append(out, cell)
				}
			}
		}
		return out
	}
	for r, row := range s.rows {
		if r < b.StartRow || r > b.EndRow {
			continue
		}
		for c, cell := range row {
			if c >= b.StartCol && c <= b.EndCol {
				out = append(out, cell)
			}
		}
	}
	slices.SortFunc(out, func(x, y *Cell) int {
		return cmp.Or(cmp.Compare(x.row, y.row), cmp.Compare(x.col, y.col))
	})
	return out
}

func (s *Worksheet) localName(n string) (address.Bounds, bool) {
	b, ok := s.names[strings.ToUpper(n)]
	return b, ok
}
