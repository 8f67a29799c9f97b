package engine

import (
	"github.com/roach88/gridcalc/internal/address"
	"github.com/roach88/gridcalc/internal/compiler"
	"github.com/roach88/gridcalc/internal/formula"
	"github.com/roach88/gridcalc/internal/value"
)

// Cell is one node of the dependency graph.
//
// A cell moves through Uninitialized -> Compiled -> Dirty -> Clean. Edits
// and dirty parents move it back to Dirty; the scheduler moves it to Clean.
//
// INVARIANTS:
//   - cleanParents counts the parents that are not dirty
//   - a cell is ready iff dirty && cleanParents == len(parents)
//   - parents are deduplicated and never include a cell that was blank when
//     the edge was discovered
type Cell struct {
	sheet *Worksheet
	row   int
	col   int
	ctx   formula.Context

	prog    compiler.Program
	format  string // number format applied on read
	text    string // formula text, for display
	value   value.Value
	isValue bool // holds a constant rather than a formula
	isBlank bool
	status  *Diagnostic

	parents  []*Cell
	children []*Cell
	refs     []address.Bounds // observed ranges, so late cells can be linked

	dirty        bool
	queued       bool
	forced       bool
	cleanParents int
	attempts     int
}

func newCell(s *Worksheet, row, col int) *Cell {
	c := &Cell{sheet: s, row: row, col: col, isBlank: true}
	c.ctx = formula.Context{Sheet: s.name, Row: row, Col: col}
	return c
}

// Address returns the cell's address in Sheet!A1 form.
func (c *Cell) Address() string {
	return address.Format(c.sheet.name, c.row, c.col)
}

func (c *Cell) Sheet() string { return c.sheet.name }
func (c *Cell) Row() int      { return c.row }
func (c *Cell) Col() int      { return c.col }

// Value returns the memoized value. A formula that has not been calculated
// yet reads as #UNINITIALIZED!.
func (c *Cell) Value() value.Value {
	if c.value == nil {
		return value.Err(value.CodeUninitialized)
	}
	return c.value
}

// NumberFormat returns the display format the cell was described with.
func (c *Cell) NumberFormat() string { return c.format }

// Formula returns the formula text the cell was described with, if any.
func (c *Cell) Formula() string { return c.text }

// IsValue reports whether the cell holds a constant.
func (c *Cell) IsValue() bool { return c.isValue }

// IsBlank reports whether the cell holds nothing.
func (c *Cell) IsBlank() bool { return c.isBlank }

// IsRoot reports whether the cell has no precedents and so seeds
// recalculation.
func (c *Cell) IsRoot() bool { return len(c.parents) == 0 }

// Dirty reports whether the cell awaits recalculation.
func (c *Cell) Dirty() bool { return c.dirty }

// ErrorStatus returns the build error attached to the cell, if any.
func (c *Cell) ErrorStatus() *Diagnostic { return c.status }

// Parents returns the addresses of the cells this cell reads.
func (c *Cell) Parents() []string { return addresses(c.parents) }

// Children returns the addresses of the cells that read this cell.
func (c *Cell) Children() []string { return addresses(c.children) }

func (c *Cell) ready() bool {
	return c.dirty && c.cleanParents == len(c.parents)
}

func addresses(cells []*Cell) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.Address()
	}
	return out
}
