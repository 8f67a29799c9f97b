package ir

import (
	"maps"
	"slices"
	"sort"
)

// Workbook is the declarative description a workbook is built from.
type Workbook struct {
	Name        string                `json:"name" yaml:"name"`
	Worksheets  map[string]*Worksheet `json:"worksheets" yaml:"worksheets"`
	NamedRanges map[string]NamedRange `json:"namedRanges,omitempty" yaml:"namedRanges,omitempty"`

	// Order lists worksheet names in build order. Sheets missing from it are
	// built afterwards in name order.
	Order []string `json:"order,omitempty" yaml:"order,omitempty"`
}

// Worksheet describes one sheet's cells and sheet-scoped named ranges.
type Worksheet struct {
	Cells       []CellSpec            `json:"cells" yaml:"cells"`
	NamedRanges map[string]NamedRange `json:"namedRanges,omitempty" yaml:"namedRanges,omitempty"`
}

// CellSpec describes one cell. Expression wins over F; F wins over V.
// V, F and NF are carried for display: V is the original value, F the formula
// text, NF the number format applied when the value is read back.
type CellSpec struct {
	Row        int    `json:"row" yaml:"row"`
	Col        int    `json:"col" yaml:"col"`
	Expression *Node  `json:"expression,omitempty" yaml:"expression,omitempty"`
	V          any    `json:"v,omitempty" yaml:"v,omitempty"`
	F          string `json:"f,omitempty" yaml:"f,omitempty"`
	NF         string `json:"nf,omitempty" yaml:"nf,omitempty"`
}

// NamedRange is an alias for a rectangular block. Zero end coordinates mean
// the range is the single start cell. An empty Worksheet means the sheet the
// name is declared on (or, for workbook-scoped names, the first sheet).
type NamedRange struct {
	StartRow  int    `json:"startRow" yaml:"startRow"`
	StartCol  int    `json:"startCol" yaml:"startCol"`
	EndRow    int    `json:"endRow,omitempty" yaml:"endRow,omitempty"`
	EndCol    int    `json:"endCol,omitempty" yaml:"endCol,omitempty"`
	Worksheet string `json:"worksheet,omitempty" yaml:"worksheet,omitempty"`
}

// Corners returns the inclusive corners with zero ends defaulted.
func (n NamedRange) Corners() (startRow, startCol, endRow, endCol int) {
	endRow, endCol = n.EndRow, n.EndCol
	if endRow == 0 {
		endRow = n.StartRow
	}
	if endCol == 0 {
		endCol = n.StartCol
	}
	return n.StartRow, n.StartCol, endRow, endCol
}

// SheetNames returns worksheet names in build order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, 0, len(w.Worksheets))
	seen := make(map[string]bool, len(w.Worksheets))
	for _, name := range w.Order {
		if _, ok := w.Worksheets[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range w.Worksheets {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// CellCount returns the number of cell specs across all worksheets.
func (w *Workbook) CellCount() int {
	n := 0
	for _, ws := range w.Worksheets {
		n += len(ws.Cells)
	}
	return n
}

// Clone returns a deep copy of the description's maps and slices. Expression
// trees are shared; they are never mutated after loading.
func (w *Workbook) Clone() *Workbook {
	c := &Workbook{
		Name:        w.Name,
		Worksheets:  make(map[string]*Worksheet, len(w.Worksheets)),
		NamedRanges: maps.Clone(w.NamedRanges),
		Order:       slices.Clone(w.Order),
	}
	for name, ws := range w.Worksheets {
		c.Worksheets[name] = &Worksheet{
			Cells:       slices.Clone(ws.Cells),
			NamedRanges: maps.Clone(ws.NamedRanges),
		}
	}
	return c
}
