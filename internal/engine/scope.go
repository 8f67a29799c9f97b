package engine

import (
	"strings"

	"github.com/roach88/gridcalc/internal/address"
	"github.com/roach88/gridcalc/internal/formula"
	"github.com/roach88/gridcalc/internal/value"
)

// scope resolves names for formulas compiled on one worksheet.
//
// Resolution order for named ranges:
//  1. Names declared on the formula's own worksheet
//  2. Workbook-scoped names
type scope struct {
	w     *Workbook
	sheet *Worksheet
}

func (s *scope) Sheet() string { return s.sheet.name }

func (s *scope) Grid(name string) (value.Grid, bool) {
	ws, ok := s.w.Sheet(name)
	if !ok {
		return nil, false
	}
	return ws, true
}

func (s *scope) Name(name string) (address.Bounds, bool) {
	if b, ok := s.sheet.localName(name); ok {
		return b, true
	}
	b, ok := s.w.names[strings.ToUpper(name)]
	return b, ok
}

func (s *scope) Function(name string) (formula.Func, bool) {
	fn, ok := s.w.funcs[strings.ToUpper(name)]
	return fn, ok
}
