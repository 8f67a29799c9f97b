package engine

import (
	"slices"

	"github.com/roach88/gridcalc/internal/compiler"
)

// link connects a compiled cell to every existing, non-blank cell inside
// the ranges its formula reads, and registers it as an observer of those
// ranges.
func (w *Workbook) link(c *Cell) {
	c.refs = c.prog.Refs
	seen := make(map[*Cell]bool)
	for _, b := range c.refs {
		s, ok := w.Sheet(b.Sheet)
		if !ok {
			continue
		}
		w.observers[s.name] = append(w.observers[s.name], observer{bounds: b, cell: c})
		for _, p := range s.within(b) {
			if p.isBlank || seen[p] {
				continue
			}
			seen[p] = true
			w.addEdge(p, c)
		}
	}
}

// adopt links a cell that just got content to every formula observing a
// range it falls in.
func (w *Workbook) adopt(p *Cell) {
	for _, o := range w.observers[p.sheet.name] {
		if o.cell == p || !o.bounds.Contains(p.row, p.col) || slices.Contains(o.cell.parents, p) {
			continue
		}
		w.addEdge(p, o.cell)
	}
}

func (w *Workbook) addEdge(parent, child *Cell) {
	child.parents = append(child.parents, parent)
	parent.children = append(parent.children, child)
	if !parent.dirty {
		child.cleanParents++
	}
}

// unlink removes a cell's parent edges and range observers before it is
// redefined. Its children are kept.
func (w *Workbook) unlink(c *Cell) {
	for _, p := range c.parents {
		p.children = slices.DeleteFunc(p.children, func(x *Cell) bool { return x == c })
	}
	c.parents = nil
	c.cleanParents = 0
	for _, b := range c.refs {
		if s, ok := w.Sheet(b.Sheet); ok {
			w.observers[s.name] = slices.DeleteFunc(w.observers[s.name], func(o observer) bool { return o.cell == c })
		}
	}
	c.refs = nil
}

// endirten marks c dirty and, depth first, every cell that depends on it.
// Already-dirty cells stop the walk; their dependents are dirty too.
func (w *Workbook) endirten(c *Cell) {
	if c.dirty {
		return
	}
	w.beginPass()
	c.dirty = true
	c.attempts = 0
	w.pending = append(w.pending, c)
	for _, child := range c.children {
		child.cleanParents--
		w.endirten(child)
	}
}

// parentMadeClean is called on each child of a freshly calculated cell.
// A child that becomes ready is queued. One that keeps waiting counts the
// attempt, and once attempts reach the stuck threshold it is queued anyway.
// Clean children are never dirtied again here.
func (w *Workbook) parentMadeClean(c *Cell) {
	c.cleanParents++
	if !c.dirty {
		return
	}
	if c.ready() {
		w.queue.Push(c)
		return
	}
	c.attempts++
	if c.attempts >= w.threshold(c) {
		w.logger.Debug("forcing stuck cell",
			"cell", c.Address(),
			"attempts", c.attempts,
			"clean_parents", c.cleanParents,
			"parents", len(c.parents))
		c.forced = true
		w.queue.Push(c)
	}
}

func (w *Workbook) threshold(c *Cell) int {
	if w.stuckThreshold > 0 {
		return w.stuckThreshold
	}
	return len(c.parents)
}

// dependencyGraph maps every formula cell to the cells it reads.
func (w *Workbook) dependencyGraph() map[string][]string {
	graph := make(map[string][]string)
	for _, s := range w.order {
		for c := range s.Cells() {
			if len(c.parents) > 0 {
				graph[c.Address()] = c.Parents()
			}
		}
	}
	return graph
}

// analyzeCycles records every reference cycle as a warning.
func (w *Workbook) analyzeCycles() []compiler.Cycle {
	cycles := compiler.AnalyzeCycles(w.dependencyGraph())
	for _, cy := range cycles {
		d := cy.Diagnostic()
		w.recordWarning(d.Node, d.Code, d.Message)
	}
	return cycles
}
