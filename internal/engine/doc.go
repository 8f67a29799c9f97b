// Package engine implements the gridcalc incremental calculation engine.
//
// A Workbook is built from an ir.Workbook description. Every cell is a node
// of a dependency graph: formulas are compiled once, their references become
// parent edges, and edits propagate only through the cells that depend on
// them.
//
// ARCHITECTURE:
//
// Dirty/Clean Counting:
// Editing a cell marks it and all of its transitive dependents dirty
// (endirten). Each dirty cell counts how many of its parents are clean;
// it is queued once that count reaches its parent count. Calculating a cell
// notifies each child (parentMadeClean), which may make the child ready.
// There is no topological sort.
//
// Cycle Tolerance:
// A cell that keeps being notified without becoming ready (a parent sits in
// a reference cycle) is calculated anyway once its attempts reach the stuck
// threshold. When the queue drains while cells dirtied in the pass are
// still dirty, the earliest of them is forced and propagation resumes. Every
// dirtied cell is calculated exactly once per pass. Cells inside a cycle may
// observe a parent's previous value; that staleness is the documented price
// of not sorting the graph.
//
// Time Slicing:
// Tick calculates queued cells until the slice budget is spent and returns,
// so a host can interleave calculation with other work. Run loops Tick and
// yields between slices. ForceCalculate drains without yielding, bounded by
// the force timeout. Builder applies the same slicing to construction.
//
// Concurrency:
// The engine holds no locks. All mutation happens on one logical thread;
// concurrent callers must serialize in front of the Workbook.
package engine
