// Package queryir is the query representation for searching saved
// snapshots by the cell values they hold.
//
// A query is written once and run by every store backend: the SQLite store
// compiles it to SQL (internal/querysql) and the bbolt store evaluates it
// in memory with Match. Both must return the same snapshots in the same
// order for the same query.
//
//	[history --where] → [Query IR] → [SQL over cell_values JSON]
//	                               → [Match over decoded values]
//
// PORTABLE FRAGMENT:
//
// The fragment both backends implement:
//   - Select(workbook, filter, order, limit) over one workbook's snapshots
//   - Predicates: Equals, Compare, Entered, And
//   - Addresses in the Sheet!A1 form the facade saves state under
//
// It excludes:
//   - Named ranges: a store does not know the workbook description, so
//     callers resolve names before building a query
//   - OR and NOT predicates
//   - Ranges: one predicate reads one cell
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed with marker methods, so backends can
// switch over every type exhaustively:
//
//	switch p := pred.(type) {
//	case Equals, *Equals:
//	case Compare, *Compare:
//	case Entered, *Entered:
//	case And, *And:
//	}
//
// VALUE TYPES:
//
// Saved cell values are float64, string, bool or nil, as the facade hands
// them out. Equals compares with the type: the number 1 never equals the
// text "1" and TRUE never equals 1. Compare orders numbers only.
package queryir
