// Package store persists workbook state snapshots.
//
// A snapshot is the facade State of one workbook (the constants a user
// entered, keyed by Sheet!A1, plus the host's history block) together with
// the content hashes that identify it:
//   - WorkbookHash: the description the values were entered against
//   - StateHash: the values themselves
//
// Two backends implement Store:
//   - SQLiteStore (default): one snapshots table, see schema.sql
//   - BoltStore: one bbolt bucket per workbook, keyed by big-endian seq
//
// # Invariants
//
// Ordering uses the per-workbook seq, never timestamps, so List and Latest
// are deterministic.
//
// Saving a state identical to the workbook's newest snapshot is a no-op:
// Save returns the existing snapshot with inserted=false.
//
// Values are stored as canonical JSON (ir.MarshalCanonical), so equal
// states are byte-identical on disk.
//
// Find runs a queryir.Select: SQLite compiles it with querysql, bbolt
// decodes each record and applies queryir.Match. Both agree on results and
// order.
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
