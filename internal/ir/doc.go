// Package ir holds the declarative workbook description the engine is built
// from: worksheets, cell specs, named ranges and parsed expression trees.
//
// It also owns everything that treats a description as data rather than as a
// running workbook: JSON/YAML loading, CUE schema validation, formula-text
// parsing, canonical JSON and content hashes.
//
// ir imports nothing internal except address, so every other package can
// depend on it without cycles.
package ir
