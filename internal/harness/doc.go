// Package harness runs workbook scenarios and compares their outcome with
// golden snapshots.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: loan_interest
//	description: "Raising the rate raises the balance"
//	workbook: ../workbooks/loan.yaml   # or an inline `definition:` block
//	setup:
//	  - ref: Inputs!A1
//	    value: 1000
//	flow:
//	  - ref: Inputs!A2
//	    value: 0.1
//	    expect:
//	      Model!A1: 1210
//	  - ref: Model!B1
//	    formula: "=A1*2"
//	  - reset: true
//	assertions:
//	  - type: value
//	    ref: Model!A1
//	    value: "1102.50"
//	  - type: build_errors
//	    count: 0
//
// A flow step either writes a value (ref + value), installs a formula
// (ref + formula), rebuilds the workbook (reset), or only checks values
// (expect alone). Expectations are compared after the step's recalculation
// pass, numbers within a relative tolerance of 1e-9.
//
// # Assertion Types
//
//   - value: the value at ref, formatted unless raw is set
//   - build_errors, warnings, calculation_errors: diagnostic list length
//   - entered: the sorted addresses in the persisted state
//   - passes: the number of calculation passes recorded in the trace
//
// # Determinism
//
// Scenarios run with a fixed clock (testutil.Epoch) and sequential pass ids,
// so traces and final values are byte-stable and can be stored as golden
// files under testdata/golden.
//
// After the flow, CheckRoundTrip rebuilds the workbook from its description
// and the persisted state and reports any formula cell whose value differs.
package harness
