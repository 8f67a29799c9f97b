package compiler

import "fmt"

// Diagnostic codes (E200-E299).
const (
	// Build errors: the cell's evaluator is replaced by a constant error.
	ErrUnknownFunction = "E201" // function not in the library or workbook
	ErrMalformedNode   = "E202" // AST node missing fields or of unknown type
	ErrCompilePanic    = "E203" // compilation panicked

	// Warnings: the offending sub-expression evaluates to an error value,
	// the rest of the formula still runs.
	ErrUnresolvedName = "E210" // named range not found
	ErrBadAddress     = "E211" // address did not parse
	ErrUnknownSheet   = "E212" // sheet-qualified reference to a missing sheet
	ErrReferenceCycle = "E220" // cells that reference each other
)

// Diagnostic describes one problem found while compiling a formula.
type Diagnostic struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Node is the formula text of the offending sub-expression.
	Node string `json:"node,omitempty"`
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	if d.Node != "" {
		return fmt.Sprintf("[%s] %s: %s", d.Code, d.Node, d.Message)
	}
	return fmt.Sprintf("[%s] %s", d.Code, d.Message)
}
