package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrCalculationTimeout is returned by ForceCalculate when the queue could
// not be drained within the force timeout.
var ErrCalculationTimeout = errors.New("calculation timed out")

// ErrBuildIncomplete is returned when a workbook is requested from a builder
// that has not finished.
var ErrBuildIncomplete = errors.New("workbook build not finished")

// CalcError is a Go-level engine failure. Spreadsheet errors such as #DIV/0!
// are values, not CalcErrors.
type CalcError struct {
	// Code identifies the error category.
	Code CalcErrorCode

	// Message is a human-readable description.
	Message string

	// Address is the cell involved, in Sheet!A1 form, if any.
	Address string

	cause error
}

// CalcErrorCode categorizes engine errors.
type CalcErrorCode string

const (
	// ErrCodeTimeout indicates a forced calculation ran out of time.
	ErrCodeTimeout CalcErrorCode = "TIMEOUT"

	// ErrCodeBadAddress indicates an address or name that does not resolve.
	ErrCodeBadAddress CalcErrorCode = "BAD_ADDRESS"

	// ErrCodeUnknownSheet indicates a worksheet that does not exist.
	ErrCodeUnknownSheet CalcErrorCode = "UNKNOWN_SHEET"

	// ErrCodeCancelled indicates the caller's context ended first.
	ErrCodeCancelled CalcErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *CalcError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("%s: %s (cell=%s)", e.Code, e.Message, e.Address)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is match ErrCalculationTimeout, and the context error
// behind a cancellation.
func (e *CalcError) Unwrap() error {
	if e.Code == ErrCodeTimeout {
		return ErrCalculationTimeout
	}
	return e.cause
}

// IsTimeout returns true if the error is a calculation timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	var ce *CalcError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeTimeout
	}
	return false
}

// IsCancelled returns true if the caller's context ended before the work
// finished.
func IsCancelled(err error) bool {
	var ce *CalcError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeCancelled
	}
	return false
}

// IsBadAddress returns true if the error is an unresolvable address or an
// unknown worksheet.
func IsBadAddress(err error) bool {
	var ce *CalcError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeBadAddress || ce.Code == ErrCodeUnknownSheet
	}
	return false
}

func newTimeoutError(pending int, limit time.Duration) *CalcError {
	return &CalcError{
		Code:    ErrCodeTimeout,
		Message: fmt.Sprintf("%d cells still queued after %s", pending, limit),
	}
}

func newCancelledError(op string, cause error) *CalcError {
	return &CalcError{
		Code:    ErrCodeCancelled,
		Message: fmt.Sprintf("%s: %v", op, cause),
		cause:   cause,
	}
}

// DiagnosticKind separates formula problems from evaluation failures.
type DiagnosticKind string

const (
	// KindBuild is a formula that could not be compiled.
	KindBuild DiagnosticKind = "build"

	// KindWarning is a formula that compiled with an error value substituted,
	// or a reference cycle.
	KindWarning DiagnosticKind = "warning"

	// KindCalculation is a failure while evaluating a formula.
	KindCalculation DiagnosticKind = "calculation"
)

// Diagnostic is one entry of a workbook's build or calculation error list.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Address string         `json:"address"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Code != "" {
		return fmt.Sprintf("%s %s [%s]: %s", d.Kind, d.Address, d.Code, d.Message)
	}
	return fmt.Sprintf("%s %s: %s", d.Kind, d.Address, d.Message)
}
