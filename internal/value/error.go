package value

import (
	"errors"
	"fmt"
	"math"
)

// Code categorizes spreadsheet errors.
type Code uint8

const (
	// CodeUninitialized marks a value read before its first evaluation.
	CodeUninitialized Code = iota + 1
	// CodeRef marks a broken reference or a formula that failed to compile.
	CodeRef
	CodeDiv0
	// CodeName marks an unresolved named range.
	CodeName
	// CodeNum marks out-of-domain numeric input.
	CodeNum
	// CodeCalc marks an unknown function or a failure during evaluation.
	CodeCalc
	// CodeValue marks a type coercion failure, including an implicit
	// intersection miss.
	CodeValue
	// CodeNA marks a lookup miss.
	CodeNA
)

var codeText = map[Code]string{
	CodeUninitialized: "#UNINITIALIZED!",
	CodeRef:           "#REF!",
	CodeDiv0:          "#DIV/0!",
	CodeName:          "#NAME!",
	CodeNum:           "#NUM!",
	CodeCalc:          "#CALCERROR!",
	CodeValue:         "#VALUE!",
	CodeNA:            "#N/A",
}

func (c Code) String() string {
	if s, ok := codeText[c]; ok {
		return s
	}
	return fmt.Sprintf("#ERR%d!", uint8(c))
}

// ParseCode maps an error literal such as "#N/A" back to its code.
func ParseCode(s string) (Code, bool) {
	if len(s) < 2 || s[0] != '#' {
		return 0, false
	}
	for c, text := range codeText {
		if text == s {
			return c, true
		}
	}
	if s == "#NAME?" {
		return CodeName, true
	}
	return 0, false
}

// Error is a spreadsheet error value. It also satisfies the error interface
// so it can cross Go API boundaries unchanged.
type Error struct {
	Code Code

	// Origin is the address of the cell that produced the error, if known.
	Origin string

	// Message describes the failure for diagnostics. Never shown as the
	// cell's text.
	Message string
}

// NewError creates an error value with a diagnostic message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates an error value with a formatted diagnostic message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var sharedErrors = func() map[Code]*Error {
	m := make(map[Code]*Error, len(codeText))
	for c := range codeText {
		m[c] = &Error{Code: c}
	}
	return m
}()

// Err returns the shared, message-less error value for a code.
// The returned pointer must not be mutated.
func Err(code Code) *Error {
	if e, ok := sharedErrors[code]; ok {
		return e
	}
	return &Error{Code: code}
}

func (*Error) value()           {}
func (*Error) Kind() Kind       { return KindError }
func (*Error) Num() float64     { return math.NaN() }
func (*Error) Bool() bool       { return false }
func (e *Error) Text() string   { return e.Code.String() }
func (e *Error) Raw() any       { return e.Code.String() }
func (e *Error) String() string { return e.Code.String() }

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Origin != "":
		return fmt.Sprintf("%s: %s (cell=%s)", e.Code, e.Message, e.Origin)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Origin != "":
		return fmt.Sprintf("%s (cell=%s)", e.Code, e.Origin)
	}
	return e.Code.String()
}

// Is reports code equality so errors.Is(err, value.Err(value.CodeNA)) works
// regardless of origin and message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithOrigin returns a copy of e stamped with the originating cell. An error
// that already has an origin is returned unchanged so the deepest cell wins.
func (e *Error) WithOrigin(address string) *Error {
	if e.Origin != "" {
		return e
	}
	c := *e
	c.Origin = address
	return &c
}

// AsError returns v as an error value, if it is one.
func AsError(v Value) (*Error, bool) {
	e, ok := v.(*Error)
	return e, ok
}

// IsCode reports whether v is an error with the given code.
func IsCode(v Value, code Code) bool {
	e, ok := v.(*Error)
	return ok && e.Code == code
}
