// Package value defines the runtime values produced by formula evaluation.
//
// Value is a sealed interface: only the types in this package implement it.
// Every variant answers the four coercions (Num, Bool, Text, Raw) so callers
// never type-switch just to read a number. Errors are terminal: functions and
// operators check for them with AsError before coercing anything.
package value

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies a Value variant.
type Kind uint8

const (
	KindBlank Kind = iota
	KindNumber
	KindText
	KindBool
	KindError
	KindCellRef
	KindRange
	KindMultiRange
)

var kindNames = [...]string{
	KindBlank:      "blank",
	KindNumber:     "number",
	KindText:       "text",
	KindBool:       "bool",
	KindError:      "error",
	KindCellRef:    "cell",
	KindRange:      "range",
	KindMultiRange: "multirange",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a sealed interface over the runtime value variants.
type Value interface {
	Kind() Kind

	// Num coerces to a number. NaN means "not a number" and callers turn it
	// into #VALUE!.
	Num() float64
	Bool() bool
	Text() string

	// Raw returns the plain Go value: float64, string, bool, nil or the
	// error code string.
	Raw() any

	value() // sealed
}

// Blank is the value of a cell that was never written.
type Blank struct{}

func (Blank) value()         {}
func (Blank) Kind() Kind     { return KindBlank }
func (Blank) Num() float64   { return 0 }
func (Blank) Bool() bool     { return false }
func (Blank) Text() string   { return "" }
func (Blank) Raw() any       { return nil }
func (Blank) String() string { return "" }

// Number is a numeric value. Dates are numbers (serial day counts).
type Number float64

func (Number) value()           {}
func (Number) Kind() Kind       { return KindNumber }
func (n Number) Num() float64   { return float64(n) }
func (n Number) Bool() bool     { return n != 0 }
func (n Number) Text() string   { return FormatNumber(float64(n)) }
func (n Number) Raw() any       { return float64(n) }
func (n Number) String() string { return n.Text() }

// Text is a string value. Numeric strings coerce to numbers.
type Text string

func (Text) value()     {}
func (Text) Kind() Kind { return KindText }

func (t Text) Num() float64 {
	s := strings.TrimSpace(string(t))
	if s == "" {
		return 0
	}
	if f, ok := ParseNumber(s); ok {
		return f
	}
	return math.NaN()
}

func (t Text) Bool() bool {
	s := strings.TrimSpace(string(t))
	switch {
	case strings.EqualFold(s, "TRUE"):
		return true
	case strings.EqualFold(s, "FALSE"):
		return false
	}
	if f, ok := ParseNumber(s); ok {
		return f != 0
	}
	return false
}

func (t Text) Text() string { return string(t) }

func (t Text) Raw() any {
	if f, ok := ParseNumber(strings.TrimSpace(string(t))); ok {
		return f
	}
	return string(t)
}

func (t Text) String() string { return string(t) }

// Bool is a logical value.
type Bool bool

func (Bool) value()     {}
func (Bool) Kind() Kind { return KindBool }

func (b Bool) Num() float64 {
	if b {
		return 1
	}
	return 0
}

func (b Bool) Bool() bool { return bool(b) }

func (b Bool) Text() string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (b Bool) Raw() any       { return bool(b) }
func (b Bool) String() string { return b.Text() }

// FormatNumber renders a number the way a General cell format does: at most
// 15 significant digits, no trailing zeros, exponent form only for very
// large or very small magnitudes.
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Err(CodeNum).Text()
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'g', 15, 64), 64)
	if err != nil {
		r = f
	}
	if r == 0 {
		return "0"
	}
	abs := math.Abs(r)
	if abs >= 1e21 || abs < 1e-9 {
		return strings.ToUpper(strconv.FormatFloat(r, 'g', -1, 64))
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// ParseNumber parses decimal number text. Hex floats, "Inf", "NaN" and
// underscores are rejected even though strconv accepts them.
func ParseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	digits := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = true
		case c == '.' || c == '+' || c == '-' || c == 'e' || c == 'E':
		default:
			return 0, false
		}
	}
	if !digits {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// FromInput converts a value entered into a cell. Numeric strings are
// auto-detected and stored as Number, so an entered "5" behaves the same
// as 5 and survives a Raw round trip unchanged. Everything else is FromRaw.
func FromInput(v any) Value {
	if s, ok := v.(string); ok {
		if f, ok := ParseNumber(strings.TrimSpace(s)); ok {
			return Number(f)
		}
	}
	return FromRaw(v)
}

// FromRaw converts a plain Go value (as decoded from JSON or YAML) into a
// Value. Strings spelling an error code become that error.
func FromRaw(v any) Value {
	switch x := v.(type) {
	case nil:
		return Blank{}
	case Value:
		return x
	case float64:
		return Number(x)
	case float32:
		return Number(x)
	case int:
		return Number(x)
	case int64:
		return Number(x)
	case int32:
		return Number(x)
	case uint64:
		return Number(x)
	case bool:
		return Bool(x)
	case string:
		if code, ok := ParseCode(x); ok {
			return Err(code)
		}
		return Text(x)
	default:
		return Err(CodeValue)
	}
}
