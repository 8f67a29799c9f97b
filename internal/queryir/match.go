package queryir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NumberValue reports the float64 form of a Go number.
func NumberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Match evaluates a predicate against the saved values of one snapshot,
// keyed by canonical address. A nil predicate matches.
//
// Match is the in-memory twin of the SQL the querysql package emits and
// must agree with it for every validated predicate.
func Match(p Predicate, values map[string]any) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		return matchEquals(pred, values)
	case *Equals:
		return matchEquals(*pred, values)
	case Compare:
		return matchCompare(pred, values)
	case *Compare:
		return matchCompare(*pred, values)
	case Entered:
		_, ok := values[pred.Address]
		return ok
	case *Entered:
		_, ok := values[pred.Address]
		return ok
	case And:
		return matchAll(pred.Predicates, values)
	case *And:
		return matchAll(pred.Predicates, values)
	}
	return false
}

func matchAll(preds []Predicate, values map[string]any) bool {
	for _, p := range preds {
		if !Match(p, values) {
			return false
		}
	}
	return true
}

func matchEquals(eq Equals, values map[string]any) bool {
	got, ok := values[eq.Address]
	if !ok {
		return false
	}
	switch want := eq.Value.(type) {
	case nil:
		return got == nil
	case string:
		s, ok := got.(string)
		return ok && s == want
	case bool:
		b, ok := got.(bool)
		return ok && b == want
	}
	want, ok := NumberValue(eq.Value)
	if !ok {
		return false
	}
	f, ok := NumberValue(got)
	return ok && f == want
}

func matchCompare(c Compare, values map[string]any) bool {
	f, ok := NumberValue(values[c.Address])
	if !ok {
		return false
	}
	switch c.Op {
	case OpLess:
		return f < c.Value
	case OpLessEqual:
		return f <= c.Value
	case OpGreater:
		return f > c.Value
	case OpGreaterEqual:
		return f >= c.Value
	case OpNotEqual:
		return f != c.Value
	}
	return false
}

// ParsePredicate reads the command-line filter form:
//
//	Inputs!A1=2000     Equals (value read as JSON, else as text)
//	Inputs!A2<0.3      Compare, with <, <=, >, >= or !=
//	Inputs!A3          Entered
//
// The address is canonicalized.
func ParsePredicate(s string) (Predicate, error) {
	i, op := findOperator(s)
	if i < 0 {
		addr, err := CanonicalAddress(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		return Entered{Address: addr}, nil
	}
	addr, err := CanonicalAddress(strings.TrimSpace(s[:i]))
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(s[i+len(op):])
	if op == "=" {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		switch v.(type) {
		case nil, string, bool, float64:
		default:
			return nil, fmt.Errorf("filter %q: value must be a scalar", s)
		}
		return Equals{Address: addr, Value: v}, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %s needs a number", s, op)
	}
	return Compare{Address: addr, Op: CompareOp(op), Value: f}, nil
}

// findOperator locates the first comparison operator outside a quoted
// sheet name. The '!' of a sheet prefix is not an operator.
func findOperator(s string) (int, string) {
	quoted := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' {
			quoted = !quoted
			continue
		}
		if quoted {
			continue
		}
		two := ""
		if i+1 < len(s) {
			two = s[i : i+2]
		}
		switch {
		case two == "<=" || two == ">=" || two == "!=":
			return i, two
		case c == '<' || c == '>' || c == '=':
			return i, string(c)
		}
	}
	return -1, ""
}
