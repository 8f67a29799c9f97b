package queryir

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/gridcalc/internal/address"
)

// ValidationError lists every problem found in a query.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks that a query stays inside the portable fragment, so both
// backends can run it and agree on the result. It returns nil or a
// *ValidationError.
//
// Validate is a pure function with no side effects.
func Validate(query Query) error {
	v := &validator{}
	v.validateQuery(query)
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addProblem("nil query")
			return
		}
		v.validateSelect(*query)
	case nil:
		v.addProblem("nil query")
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(s Select) {
	if s.Workbook == "" {
		v.addProblem("workbook is required")
	}
	if s.Order != OldestFirst && s.Order != NewestFirst {
		v.addProblem("unknown order %d", s.Order)
	}
	if s.Limit < 0 {
		v.addProblem("limit must be non-negative, got %d", s.Limit)
	}
	if s.Filter != nil {
		v.validatePredicate(s.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case Compare:
		v.validateCompare(pred)
	case *Compare:
		v.validateCompare(*pred)
	case Entered:
		v.validateAddress(pred.Address)
	case *Entered:
		v.validateAddress(pred.Address)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	case nil:
		v.addProblem("nil predicate")
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	v.validateAddress(eq.Address)
	switch x := eq.Value.(type) {
	case nil, string, bool:
	default:
		f, ok := NumberValue(x)
		if !ok {
			v.addProblem("%s: unsupported value type %T", eq.Address, eq.Value)
		} else if math.IsNaN(f) || math.IsInf(f, 0) {
			v.addProblem("%s: value must be finite", eq.Address)
		}
	}
}

func (v *validator) validateCompare(c Compare) {
	v.validateAddress(c.Address)
	switch c.Op {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpNotEqual:
	default:
		v.addProblem("%s: unknown operator %q", c.Address, c.Op)
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		v.addProblem("%s: value must be finite", c.Address)
	}
}

func (v *validator) validateAnd(and And) {
	for _, p := range and.Predicates {
		v.validatePredicate(p)
	}
}

// validateAddress requires the canonical Sheet!A1 form state is saved
// under, so the key matches byte for byte.
func (v *validator) validateAddress(addr string) {
	canonical, err := CanonicalAddress(addr)
	if err != nil {
		v.addProblem("%v", err)
		return
	}
	if canonical != addr {
		v.addProblem("address %q is not canonical, use %q", addr, canonical)
	}
}

// CanonicalAddress rewrites a single-cell address with a sheet prefix into
// the form saved state is keyed by: "Inputs!$a$1" becomes "Inputs!A1".
// The sheet name is kept as written.
func CanonicalAddress(addr string) (string, error) {
	if strings.ContainsAny(addr, `"\`) {
		return "", fmt.Errorf("address %q: quotes and backslashes are not allowed", addr)
	}
	sheet, rest, err := address.SplitSheet(addr)
	if err != nil {
		return "", fmt.Errorf("address %q: %w", addr, err)
	}
	if sheet == "" {
		return "", fmt.Errorf("address %q: a sheet prefix is required", addr)
	}
	b, err := address.ParseOne(rest)
	if err != nil {
		return "", fmt.Errorf("address %q: %w", addr, err)
	}
	if !b.IsCell() {
		return "", fmt.Errorf("address %q: a single cell is required", addr)
	}
	return address.Format(sheet, b.StartRow, b.StartCol), nil
}
