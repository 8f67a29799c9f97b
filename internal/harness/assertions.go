package harness

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/gridcalc/internal/facade"
)

// tolerance is the relative difference below which two numbers match.
const tolerance = 1e-9

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Ref      string // Reference the assertion read, if any
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s", e.Type)
	if e.Ref != "" {
		fmt.Fprintf(&buf, " %s", e.Ref)
	}
	fmt.Fprintf(&buf, ": expected %s, got %s", e.Expected, e.Actual)
	return buf.String()
}

// checkValue compares the value at ref with want.
func checkValue(wb *facade.Workbook, ref string, want any, raw bool) error {
	var (
		got any
		err error
	)
	if raw {
		got, err = wb.GetRawValue(ref)
	} else {
		got, err = wb.GetValue(ref)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", ref, err)
	}
	if !valuesMatch(want, got) {
		return &AssertionError{
			Type:     AssertValue,
			Ref:      ref,
			Expected: describe(want),
			Actual:   describe(got),
		}
	}
	return nil
}

// valuesMatch compares an expected value from YAML with a value read from a
// workbook. Both sides go through JSON first so ints, floats and nested
// slices share one representation.
func valuesMatch(want, got any) bool {
	return equalJSON(generic(want), generic(got))
}

func generic(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func equalJSON(a, b any) bool {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false
		}
		if av == bv {
			return true
		}
		scale := math.Max(math.Abs(av), math.Abs(bv))
		return math.Abs(av-bv) <= tolerance*math.Max(scale, 1)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalJSON(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !equalJSON(v, w) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

func describe(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func checkCount(kind string, want, got int) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%d", want),
		Actual:   fmt.Sprintf("%d", got),
	}
}

// EvaluateAssertions evaluates all assertions against the result and the
// workbook after the flow. Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, wb *facade.Workbook) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertValue:
			err = checkValue(wb, a.Ref, a.Value, a.Raw)
		case AssertBuildErrors:
			err = checkCount(a.Type, a.Count, len(wb.BuildErrors()))
		case AssertWarnings:
			err = checkCount(a.Type, a.Count, len(wb.Warnings()))
		case AssertCalculationErrors:
			err = checkCount(a.Type, a.Count, len(wb.CalculationErrors()))
		case AssertPasses:
			err = checkCount(a.Type, a.Count, len(result.Passes()))
		case AssertEntered:
			want := slices.Sorted(slices.Values(a.Refs))
			if want == nil {
				want = []string{}
			}
			got := wb.Entered()
			if got == nil {
				got = []string{}
			}
			if !slices.Equal(want, got) {
				err = &AssertionError{Type: a.Type, Expected: describe(want), Actual: describe(got)}
			}
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}

		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return errs
}
