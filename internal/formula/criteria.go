package formula

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/gridcalc/internal/value"
)

// Predicate tests one cell against a compiled criterion.
type Predicate func(value.Value) bool

// CompileCriteria turns a criterion such as ">=10", "<>x", "ap*" or 5 into
// a predicate. Comparison prefixes are <, >, <=, >=, <> and =; without one
// the criterion tests equality. Text matches case-insensitively, and * and ?
// are wildcards in equality tests (~ escapes them).
//
// Compiled predicates are cached by criterion, so a criteria function
// re-evaluated on every pass compiles its criterion once.
func CompileCriteria(crit value.Value) Predicate {
	crit = value.Resolve(crit)
	return criteriaCache.get(criterionKey(crit), func() Predicate { return compileCriteria(crit) })
}

// Criterion and wildcard caches are dropped whole once they hold this many
// entries.
const maxCached = 4096

var (
	criteriaCache = newMemo[Predicate]()
	wildcardCache = newMemo[*regexp.Regexp]()
)

// memo is a bounded, concurrency-safe cache of compiled values.
type memo[T any] struct {
	mu     sync.Mutex
	items  map[string]T
	misses int
}

func newMemo[T any]() *memo[T] {
	return &memo[T]{items: make(map[string]T)}
}

func (m *memo[T]) get(key string, build func() T) T {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.items[key]; ok {
		return v
	}
	v := build()
	if len(m.items) >= maxCached {
		clear(m.items)
	}
	m.items[key] = v
	m.misses++
	return v
}

// criterionKey identifies a criterion by kind and exact content. Numbers
// use their shortest exact form so distinct floats never share a key.
func criterionKey(crit value.Value) string {
	kind := strconv.Itoa(int(crit.Kind()))
	if crit.Kind() == value.KindNumber {
		return kind + ":" + strconv.FormatFloat(crit.Num(), 'g', -1, 64)
	}
	return kind + ":" + crit.Text()
}

func compileCriteria(crit value.Value) Predicate {
	switch crit.Kind() {
	case value.KindNumber, value.KindBool:
		return func(v value.Value) bool {
			return v.Kind() == crit.Kind() && v.Num() == crit.Num() ||
				crit.Kind() == value.KindNumber && isNumericText(v) && v.Num() == crit.Num()
		}
	case value.KindError:
		code := crit.(*value.Error).Code
		return func(v value.Value) bool { return value.IsCode(v, code) }
	case value.KindBlank:
		return func(v value.Value) bool { return v.Kind() == value.KindBlank }
	}

	op, operand := splitOperator(crit.Text())
	if n, ok := value.ParseNumber(strings.TrimSpace(operand)); ok {
		return numericPredicate(op, n)
	}
	if code, ok := value.ParseCode(operand); ok {
		is := func(v value.Value) bool { return value.IsCode(v, code) }
		if op == "<>" {
			return func(v value.Value) bool { return !is(v) }
		}
		return is
	}
	switch strings.ToUpper(operand) {
	case "TRUE", "FALSE":
		want := strings.EqualFold(operand, "TRUE")
		is := func(v value.Value) bool { return v.Kind() == value.KindBool && v.Bool() == want }
		if op == "<>" {
			return func(v value.Value) bool { return !is(v) }
		}
		if op == "" || op == "=" {
			return is
		}
	}
	return textPredicate(op, operand)
}

func splitOperator(s string) (op, rest string) {
	for _, p := range []string{"<=", ">=", "<>", "<", ">", "="} {
		if strings.HasPrefix(s, p) {
			return p, s[len(p):]
		}
	}
	return "", s
}

func isNumericText(v value.Value) bool {
	if v.Kind() != value.KindText {
		return false
	}
	_, ok := value.ParseNumber(strings.TrimSpace(v.Text()))
	return ok
}

func numericPredicate(op string, n float64) Predicate {
	num := func(v value.Value) (float64, bool) {
		switch {
		case v.Kind() == value.KindNumber:
			return v.Num(), true
		case isNumericText(v):
			return v.Num(), true
		}
		return 0, false
	}
	switch op {
	case "<":
		return func(v value.Value) bool { f, ok := num(v); return ok && f < n }
	case ">":
		return func(v value.Value) bool { f, ok := num(v); return ok && f > n }
	case "<=":
		return func(v value.Value) bool { f, ok := num(v); return ok && f <= n }
	case ">=":
		return func(v value.Value) bool { f, ok := num(v); return ok && f >= n }
	case "<>":
		return func(v value.Value) bool { f, ok := num(v); return !ok || f != n }
	}
	return func(v value.Value) bool { f, ok := num(v); return ok && f == n }
}

func textPredicate(op, operand string) Predicate {
	folded := value.Fold(operand)
	switch op {
	case "", "=":
		if operand == "" {
			return func(v value.Value) bool { return v.Kind() == value.KindBlank || v.Kind() == value.KindText && v.Text() == "" }
		}
		match := textMatcher(operand)
		return func(v value.Value) bool { return v.Kind() == value.KindText && match(v.Text()) }
	case "<>":
		if operand == "" {
			return func(v value.Value) bool { return v.Kind() != value.KindBlank && v.Text() != "" }
		}
		match := textMatcher(operand)
		return func(v value.Value) bool { return v.Kind() != value.KindText || !match(v.Text()) }
	}
	cmp := func(v value.Value) (int, bool) {
		if v.Kind() != value.KindText || isNumericText(v) {
			return 0, false
		}
		return strings.Compare(value.Fold(v.Text()), folded), true
	}
	switch op {
	case "<":
		return func(v value.Value) bool { c, ok := cmp(v); return ok && c < 0 }
	case ">":
		return func(v value.Value) bool { c, ok := cmp(v); return ok && c > 0 }
	case "<=":
		return func(v value.Value) bool { c, ok := cmp(v); return ok && c <= 0 }
	default:
		return func(v value.Value) bool { c, ok := cmp(v); return ok && c >= 0 }
	}
}

// textMatcher compares case-insensitively, honouring wildcards.
func textMatcher(pattern string) func(string) bool {
	if re := wildcard(pattern); re != nil {
		return re.MatchString
	}
	folded := value.Fold(pattern)
	return func(s string) bool { return value.Fold(s) == folded }
}

// wildcard compiles a pattern containing * or ? into an anchored,
// case-insensitive regexp. It returns nil when the pattern has no
// wildcards. Compiled patterns are cached.
func wildcard(pattern string) *regexp.Regexp {
	if !strings.ContainsAny(pattern, "*?") {
		return nil
	}
	return wildcardCache.get(pattern, func() *regexp.Regexp { return compileWildcard(pattern) })
}

func compileWildcard(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '~':
			escaped = true
		case r == '*':
			b.WriteString(".*")
		case r == '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		b.WriteString("~")
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
