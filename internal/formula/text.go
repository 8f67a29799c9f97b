package formula

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/gridcalc/internal/value"
)

func registerText(l *Library) {
	l.Register("LEFT", fnLeft)
	l.Register("RIGHT", fnRight)
	l.Register("MID", fnMid)
	l.Register("LEN", fnLen)
	l.Register("TRIM", fnTrim)
	l.Register("SUBSTITUTE", fnSubstitute)
	l.Register("UPPER", caseFunc("UPPER", func() cases.Caser { return cases.Upper(language.Und) }))
	l.Register("LOWER", caseFunc("LOWER", func() cases.Caser { return cases.Lower(language.Und) }))
	l.Register("PROPER", caseFunc("PROPER", func() cases.Caser { return cases.Title(language.Und) }))
	l.Register("CONCATENATE", fnConcatenate)
	l.Register("CONCAT", fnConcat)
	l.Register("FIND", fnFind)
	l.Register("SEARCH", fnSearch)
	l.Register("VALUE", fnValue)
	l.Register("TEXT", fnText)
}

func countArg(name string, args []Thunk, i int, ctx *Context, def int) (int, *value.Error) {
	n, err := integerOr(args, i, ctx, def)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, value.Errorf(value.CodeValue, "%s: negative count %d", name, n)
	}
	return n, nil
}

func fnLeft(args []Thunk, ctx *Context) value.Value {
	if err := arity("LEFT", args, 1, 2); err != nil {
		return err
	}
	s, err := text(args, 0, ctx)
	if err != nil {
		return err
	}
	n, err := countArg("LEFT", args, 1, ctx, 1)
	if err != nil {
		return err
	}
	r := []rune(s)
	return value.Text(string(r[:min(n, len(r))]))
}

func fnRight(args []Thunk, ctx *Context) value.Value {
	if err := arity("RIGHT", args, 1, 2); err != nil {
		return err
	}
	s, err := text(args, 0, ctx)
	if err != nil {
		return err
	}
	n, err := countArg("RIGHT", args, 1, ctx, 1)
	if err != nil {
		return err
	}
	r := []rune(s)
	return value.Text(string(r[len(r)-min(n, len(r)):]))
}

func fnMid(args []Thunk, ctx *Context) value.Value {
	if err := arity("MID", args, 3, 3); err != nil {
		return err
	}
	s, err := text(args, 0, ctx)
	if err != nil {
		return err
	}
	start, err := integer(args, 1, ctx)
	if err != nil {
		return err
	}
	if start < 1 {
		return value.Errorf(value.CodeValue, "MID: start %d below 1", start)
	}
	n, err := countArg("MID", args, 2, ctx, 0)
	if err != nil {
		return err
	}
	r := []rune(s)
	if start > len(r) {
		return value.Text("")
	}
	return value.Text(string(r[start-1 : min(start-1+n, len(r))]))
}

func fnLen(args []Thunk, ctx *Context) value.Value {
	if err := arity("LEN", args, 1, 1); err != nil {
		return err
	}
	s, err := text(args, 0, ctx)
	if err != nil {
		return err
	}
	return value.Number(utf8.RuneCountInString(s))
}

// fnTrim drops leading and trailing spaces and collapses inner runs of
// spaces to one.
func fnTrim(args []Thunk, ctx *Context) value.Value {
	if err := arity("TRIM", args, 1, 1); err != nil {
		return err
	}
	s, err := text(args, 0, ctx)
	if err != nil {
		return err
	}
	words := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' })
	return value.Text(strings.Join(words, " "))
}

func fnSubstitute(args []Thunk, ctx *Context) value.Value {
	if err := arity("SUBSTITUTE", args, 3, 4); err != nil {
		return err
	}
	s, err := text(args, 0, ctx)
	if err != nil {
		return err
	}
	old, err := text(args, 1, ctx)
	if err != nil {
		return err
	}
	repl, err := text(args, 2, ctx)
	if err != nil {
		return err
	}
	if old == "" {
		return value.Text(s)
	}
	if !present(args, 3, ctx) {
		return value.Text(strings.ReplaceAll(s, old, repl))
	}
	nth, err := integer(args, 3, ctx)
	if err != nil {
		return err
	}
	if nth < 1 {
		return value.Errorf(value.CodeValue, "SUBSTITUTE: instance %d below 1", nth)
	}
	at := 0
	for i := 1; ; i++ {
		k := strings.Index(s[at:], old)
		if k < 0 {
			return value.Text(s)
		}
		if i == nth {
			return value.Text(s[:at+k] + repl + s[at+k+len(old):])
		}
		at += k + len(old)
	}
}

func caseFunc(name string, caser func() cases.Caser) Func {
	return func(args []Thunk, ctx *Context) value.Value {
		if err := arity(name, args, 1, 1); err != nil {
			return err
		}
		s, err := text(args, 0, ctx)
		if err != nil {
			return err
		}
		return value.Text(caser().String(s))
	}
}

func fnConcatenate(args []Thunk, ctx *Context) value.Value {
	var b strings.Builder
	for i := range args {
		s, err := text(args, i, ctx)
		if err != nil {
			return err
		}
		b.WriteString(s)
	}
	return value.Text(b.String())
}

// fnConcat joins every cell of every argument, ranges included.
func fnConcat(args []Thunk, ctx *Context) value.Value {
	var b strings.Builder
	for v := range cells(args, ctx) {
		if e, ok := value.AsError(v); ok {
			return e
		}
		b.WriteString(v.Text())
	}
	return value.Text(b.String())
}

// findArgs reads (needle, haystack, [start]) and returns the haystack from
// the 1-based rune start, plus the rune offset skipped.
func findArgs(name string, args []Thunk, ctx *Context) (needle, hay string, skipped int, err *value.Error) {
	if err = arity(name, args, 2, 3); err != nil {
		return
	}
	if needle, err = text(args, 0, ctx); err != nil {
		return
	}
	if hay, err = text(args, 1, ctx); err != nil {
		return
	}
	start, err := integerOr(args, 2, ctx, 1)
	if err != nil {
		return
	}
	r := []rune(hay)
	if start < 1 || start > len(r)+1 {
		err = value.Errorf(value.CodeValue, "%s: start %d outside the text", name, start)
		return
	}
	return needle, string(r[start-1:]), start - 1, nil
}

func fnFind(args []Thunk, ctx *Context) value.Value {
	needle, hay, skipped, err := findArgs("FIND", args, ctx)
	if err != nil {
		return err
	}
	k := strings.Index(hay, needle)
	if k < 0 {
		return value.Errorf(value.CodeValue, "FIND: %q not found", needle)
	}
	return value.Number(skipped + utf8.RuneCountInString(hay[:k]) + 1)
}

// fnSearch is a case-insensitive FIND that understands * and ? wildcards.
func fnSearch(args []Thunk, ctx *Context) value.Value {
	needle, hay, skipped, err := findArgs("SEARCH", args, ctx)
	if err != nil {
		return err
	}
	loc := searchPattern(needle).FindStringIndex(hay)
	if loc == nil {
		return value.Errorf(value.CodeValue, "SEARCH: %q not found", needle)
	}
	return value.Number(skipped + utf8.RuneCountInString(hay[:loc[0]]) + 1)
}

func searchPattern(needle string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)")
	escaped := false
	for _, r := range needle {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '~':
			escaped = true
		case r == '*':
			b.WriteString(".*?")
		case r == '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return regexp.MustCompile(b.String())
}

// fnValue parses number text. A trailing percent sign divides by 100 and
// thousands separators are ignored.
func fnValue(args []Thunk, ctx *Context) value.Value {
	if err := arity("VALUE", args, 1, 1); err != nil {
		return err
	}
	v := scalar(args, 0, ctx)
	if e, ok := value.AsError(v); ok {
		return e
	}
	if v.Kind() == value.KindNumber {
		return v
	}
	s := strings.ReplaceAll(strings.TrimSpace(v.Text()), ",", "")
	scale := 1.0
	if rest, ok := strings.CutSuffix(s, "%"); ok {
		s, scale = rest, 0.01
	}
	f, ok := value.ParseNumber(s)
	if !ok {
		return value.Errorf(value.CodeValue, "VALUE: %q is not a number", v.Text())
	}
	return value.Number(f * scale)
}
