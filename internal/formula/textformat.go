package formula

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/roach88/gridcalc/internal/value"
)

func fnText(args []Thunk, ctx *Context) value.Value {
	if err := arity("TEXT", args, 2, 2); err != nil {
		return err
	}
	v := scalar(args, 0, ctx)
	if e, ok := value.AsError(v); ok {
		return e
	}
	pattern, err := text(args, 1, ctx)
	if err != nil {
		return err
	}
	s, err := FormatValue(v, pattern)
	if err != nil {
		return err
	}
	return value.Text(s)
}

// FormatValue renders a resolved value with a number-format pattern such as
// "#,##0.00", "0.0%", "0.00E+00", "#,##0,\"k\"" or "yyyy-mm-dd hh:mm:ss".
// Sections separated by ';' apply to positive, negative, zero and text
// values. An empty pattern or "General" uses the value's own text.
func FormatValue(v value.Value, pattern string) (string, *value.Error) {
	if pattern == "" || strings.EqualFold(pattern, "General") {
		return v.Text(), nil
	}
	sections := splitSections(pattern)

	f := v.Num()
	if v.Kind() == value.KindBlank {
		f = 0
	}
	if math.IsNaN(f) {
		// Non-numeric text goes through the text section, if any.
		if len(sections) >= 4 {
			return strings.ReplaceAll(unquote(sections[3]), "@", v.Text()), nil
		}
		if strings.Contains(sections[0], "@") {
			return strings.ReplaceAll(unquote(sections[0]), "@", v.Text()), nil
		}
		return v.Text(), nil
	}

	section, sign := sections[0], ""
	switch {
	case f < 0 && len(sections) >= 2:
		section, f = sections[1], -f
	case f < 0:
		sign, f = "-", -f
	case f == 0 && len(sections) >= 3:
		section = sections[2]
	}

	toks := tokenizeFormat(section)
	if isDateFormat(toks) {
		if sign != "" {
			return "", value.NewError(value.CodeValue, "TEXT: negative date")
		}
		return formatDate(f, toks), nil
	}
	return sign + formatNumber(f, toks), nil
}

func splitSections(pattern string) []string {
	var out []string
	var b strings.Builder
	quoted := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '"':
			quoted = !quoted
		case c == '\\' && !quoted && i+1 < len(pattern):
			b.WriteByte(c)
			i++
			c = pattern[i]
		case c == ';' && !quoted:
			out = append(out, b.String())
			b.Reset()
			continue
		}
		b.WriteByte(c)
	}
	return append(out, b.String())
}

// unquote strips quotes and backslash escapes from a text section.
func unquote(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
		case c == '\\' && i+1 < len(s):
			i++
			b.WriteByte(s[i])
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

type fmtKind uint8

const (
	tokLiteral fmtKind = iota
	tokDigits          // run of 0 # ? , . and the E+00 exponent
	tokPercent
	tokYear
	tokMonth
	tokMinute
	tokDay
	tokHour
	tokSecond
	tokFraction
	tokAMPM
)

type fmtToken struct {
	kind fmtKind
	text string
	n    int // run length
}

// tokenizeFormat splits one format section. Quoted text and backslash
// escapes become literals; bracketed colour and condition codes are dropped.
func tokenizeFormat(s string) []fmtToken {
	var toks []fmtToken
	rs := []rune(s)
	lit := func(text string) {
		if n := len(toks); n > 0 && toks[n-1].kind == tokLiteral {
			toks[n-1].text += text
			return
		}
		toks = append(toks, fmtToken{kind: tokLiteral, text: text})
	}
	run := func(i int, r rune) int {
		j := i
		for j < len(rs) && unicode.ToLower(rs[j]) == r {
			j++
		}
		return j - i
	}

	for i := 0; i < len(rs); {
		r := rs[i]
		lower := unicode.ToLower(r)
		switch {
		case r == '"':
			j := i + 1
			for j < len(rs) && rs[j] != '"' {
				j++
			}
			lit(string(rs[i+1 : j]))
			i = j + 1
		case r == '\\' && i+1 < len(rs):
			lit(string(rs[i+1]))
			i += 2
		case r == '_' && i+1 < len(rs):
			lit(" ")
			i += 2
		case r == '[':
			j := i + 1
			for j < len(rs) && rs[j] != ']' {
				j++
			}
			i = j + 1
		case r == '%':
			toks = append(toks, fmtToken{kind: tokPercent, text: "%"})
			i++
		case strings.HasPrefix(strings.ToUpper(string(rs[i:])), "AM/PM"):
			toks = append(toks, fmtToken{kind: tokAMPM, text: string(rs[i : i+5])})
			i += 5
		case strings.HasPrefix(strings.ToUpper(string(rs[i:])), "A/P"):
			toks = append(toks, fmtToken{kind: tokAMPM, text: string(rs[i : i+3])})
			i += 3
		case lower == 'y', lower == 'm', lower == 'd', lower == 'h':
			n := run(i, lower)
			kind := map[rune]fmtKind{'y': tokYear, 'm': tokMonth, 'd': tokDay, 'h': tokHour}[lower]
			toks = append(toks, fmtToken{kind: kind, n: n})
			i += n
		case lower == 's':
			n := run(i, 's')
			toks = append(toks, fmtToken{kind: tokSecond, n: n})
			i += n
			if i+1 < len(rs) && rs[i] == '.' && rs[i+1] == '0' {
				k := run(i+1, '0')
				toks = append(toks, fmtToken{kind: tokFraction, n: k})
				i += 1 + k
			}
		case strings.ContainsRune("0#?,.", r):
			j := i
			for j < len(rs) {
				if strings.ContainsRune("0#?,.", rs[j]) {
					j++
					continue
				}
				if (rs[j] == 'E' || rs[j] == 'e') && j+1 < len(rs) && (rs[j+1] == '+' || rs[j+1] == '-') {
					j += 2
					continue
				}
				break
			}
			toks = append(toks, fmtToken{kind: tokDigits, text: string(rs[i:j])})
			i = j
		default:
			lit(string(r))
			i++
		}
	}
	disambiguateMinutes(toks)
	return toks
}

// disambiguateMinutes turns m/mm into minutes when it follows an hour or
// precedes a second.
func disambiguateMinutes(toks []fmtToken) {
	for i := range toks {
		if toks[i].kind != tokMonth || toks[i].n > 2 {
			continue
		}
		if prev := prevField(toks, i); prev >= 0 && toks[prev].kind == tokHour {
			toks[i].kind = tokMinute
			continue
		}
		if next := nextField(toks, i); next >= 0 && toks[next].kind == tokSecond {
			toks[i].kind = tokMinute
		}
	}
}

func prevField(toks []fmtToken, i int) int {
	for j := i - 1; j >= 0; j-- {
		if toks[j].kind != tokLiteral {
			return j
		}
	}
	return -1
}

func nextField(toks []fmtToken, i int) int {
	for j := i + 1; j < len(toks); j++ {
		if toks[j].kind != tokLiteral {
			return j
		}
	}
	return -1
}

func isDateFormat(toks []fmtToken) bool {
	for _, t := range toks {
		switch t.kind {
		case tokYear, tokMonth, tokMinute, tokDay, tokHour, tokSecond, tokAMPM:
			return true
		}
	}
	return false
}

func formatDate(serial float64, toks []fmtToken) string {
	t := TimeFromSerial(serial)
	hasFraction, twelveHour := false, false
	for _, tok := range toks {
		hasFraction = hasFraction || tok.kind == tokFraction
		twelveHour = twelveHour || tok.kind == tokAMPM
	}
	if !hasFraction {
		t = t.Round(time.Second)
	}

	pad := func(v, n int) string {
		if n >= 2 {
			return fmt.Sprintf("%02d", v)
		}
		return strconv.Itoa(v)
	}
	var b strings.Builder
	for _, tok := range toks {
		switch tok.kind {
		case tokLiteral, tokDigits, tokPercent:
			b.WriteString(tok.text)
		case tokYear:
			if tok.n <= 2 {
				fmt.Fprintf(&b, "%02d", t.Year()%100)
			} else {
				fmt.Fprintf(&b, "%04d", t.Year())
			}
		case tokMonth:
			switch {
			case tok.n <= 2:
				b.WriteString(pad(int(t.Month()), tok.n))
			case tok.n == 3:
				b.WriteString(t.Month().String()[:3])
			case tok.n == 4:
				b.WriteString(t.Month().String())
			default:
				b.WriteString(t.Month().String()[:1])
			}
		case tokDay:
			switch {
			case tok.n <= 2:
				b.WriteString(pad(t.Day(), tok.n))
			case tok.n == 3:
				b.WriteString(t.Weekday().String()[:3])
			default:
				b.WriteString(t.Weekday().String())
			}
		case tokHour:
			h := t.Hour()
			if twelveHour {
				h %= 12
				if h == 0 {
					h = 12
				}
			}
			b.WriteString(pad(h, tok.n))
		case tokMinute:
			b.WriteString(pad(t.Minute(), tok.n))
		case tokSecond:
			b.WriteString(pad(t.Second(), tok.n))
		case tokFraction:
			ms := fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
			b.WriteString("." + (ms + strings.Repeat("0", tok.n))[:tok.n])
		case tokAMPM:
			b.WriteString(meridiem(tok.text, t.Hour() >= 12))
		}
	}
	return b.String()
}

func meridiem(token string, pm bool) string {
	am, p := "AM", "PM"
	if len(token) == 3 {
		am, p = "A", "P"
	}
	if unicode.IsLower(rune(token[0])) {
		am, p = strings.ToLower(am), strings.ToLower(p)
	}
	if pm {
		return p
	}
	return am
}

// numberPattern is the parsed numeric core of a format section.
type numberPattern struct {
	minInt   int
	group    bool
	fracMin  int
	fracMax  int
	scale    int // trailing commas, each dividing by 1000
	expSign  bool
	expShown bool
	expMin   int
}

func parseNumberPattern(core string) numberPattern {
	var p numberPattern
	mantissa := core
	if k := strings.IndexAny(core, "Ee"); k >= 0 {
		p.expShown = true
		p.expSign = core[k+1] == '+'
		p.expMin = strings.Count(core[k+2:], "0")
		mantissa = core[:k]
	}
	intPart, fracPart, hasDot := strings.Cut(mantissa, ".")
	if hasDot {
		trimmed := strings.TrimRight(fracPart, ",")
		p.scale = len(fracPart) - len(trimmed)
		fracPart = trimmed
	} else {
		trimmed := strings.TrimRight(intPart, ",")
		p.scale = len(intPart) - len(trimmed)
		intPart = trimmed
	}
	p.group = strings.Contains(intPart, ",")
	p.minInt = strings.Count(intPart, "0")
	p.fracMin = strings.Count(fracPart, "0")
	p.fracMax = len(fracPart) - strings.Count(fracPart, ",")
	return p
}

func formatNumber(f float64, toks []fmtToken) string {
	core := ""
	for _, t := range toks {
		switch t.kind {
		case tokPercent:
			f *= 100
		case tokDigits:
			if core == "" {
				core = t.text
			}
		}
	}
	if core == "" {
		return tokensText(toks)
	}
	p := parseNumberPattern(core)
	for range p.scale {
		f /= 1000
	}

	digits := p.render(f)
	var b strings.Builder
	placed := false
	for _, t := range toks {
		switch {
		case t.kind == tokDigits && !placed:
			b.WriteString(digits)
			placed = true
		case t.kind == tokDigits:
		default:
			b.WriteString(t.text)
		}
	}
	return b.String()
}

func tokensText(toks []fmtToken) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.text)
	}
	return b.String()
}

func (p numberPattern) render(f float64) string {
	if !p.expShown {
		return p.fixed(RoundHalfAway(f, p.fracMax))
	}
	exp := 0
	if f != 0 {
		exp = int(math.Floor(math.Log10(f)))
	}
	m := RoundHalfAway(f/math.Pow(10, float64(exp)), p.fracMax)
	if m >= 10 {
		m /= 10
		exp++
	}
	s := p.fixed(m) + "E"
	switch {
	case exp < 0:
		s += "-"
	case p.expSign:
		s += "+"
	}
	return s + fmt.Sprintf("%0*d", max(p.expMin, 1), abs(exp))
}

func (p numberPattern) fixed(f float64) string {
	s := strconv.FormatFloat(f, 'f', p.fracMax, 64)
	intDigits, frac, _ := strings.Cut(s, ".")
	for len(frac) > p.fracMin && strings.HasSuffix(frac, "0") {
		frac = frac[:len(frac)-1]
	}
	if intDigits == "0" && p.minInt == 0 {
		intDigits = ""
	}
	if len(intDigits) < p.minInt {
		intDigits = strings.Repeat("0", p.minInt-len(intDigits)) + intDigits
	}
	if p.group {
		intDigits = groupThousands(intDigits)
	}
	if frac == "" {
		return intDigits
	}
	return intDigits + "." + frac
}

func groupThousands(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
