package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/efp"

	"github.com/roach88/gridcalc/internal/address"
)

// ParseError reports formula text that could not be turned into an
// expression tree.
type ParseError struct {
	Formula string
	Pos     int // token index
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s (token %d)", e.Formula, e.Reason, e.Pos)
}

// Operator precedence, loosest first. Prefix negation binds tighter than
// exponentiation, so -2^2 is 4.
var infixPrecedence = map[string]int{
	"=": 1, "<>": 1, "<": 1, ">": 1, "<=": 1, ">=": 1,
	"&": 2,
	"+": 3, "-": 3,
	"*": 4, "/": 4,
	"^": 5,
}

// ParseFormula turns formula text such as "=SUM(A1:A3)*2" into an expression
// tree. The leading '=' is optional.
func ParseFormula(text string) (*Node, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "=")
	if text == "" {
		return nil, &ParseError{Formula: text, Reason: "empty formula"}
	}

	ps := efp.ExcelParser()
	raw := ps.Parse("=" + text)

	toks := make([]efp.Token, 0, len(raw))
	for _, t := range raw {
		if t.TType == efp.TokenTypeWhitespace {
			continue
		}
		if t.TType == efp.TokenTypeUnknown {
			return nil, &ParseError{Formula: text, Reason: fmt.Sprintf("unexpected %q", t.TValue)}
		}
		toks = append(toks, t)
	}

	p := &formulaParser{formula: text, toks: toks}
	n, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, p.fail("unexpected %q", p.toks[p.pos].TValue)
	}
	return n, nil
}

type formulaParser struct {
	formula string
	toks    []efp.Token
	pos     int
}

func (p *formulaParser) fail(format string, args ...any) error {
	return &ParseError{Formula: p.formula, Pos: p.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *formulaParser) peek() (efp.Token, bool) {
	if p.pos >= len(p.toks) {
		return efp.Token{}, false
	}
	return p.toks[p.pos], true
}

func (p *formulaParser) next() (efp.Token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *formulaParser) expr(minPrec int) (*Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.TType != efp.TokenTypeOperatorInfix {
			return left, nil
		}
		prec, known := infixPrecedence[t.TValue]
		if !known {
			return nil, p.fail("unsupported operator %q", t.TValue)
		}
		if prec < minPrec {
			return left, nil
		}
		p.pos++
		right, err := p.expr(prec + 1)
		if err != nil {
			return nil, err
		}
		op, _ := OpForSymbol(t.TValue)
		left = Binary(op, left, right)
	}
}

func (p *formulaParser) unary() (*Node, error) {
	t, ok := p.peek()
	if ok && t.TType == efp.TokenTypeOperatorPrefix {
		p.pos++
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		if t.TValue == "-" {
			return Unary(OpNeg, operand), nil
		}
		return Unary(OpPos, operand), nil
	}
	n, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.TType != efp.TokenTypeOperatorPostfix {
			return n, nil
		}
		p.pos++
		n = Unary(OpPercent, n)
	}
}

func (p *formulaParser) primary() (*Node, error) {
	t, ok := p.next()
	if !ok {
		return nil, p.fail("unexpected end of formula")
	}
	switch t.TType {
	case efp.TokenTypeOperand:
		return p.operand(t)
	case efp.TokenTypeSubexpression:
		if t.TSubType != efp.TokenSubTypeStart {
			return nil, p.fail("unexpected ')'")
		}
		n, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		closing, ok := p.next()
		if !ok || closing.TType != efp.TokenTypeSubexpression || closing.TSubType != efp.TokenSubTypeStop {
			return nil, p.fail("missing ')'")
		}
		return n, nil
	case efp.TokenTypeFunction:
		if t.TSubType != efp.TokenSubTypeStart {
			return nil, p.fail("unexpected end of call")
		}
		if strings.EqualFold(t.TValue, "ARRAY") {
			return p.array()
		}
		return p.call(t.TValue)
	}
	return nil, p.fail("unexpected %q", t.TValue)
}

func (p *formulaParser) operand(t efp.Token) (*Node, error) {
	switch t.TSubType {
	case efp.TokenSubTypeNumber:
		f, err := strconv.ParseFloat(t.TValue, 64)
		if err != nil {
			return nil, p.fail("bad number %q", t.TValue)
		}
		return Num(f), nil
	case efp.TokenSubTypeText:
		return Str(t.TValue), nil
	case efp.TokenSubTypeLogical:
		return Boolean(strings.EqualFold(t.TValue, "TRUE")), nil
	case efp.TokenSubTypeError:
		return &Node{Type: NodeValue, Value: t.TValue}, nil
	case efp.TokenSubTypeRange:
		if _, err := address.Parse(t.TValue); err == nil {
			return Ref(t.TValue), nil
		}
		return NamedRef(t.TValue), nil
	}
	return nil, p.fail("unsupported operand %q", t.TValue)
}

// call parses arguments up to the matching Function/Stop token. Empty
// arguments, as in IF(A1,,2), become blank literals.
func (p *formulaParser) call(name string) (*Node, error) {
	n := Call(name)
	if t, ok := p.peek(); ok && t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStop {
		p.pos++
		return n, nil
	}
	for {
		var arg *Node
		if t, ok := p.peek(); ok && (t.TType == efp.TokenTypeArgument || (t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStop)) {
			arg = &Node{Type: NodeValue}
		} else {
			var err error
			if arg, err = p.expr(0); err != nil {
				return nil, err
			}
		}
		n.Args = append(n.Args, arg)

		t, ok := p.next()
		switch {
		case !ok:
			return nil, p.fail("unterminated call to %s", name)
		case t.TType == efp.TokenTypeArgument:
			continue
		case t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStop:
			return n, nil
		default:
			return nil, p.fail("unexpected %q in call to %s", t.TValue, name)
		}
	}
}

// array parses {a,b;c,d}, which the tokenizer emits as nested ARRAY and
// ARRAYROW function tokens.
func (p *formulaParser) array() (*Node, error) {
	n := Array()
	for {
		t, ok := p.next()
		if !ok {
			return nil, p.fail("unterminated array")
		}
		switch {
		case t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStop:
			return n, nil
		case t.TType == efp.TokenTypeArgument:
			continue
		case t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStart && strings.EqualFold(t.TValue, "ARRAYROW"):
			row, err := p.arrayRow()
			if err != nil {
				return nil, err
			}
			n.Rows = append(n.Rows, row)
		default:
			return nil, p.fail("unexpected %q in array", t.TValue)
		}
	}
}

func (p *formulaParser) arrayRow() ([]*Node, error) {
	var row []*Node
	for {
		t, ok := p.peek()
		if !ok {
			return nil, p.fail("unterminated array row")
		}
		switch {
		case t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStop:
			p.pos++
			return row, nil
		case t.TType == efp.TokenTypeArgument:
			p.pos++
		default:
			el, err := p.unary()
			if err != nil {
				return nil, err
			}
			row = append(row, el)
		}
	}
}
