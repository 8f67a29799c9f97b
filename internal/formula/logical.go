package formula

import (
	"github.com/roach88/gridcalc/internal/value"
)

func registerLogical(l *Library) {
	l.Register("IF", fnIf)
	l.Register("CHOOSE", fnChoose)
	l.Register("IFERROR", fnIfError)
	l.Register("IFNA", fnIfNA)
	l.Register("ISERROR", isFunc(func(v value.Value) bool { return v.Kind() == value.KindError }))
	l.Register("ISNA", isFunc(func(v value.Value) bool { return value.IsCode(v, value.CodeNA) }))
	l.Register("ISBLANK", isFunc(func(v value.Value) bool { return v.Kind() == value.KindBlank }))
	l.Register("ISNUMBER", isFunc(func(v value.Value) bool { return v.Kind() == value.KindNumber }))
	l.Register("ISTEXT", isFunc(func(v value.Value) bool { return v.Kind() == value.KindText }))
	l.Register("AND", fnAnd)
	l.Register("OR", fnOr)
	l.Register("NOT", fnNot)
	l.Register("TRUE", constant(value.Bool(true)))
	l.Register("FALSE", constant(value.Bool(false)))
	l.Register("NA", constant(value.NewError(value.CodeNA, "NA()")))
}

// fnIf evaluates only the branch it returns.
func fnIf(args []Thunk, ctx *Context) value.Value {
	if err := arity("IF", args, 2, 3); err != nil {
		return err
	}
	cond, err := boolean(args, 0, ctx)
	if err != nil {
		return err
	}
	if cond {
		return arg(args, 1, ctx)
	}
	if len(args) < 3 {
		return value.Bool(false)
	}
	return arg(args, 2, ctx)
}

func fnChoose(args []Thunk, ctx *Context) value.Value {
	if err := arity("CHOOSE", args, 2, -1); err != nil {
		return err
	}
	i, err := integer(args, 0, ctx)
	if err != nil {
		return err
	}
	if i < 1 || i >= len(args) {
		return value.Errorf(value.CodeValue, "CHOOSE: index %d outside 1..%d", i, len(args)-1)
	}
	return arg(args, i, ctx)
}

func fnIfError(args []Thunk, ctx *Context) value.Value {
	if err := arity("IFERROR", args, 2, 2); err != nil {
		return err
	}
	v := scalar(args, 0, ctx)
	if v.Kind() == value.KindError {
		return arg(args, 1, ctx)
	}
	return v
}

func fnIfNA(args []Thunk, ctx *Context) value.Value {
	if err := arity("IFNA", args, 2, 2); err != nil {
		return err
	}
	v := scalar(args, 0, ctx)
	if value.IsCode(v, value.CodeNA) {
		return arg(args, 1, ctx)
	}
	return v
}

func isFunc(test func(value.Value) bool) Func {
	return func(args []Thunk, ctx *Context) value.Value {
		if err := arity("IS", args, 1, 1); err != nil {
			return err
		}
		return value.Bool(test(scalar(args, 0, ctx)))
	}
}

func constant(v value.Value) Func {
	return func(args []Thunk, _ *Context) value.Value {
		if err := arity("constant", args, 0, 0); err != nil {
			return err
		}
		return v
	}
}

// logicals gathers the logical inputs of AND and OR. Text and blanks inside
// references are ignored; a call with no logical inputs is #VALUE!.
func logicals(name string, args []Thunk, ctx *Context) ([]bool, *value.Error) {
	var out []bool
	for v, fromRef := range cells(args, ctx) {
		if e, ok := value.AsError(v); ok {
			return nil, e
		}
		switch v.Kind() {
		case value.KindNumber, value.KindBool:
			out = append(out, v.Bool())
		case value.KindText:
			if fromRef {
				continue
			}
			b, err := toBool(v)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, value.Errorf(value.CodeValue, "%s: no logical values", name)
	}
	return out, nil
}

func fnAnd(args []Thunk, ctx *Context) value.Value {
	bs, err := logicals("AND", args, ctx)
	if err != nil {
		return err
	}
	for _, b := range bs {
		if !b {
			return value.Bool(false)
		}
	}
	return value.Bool(true)
}

func fnOr(args []Thunk, ctx *Context) value.Value {
	bs, err := logicals("OR", args, ctx)
	if err != nil {
		return err
	}
	for _, b := range bs {
		if b {
			return value.Bool(true)
		}
	}
	return value.Bool(false)
}

func fnNot(args []Thunk, ctx *Context) value.Value {
	if err := arity("NOT", args, 1, 1); err != nil {
		return err
	}
	b, err := boolean(args, 0, ctx)
	if err != nil {
		return err
	}
	return value.Bool(!b)
}
