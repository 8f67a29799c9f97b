// Package formula is the spreadsheet function catalogue.
//
// Every function has the same shape: it receives its arguments as unevaluated
// thunks plus the evaluation context of the calling cell, and returns a
// value.Value. Functions decide which arguments to evaluate, so IF and CHOOSE
// only evaluate the branch they return.
//
// A Library is an explicit instance. The engine owns one per workbook and
// keeps user-supplied functions beside it, so custom functions never leak
// between workbooks.
package formula

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/roach88/gridcalc/internal/address"
	"github.com/roach88/gridcalc/internal/value"
)

// Thunk evaluates one argument in the given context.
type Thunk func(*Context) value.Value

// Func is the uniform signature of every spreadsheet function.
type Func func(args []Thunk, ctx *Context) value.Value

// Clock supplies the current time to TODAY and NOW.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Context describes the cell being evaluated.
type Context struct {
	Sheet string
	Row   int
	Col   int

	Clock  Clock
	Logger *slog.Logger
}

// Address returns the calling cell in Sheet!A1 form.
func (c *Context) Address() string {
	return address.Format(c.Sheet, c.Row, c.Col)
}

func (c *Context) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock.Now()
}

func (c *Context) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Library maps upper-cased function names to implementations.
type Library struct {
	funcs map[string]Func
}

// NewLibrary returns a library holding every built-in function.
func NewLibrary() *Library {
	l := &Library{funcs: make(map[string]Func, 128)}
	registerAggregate(l)
	registerConditional(l)
	registerLookup(l)
	registerRank(l)
	registerFinancial(l)
	registerStats(l)
	registerDate(l)
	registerText(l)
	registerLogical(l)
	registerMath(l)
	return l
}

// Register adds or replaces a function. Names are case-insensitive.
func (l *Library) Register(name string, fn Func) {
	l.funcs[strings.ToUpper(name)] = fn
}

// Lookup finds a function by case-insensitive name.
func (l *Library) Lookup(name string) (Func, bool) {
	fn, ok := l.funcs[strings.ToUpper(name)]
	return fn, ok
}

// Names returns every registered name, sorted.
func (l *Library) Names() []string {
	return slices.Sorted(maps.Keys(l.funcs))
}

// Clone returns an independent copy that can take its own registrations.
func (l *Library) Clone() *Library {
	return &Library{funcs: maps.Clone(l.funcs)}
}

// Len returns the number of registered functions.
func (l *Library) Len() int { return len(l.funcs) }
