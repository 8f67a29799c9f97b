package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/gridcalc/internal/compiler"
	"github.com/roach88/gridcalc/internal/ir"
	"github.com/roach88/gridcalc/internal/value"
)

// Stage names the phase a build step belongs to.
type Stage string

const (
	StageConstruct Stage = "construct"
	StageLink      Stage = "link"
	StageSeed      Stage = "seed"
	StageDone      Stage = "done"
)

// Progress reports how far a build has come.
type Progress struct {
	NumComplete int    `json:"numComplete"`
	NumTotal    int    `json:"numTotal"`
	Message     string `json:"message"`
	Stage       Stage  `json:"stage"`
}

// Done reports whether the build has finished.
func (p Progress) Done() bool { return p.Stage == StageDone }

// Builder constructs a workbook as a queue of discrete steps, so a caller
// can interleave a large build with other work.
//
// The steps are, in order:
//  1. one construction step per worksheet: cells are created and constants
//     installed
//  2. one linking step per worksheet: formulas are compiled and their
//     parents discovered
//  3. one seeding step: reference cycles are analyzed and root cells are
//     queued for the first calculation pass
//
// Cancel a build by no longer calling Step. Nothing needs rolling back.
type Builder struct {
	wb      *Workbook
	steps   []buildStep
	next    int
	formula map[*Cell]ir.CellSpec
	cells   []*Cell // build order
}

type buildStep struct {
	stage   Stage
	message string
	run     func()
}

// NewBuilder prepares a build of desc. Nothing is built until Step or Run.
func NewBuilder(desc *ir.Workbook, opts ...Option) (*Builder, error) {
	if desc == nil {
		return nil, errors.New("build: nil workbook description")
	}
	if len(desc.Worksheets) == 0 {
		return nil, fmt.Errorf("build %q: workbook has no worksheets", desc.Name)
	}
	b := &Builder{
		wb:      newWorkbook(desc, opts...),
		formula: make(map[*Cell]ir.CellSpec),
	}
	for _, s := range b.wb.order {
		b.steps = append(b.steps, buildStep{
			stage:   StageConstruct,
			message: fmt.Sprintf("constructing %s", s.name),
			run:     func() { b.construct(s) },
		})
	}
	for _, s := range b.wb.order {
		b.steps = append(b.steps, buildStep{
			stage:   StageLink,
			message: fmt.Sprintf("linking %s", s.name),
			run:     func() { b.link(s) },
		})
	}
	b.steps = append(b.steps, buildStep{stage: StageSeed, message: "seeding calculation queue", run: b.seed})
	return b, nil
}

// Build constructs the whole workbook synchronously. The first calculation
// pass is queued but not run; call ForceCalculate or Run.
func Build(desc *ir.Workbook, opts ...Option) (*Workbook, error) {
	b, err := NewBuilder(desc, opts...)
	if err != nil {
		return nil, err
	}
	return b.Run(context.Background(), nil)
}

// Step runs build steps until the slice budget is spent, running at least
// one.
func (b *Builder) Step(ctx context.Context) (Progress, error) {
	if err := ctx.Err(); err != nil {
		return b.Progress(), newCancelledError("build step", err)
	}
	start := b.wb.clock.Now()
	for b.next < len(b.steps) {
		st := b.steps[b.next]
		st.run()
		b.next++
		b.wb.logger.Debug("build step done", "stage", st.stage, "step", st.message, "complete", b.next, "total", len(b.steps))
		if b.wb.clock.Now().Sub(start) >= b.wb.sliceBudget || ctx.Err() != nil {
			break
		}
	}
	return b.Progress(), nil
}

// Progress reports the state of the build.
func (b *Builder) Progress() Progress {
	p := Progress{NumComplete: b.next, NumTotal: len(b.steps)}
	if b.next >= len(b.steps) {
		p.Stage = StageDone
		p.Message = "done"
		return p
	}
	p.Stage = b.steps[b.next].stage
	p.Message = b.steps[b.next].message
	return p
}

// Workbook returns the built workbook, or ErrBuildIncomplete.
func (b *Builder) Workbook() (*Workbook, error) {
	if b.next < len(b.steps) {
		return nil, ErrBuildIncomplete
	}
	return b.wb, nil
}

// Run steps the build to completion, reporting progress after each slice.
func (b *Builder) Run(ctx context.Context, onProgress func(Progress)) (*Workbook, error) {
	for {
		p, err := b.Step(ctx)
		if err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(p)
		}
		if p.Done() {
			return b.wb, nil
		}
	}
}

func (b *Builder) construct(s *Worksheet) {
	w := b.wb
	s.built = 0
	for _, spec := range w.desc.Worksheets[s.name].Cells {
		if spec.Row < 1 || spec.Col < 1 {
			w.recordWarning(fmt.Sprintf("%s!R%dC%d", s.name, spec.Row, spec.Col), compiler.ErrBadAddress, "cell position out of range")
			continue
		}
		c, created := s.ensure(spec.Row, spec.Col)
		if !created {
			w.recordWarning(c.Address(), compiler.ErrBadAddress, "cell described more than once; last description wins")
		} else {
			b.cells = append(b.cells, c)
		}
		c.dirty = true
		c.format = spec.NF
		c.text = spec.F
		b.define(c, spec)
		s.built++
	}
}

// define installs a constant right away; formulas wait for the link stage,
// when every worksheet exists.
func (b *Builder) define(c *Cell, spec ir.CellSpec) {
	delete(b.formula, c)
	switch {
	case spec.Expression != nil:
	case len(spec.F) > 1 && spec.F[0] == '=':
	default:
		v := value.FromInput(spec.V)
		c.prog = b.wb.compiler.Constant(v)
		c.isValue = true
		c.isBlank = v.Kind() == value.KindBlank
		return
	}
	c.isValue = false
	c.isBlank = false
	b.formula[c] = spec
}

func (b *Builder) link(s *Worksheet) {
	w := b.wb
	s.built = 0
	for c := range s.Cells() {
		spec, ok := b.formula[c]
		if !ok {
			continue
		}
		node := spec.Expression
		if node == nil {
			n, err := ir.ParseFormula(spec.F)
			if err != nil {
				w.recordBuildError(c, compiler.ErrMalformedNode, err.Error())
				c.prog = constant(value.NewError(value.CodeRef, err.Error()))
				continue
			}
			node = n
		}
		w.compile(c, node)
		w.link(c)
		s.built++
	}
}

func (b *Builder) seed() {
	w := b.wb
	cycles := w.analyzeCycles()

	w.beginPass()
	w.pending = append(w.pending, b.cells...)
	roots := 0
	for _, c := range b.cells {
		if c.ready() {
			w.queue.Push(c)
			roots++
		}
	}
	w.logger.Debug("workbook built",
		"workbook", w.desc.Name,
		"sheets", len(w.order),
		"cells", len(b.cells),
		"roots", roots,
		"cycles", len(cycles),
		"build_errors", len(w.buildErrors))
}
