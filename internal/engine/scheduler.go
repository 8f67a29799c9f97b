package engine

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/roach88/gridcalc/internal/value"
)

// PassStats describes one calculation pass: the work between the first
// edit after an idle period and the queue draining again.
type PassStats struct {
	ID         string        `json:"id"`
	Seq        int64         `json:"seq"`
	Started    time.Time     `json:"started"`
	Elapsed    time.Duration `json:"elapsed"`
	Calculated int           `json:"calculated"`
	Forced     int           `json:"forced"`
	Errors     int           `json:"errors"`
}

// Busy reports whether a pass is in progress.
func (w *Workbook) Busy() bool {
	return w.pass != nil || w.queue.Len() > 0
}

// Queued returns the number of cells waiting in the calculation queue.
func (w *Workbook) Queued() int { return w.queue.Len() }

// LastPass returns the statistics of the most recent completed pass.
func (w *Workbook) LastPass() PassStats { return w.lastPass }

// OnCalculationDone registers fn to run after every completed pass.
func (w *Workbook) OnCalculationDone(fn func(PassStats)) {
	w.onDone = append(w.onDone, fn)
}

// OnNextCalculationDone registers fn to run once, after the next completed
// pass.
func (w *Workbook) OnNextCalculationDone(fn func(PassStats)) {
	w.onNext = append(w.onNext, fn)
}

// Tick calculates queued cells until the slice budget is spent or the pass
// completes. It reports whether the workbook is idle afterwards.
//
// At least one cell is calculated per call, so a budget shorter than a
// single evaluation still makes progress.
func (w *Workbook) Tick(ctx context.Context) bool {
	start := w.clock.Now()
	for ctx.Err() == nil {
		if !w.step() {
			return true
		}
		if w.clock.Now().Sub(start) >= w.sliceBudget {
			break
		}
	}
	return !w.Busy()
}

// Run ticks until the pass completes, yielding the processor between
// slices. If cancelled first it returns an ErrCodeCancelled CalcError that
// wraps the context's error; the workbook stays consistent and a later Tick
// or Run picks up where this one stopped.
func (w *Workbook) Run(ctx context.Context) error {
	for !w.Tick(ctx) {
		if err := ctx.Err(); err != nil {
			return newCancelledError("calculate", err)
		}
		runtime.Gosched()
	}
	return nil
}

// ForceCalculate drains the queue without yielding. It gives up with a
// timeout error once the force timeout has elapsed.
func (w *Workbook) ForceCalculate() error {
	deadline := w.clock.Now().Add(w.forceTimeout)
	for w.step() {
		if w.clock.Now().After(deadline) && w.Busy() {
			err := newTimeoutError(w.queue.Len(), w.forceTimeout)
			w.logger.Warn("forced calculation timed out", "queued", w.queue.Len(), "timeout", w.forceTimeout)
			return err
		}
	}
	return nil
}

// step calculates one cell. When the queue is empty it first sweeps cells
// dirtied in this pass that never became ready, such as members of a
// reference cycle. It returns false once there is nothing left to do, after
// closing the pass.
func (w *Workbook) step() bool {
	c, ok := w.queue.Pop()
	if !ok {
		if !w.sweep() {
			w.finishPass()
			return false
		}
		c, _ = w.queue.Pop()
	}
	w.calculate(c)
	return true
}

// sweep queues the earliest-dirtied cell that is still dirty. One cell at a
// time, so cells downstream of a cycle still wait for their parents.
func (w *Workbook) sweep() bool {
	for ; w.sweepAt < len(w.pending); w.sweepAt++ {
		c := w.pending[w.sweepAt]
		if c.dirty {
			w.logger.Debug("forcing cell left dirty", "cell", c.Address())
			c.forced = true
			w.queue.Push(c)
			return true
		}
	}
	return false
}

func (w *Workbook) calculate(c *Cell) {
	if !c.dirty {
		return
	}
	c.value = w.evaluate(c)
	c.dirty = false
	c.attempts = 0
	if w.pass != nil {
		w.pass.Calculated++
		if c.forced {
			w.pass.Forced++
		}
	}
	c.forced = false
	for _, child := range c.children {
		w.parentMadeClean(child)
	}
}

// evaluate runs a cell's program. A panic becomes #CALCERROR! and is
// recorded; it never escapes the scheduler.
func (w *Workbook) evaluate(c *Cell) (v value.Value) {
	defer func() {
		if r := recover(); r != nil {
			addr := c.Address()
			msg := fmt.Sprint(r)
			if e, ok := r.(*value.Error); ok {
				msg = e.Message
			}
			w.logger.Warn("formula evaluation failed",
				"cell", addr,
				"panic", r,
				"stack", string(debug.Stack()))
			w.calcErrors = append(w.calcErrors, Diagnostic{
				Kind:    KindCalculation,
				Address: addr,
				Code:    value.CodeCalc.String(),
				Message: msg,
			})
			if w.pass != nil {
				w.pass.Errors++
			}
			v = &value.Error{Code: value.CodeCalc, Origin: addr, Message: msg}
		}
	}()

	v = value.Scalar(c.prog.Eval(&c.ctx), c.row, c.col)
	if v == nil {
		return value.Blank{}
	}
	if e, ok := value.AsError(v); ok {
		return e.WithOrigin(c.Address())
	}
	return v
}

func (w *Workbook) beginPass() {
	if w.pass != nil {
		return
	}
	w.passSeq++
	w.pass = &PassStats{ID: w.passID(), Seq: w.passSeq, Started: w.clock.Now()}
}

func (w *Workbook) finishPass() {
	p := w.pass
	if p == nil {
		return
	}
	w.pass = nil
	p.Elapsed = w.clock.Now().Sub(p.Started)
	clear(w.pending)
	w.pending = w.pending[:0]
	w.sweepAt = 0
	w.lastPass = *p

	w.logger.Debug("calculation pass done",
		"pass", p.ID,
		"seq", p.Seq,
		"calculated", p.Calculated,
		"forced", p.Forced,
		"errors", p.Errors,
		"elapsed", p.Elapsed)

	next := w.onNext
	w.onNext = nil
	for _, fn := range next {
		fn(*p)
	}
	for _, fn := range w.onDone {
		fn(*p)
	}
}
