package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/roach88/gridcalc/internal/facade"
)

// ErrStopped is returned for commands submitted after the loop stopped.
var ErrStopped = errors.New("workbook loop stopped")

// Loop owns a facade.Workbook and applies commands to it one at a time on
// a single goroutine.
//
// Lifecycle:
//  1. NewLoop wraps the workbook
//  2. Run is called from exactly ONE goroutine
//  3. Do submits work from any goroutine and waits for its result
//  4. Stop, or cancelling Run's context, ends the loop
type Loop struct {
	wb     *facade.Workbook
	queue  *commandQueue
	logger *slog.Logger
}

// NewLoop creates a loop around wb.
func NewLoop(wb *facade.Workbook, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{wb: wb, queue: newCommandQueue(), logger: logger}
}

// Run processes commands until ctx is cancelled or Stop is called.
//
// A failing or panicking command is reported to its caller and the loop
// continues. A command whose caller gave up before it was reached is
// skipped.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("workbook loop starting", "workbook", l.wb.Name())

	for {
		if cmd, ok := l.queue.TryDequeue(); ok {
			l.process(ctx, cmd)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Info("workbook loop stopping: context cancelled")
			l.queue.Close()
			l.drain(ErrStopped)
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel closes when the queue is closed, which
			// fires this case immediately. A stale signal for a command
			// already taken loops back harmlessly.
			if l.queue.Len() == 0 && l.queue.Closed() {
				l.logger.Info("workbook loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once queued commands are processed.
func (l *Loop) Stop() {
	l.queue.Close()
}

func (l *Loop) drain(err error) {
	for {
		cmd, ok := l.queue.TryDequeue()
		if !ok {
			return
		}
		cmd.done <- result{err: err}
	}
}

func (l *Loop) process(loopCtx context.Context, cmd command) {
	if err := cmd.ctx.Err(); err != nil {
		cmd.done <- result{err: err}
		return
	}
	cmd.done <- l.safeRun(cmd)

	// A cancelled caller may leave a pass half done; finish it so the next
	// command reads settled values.
	if eng := l.wb.Engine(); eng.Busy() {
		if err := eng.Run(loopCtx); err != nil {
			l.logger.Warn("finishing interrupted calculation", "err", err)
		}
	}
}

func (l *Loop) safeRun(cmd command) (res result) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("command panicked", "panic", r, "stack", string(debug.Stack()))
			res = result{err: fmt.Errorf("command panicked: %v", r)}
		}
	}()
	v, err := cmd.run(cmd.ctx, l.wb)
	return result{value: v, err: err}
}

// Do runs fn on the loop goroutine and returns its result. It returns
// early with ctx's error if ctx ends first; fn may still run later.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context, wb *facade.Workbook) (any, error)) (any, error) {
	cmd := command{ctx: ctx, run: fn, done: make(chan result, 1)}
	if !l.queue.Enqueue(cmd) {
		return nil, ErrStopped
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-cmd.done:
		return r.value, r.err
	}
}

// call is Do with a typed result.
func call[T any](ctx context.Context, l *Loop, fn func(ctx context.Context, wb *facade.Workbook) (T, error)) (T, error) {
	v, err := l.Do(ctx, func(ctx context.Context, wb *facade.Workbook) (any, error) {
		return fn(ctx, wb)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}
