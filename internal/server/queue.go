package server

import (
	"context"
	"sync"

	"github.com/roach88/gridcalc/internal/facade"
)

// command is one unit of work for the workbook goroutine.
type command struct {
	ctx  context.Context
	run  func(ctx context.Context, wb *facade.Workbook) (any, error)
	done chan result // buffered, size 1
}

type result struct {
	value any
	err   error
}

// commandQueue is a thread-safe FIFO queue of commands.
//
// HTTP handlers enqueue from any goroutine while the Loop's Run goroutine
// dequeues. The queue uses a channel for signaling to enable context-aware
// waiting in the Run loop.
type commandQueue struct {
	mu       sync.Mutex
	commands []command
	closed   bool
	signal   chan struct{} // Signals command availability (buffered, size 1)
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]command, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a command to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *commandQueue) Enqueue(c command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.commands = append(q.commands, c)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front command without blocking.
func (q *commandQueue) TryDequeue() (command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return command{}, false
	}

	c := q.commands[0]

	// Nil out the slot so the backing array does not pin the closure and
	// the caller's context.
	q.commands[0] = command{}
	if len(q.commands) == 1 {
		q.commands = q.commands[:0]
	} else {
		q.commands = q.commands[1:]
	}

	return c, true
}

// Wait returns a channel that signals when commands may be available.
// It is closed by Close.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Closed reports whether Close was called.
func (q *commandQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting commands and wakes the waiter. Commands already
// queued are still handed out by TryDequeue.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
