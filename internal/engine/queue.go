package engine

// calcQueue is the FIFO of cells waiting to be calculated.
//
// The queue is unbounded so a single edit can enqueue arbitrarily many
// dependents. Unlike a channel it is only ever touched by the workbook's
// owner, so it needs no locking.
type calcQueue struct {
	cells []*Cell
}

func newCalcQueue() *calcQueue {
	return &calcQueue{cells: make([]*Cell, 0, 64)}
}

// Push adds a cell to the back of the queue. A cell already queued is not
// added twice.
func (q *calcQueue) Push(c *Cell) bool {
	if c.queued {
		return false
	}
	c.queued = true
	q.cells = append(q.cells, c)
	return true
}

// Pop removes and returns the front cell.
func (q *calcQueue) Pop() (*Cell, bool) {
	if len(q.cells) == 0 {
		return nil, false
	}
	c := q.cells[0]

	// Nil out the slot so the backing array does not pin cells of a
	// workbook that has been reset.
	q.cells[0] = nil
	if len(q.cells) == 1 {
		q.cells = q.cells[:0]
	} else {
		q.cells = q.cells[1:]
	}
	c.queued = false
	return c, true
}

// Len returns the current queue length.
func (q *calcQueue) Len() int {
	return len(q.cells)
}

// Clear empties the queue.
func (q *calcQueue) Clear() {
	for _, c := range q.cells {
		c.queued = false
	}
	clear(q.cells)
	q.cells = q.cells[:0]
}
