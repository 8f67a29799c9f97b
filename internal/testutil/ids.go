package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs hands out predictable identifiers: prefix-000001,
// prefix-000002, and so on.
//
// Engines take an id function for calculation passes; plugging in Next
// makes pass ids stable across runs, which golden snapshots rely on.
//
// Thread-safety: Next is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix means "id".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialIDs{prefix: prefix}
}

// Next returns the next identifier.
func (g *SequentialIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%06d", g.prefix, g.n)
}

// Reset restarts the sequence so a scenario can be replayed.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
