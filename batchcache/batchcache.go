// Package batchcache buffers sequencer batches that arrive out of order so
// the dispatch loop can always advance strictly by batch number, without
// ever blocking the connection goroutine that deserialises incoming
// batches off the wire.
package batchcache

import (
	"sync"

	"github.com/marsleezm/spec-calvin/txn"
)

// Cache holds batches keyed by batch number until the dispatch loop is
// ready to consume them in order.
type Cache struct {
	mu      sync.Mutex
	pending map[uint64]*txn.Batch
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{pending: make(map[uint64]*txn.Batch)}
}

// Add buffers a batch that arrived before the dispatch loop was ready for
// it, e.g. a recon batch that completed out of sequencer order.
func (c *Cache) Add(b *txn.Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[b.BatchNumber] = b
}

// Take removes and returns the batch with the given number, if buffered.
func (c *Cache) Take(batchNumber uint64) (*txn.Batch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.pending[batchNumber]
	if ok {
		delete(c.pending, batchNumber)
	}
	return b, ok
}

// DrainUntilFound repeatedly calls fetch (which should block, e.g. on a
// connection read) until either the target batch number shows up directly
// from fetch or is found already buffered; any other batch numbers fetch
// returns along the way are stashed for later. This is how the dispatch
// loop tolerates batches completing out of order without stalling on the
// specific number it currently needs.
func (c *Cache) DrainUntilFound(batchNumber uint64, fetch func() (*txn.Batch, bool)) (*txn.Batch, bool) {
	if b, ok := c.Take(batchNumber); ok {
		return b, true
	}
	for {
		b, ok := fetch()
		if !ok {
			return nil, false
		}
		if b.BatchNumber == batchNumber {
			return b, true
		}
		c.Add(b)
	}
}

// Len reports how many batches are currently buffered.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
