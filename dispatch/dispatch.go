// Package dispatch implements the dispatch loop / lock manager thread
// (C6): it pulls batches in strict batch-number order, assigns the next
// slice of transactions to the worker pool under admission control, and
// tracks how many transactions are in flight so it never oversubscribes
// the workers.
package dispatch

import (
	"sync/atomic"
	"time"

	"github.com/marsleezm/spec-calvin/batchcache"
	"github.com/marsleezm/spec-calvin/configs"
	"github.com/marsleezm/spec-calvin/txn"
)

// Sink is where a fully-admitted transaction is handed off; the worker
// pool satisfies this.
type Sink interface {
	Submit(sm *txn.StorageManager)
}

// Fetch pulls the next batch off the wire (or nil, false on timeout / no
// more input); the messaging layer's Connection satisfies this indirectly
// through a small adapter at the call site.
type Fetch func() (*txn.Batch, bool)

// Loop is the dispatch loop's state: which batch/offset it is currently
// admitting from, and how many transactions are outstanding across the
// whole worker pool.
type Loop struct {
	backend txn.Storage
	sink    Sink
	cache   *batchcache.Cache
	spec    *txn.SpeculativeStore

	batchNumber uint64
	batchOffset int
	current     *txn.Batch

	pendingTxns int64

	throughput [60]int64 // ring buffer of per-second committed counts
	tick       int

	stopped int32
}

// NewLoop constructs a dispatch loop starting from batch number 0. spec is
// the node-wide speculative store every admitted transaction's
// StorageManager shares, so concurrent writers on this node can cascade
// aborts to each other (may be nil where nothing needs to observe
// uncommitted writes, e.g. a single-writer test harness).
func NewLoop(backend txn.Storage, sink Sink, spec *txn.SpeculativeStore) *Loop {
	return &Loop{
		backend: backend,
		sink:    sink,
		cache:   batchcache.New(),
		spec:    spec,
	}
}

// Stop requests the loop to exit after its current admission pass.
func (l *Loop) Stop() {
	atomic.StoreInt32(&l.stopped, 1)
}

// Run drives admission until Stop is called or fetch permanently runs dry.
func (l *Loop) Run(fetch Fetch) {
	for atomic.LoadInt32(&l.stopped) == 0 {
		if !l.admitNext(fetch) {
			return
		}
	}
}

// admitNext admits up to configs.BatchSlice transactions from the current
// batch, respecting the configs.MaxPending backpressure limit; it fetches
// a new batch (tolerating out-of-order arrival via the batch cache) once
// the current one is exhausted.
func (l *Loop) admitNext(fetch Fetch) bool {
	if l.current == nil || l.batchOffset >= len(l.current.Txns) {
		b, ok := l.cache.DrainUntilFound(l.batchNumber, fetch)
		if !ok {
			return false
		}
		l.current = b
		l.batchOffset = 0
		l.batchNumber++
	}

	admitted := 0
	for l.batchOffset < len(l.current.Txns) && admitted < configs.BatchSlice {
		if atomic.LoadInt64(&l.pendingTxns) >= int64(configs.MaxPending) {
			break
		}
		t := l.current.Txns[l.batchOffset]
		if t.StartTimeUnixNano == 0 {
			t.StartTimeUnixNano = time.Now().UnixNano()
		}
		l.batchOffset++
		admitted++
		atomic.AddInt64(&l.pendingTxns, 1)
		l.sink.Submit(txn.NewStorageManager(t, l.backend, l.spec))
	}
	return true
}

// Complete must be called by the worker pool (or a test harness standing
// in for it) whenever a transaction it admitted finishes, committed or
// aborted, so pendingTxns stays accurate.
func (l *Loop) Complete(committed bool) {
	atomic.AddInt64(&l.pendingTxns, -1)
	if committed {
		l.throughput[l.tick%len(l.throughput)]++
	}
}

// Pending reports the current in-flight transaction count.
func (l *Loop) Pending() int64 {
	return atomic.LoadInt64(&l.pendingTxns)
}

// Tick advances the throughput ring buffer by one second, returning the
// just-closed second's committed count.
func (l *Loop) Tick() int64 {
	closed := l.throughput[l.tick%len(l.throughput)]
	l.tick++
	l.throughput[l.tick%len(l.throughput)] = 0
	return closed
}
