// Package recon implements the reconnaissance pass (C4): for a dependent
// transaction whose read/write set can't be computed from its input alone,
// one reader — the designated responder — runs the transaction's recon
// phase to discover which keys it actually touches, then reports the
// resolved set back to the sequencer as a cumulative reply.
package recon

import (
	"sync"

	"github.com/marsleezm/spec-calvin/cmap"
	"github.com/marsleezm/spec-calvin/configs"
	"github.com/marsleezm/spec-calvin/messaging"
	"github.com/marsleezm/spec-calvin/txn"
)

// Application is the narrow recon-phase contract: given a transaction,
// report the keys it would read and write without performing any writes.
// Implementations live in package application.
type Application interface {
	ReconExecute(t *txn.Txn) (readSet, writeSet []string, err error)
}

// Outcome is what a resolved reconnaissance pass produces.
type Outcome struct {
	TxnID    uint64
	ReadSet  []string
	WriteSet []string
	Err      error
}

// sender is the narrow network contract the recon engine needs to report
// resolved outcomes. Satisfied by *messaging.Connection; a fake in tests
// doesn't need a live socket.
type sender interface {
	Send(msg *messaging.Message) error
}

// Engine runs recon passes for dependent transactions local to this node
// and reports resolved outcomes back to the sequencer.
type Engine struct {
	nodeID string
	app    Application
	conn   sender

	// mu guards pending/batchNum: a resolved outcome is appended to pending
	// and flushed as one cumulative reply, so a concurrent Run on another
	// goroutine never interleaves a half-built batch onto the wire.
	mu       sync.Mutex
	pending  []*txn.Txn
	batchNum uint64

	// resolved caches the outcome for every TxnID this node has already
	// seen resolved, whether it computed it locally or received it from
	// the designated responder. A separate map is fine here: recon
	// passes are comparatively rare and CPU-heavy, unlike the hot
	// per-key paths in storage.
	resolved cmap.Map
}

// NewEngine builds a reconnaissance engine for one node. conn may be nil in
// tests that never exercise the network path.
func NewEngine(nodeID string, app Application, conn *messaging.Connection) *Engine {
	e := &Engine{nodeID: nodeID, app: app, resolved: *cmap.New()}
	if conn != nil {
		e.conn = conn
	}
	return e
}

// Resolve returns the cached outcome for txnID, if any.
func (e *Engine) Resolve(txnID uint64) (*Outcome, bool) {
	v, ok := e.resolved.Lookup(txnID)
	if !ok {
		return nil, false
	}
	return v.(*Outcome), true
}

// Run executes recon for t if this node is its designated responder,
// caches the outcome locally, and reports it to the sequencer. Non-
// responder nodes instead wait for the reply to land via Deliver.
func (e *Engine) Run(t *txn.Txn) *Outcome {
	if !t.IsDesignatedResponder(e.nodeID) {
		return nil
	}
	readSet, writeSet, err := e.app.ReconExecute(t)
	out := &Outcome{TxnID: t.TxnID, ReadSet: readSet, WriteSet: writeSet, Err: err}
	e.resolved.Put(t.TxnID, out)
	if err == nil {
		t.ReadSet = readSet
		t.WriteSet = writeSet
		e.reportToSequencer(t)
	}
	return out
}

// reportToSequencer queues t's resolved access sets and flushes every
// outcome accumulated so far as one batch-shaped reply addressed to
// configs.SequencerNode, rather than fanning a separate message out to
// each reader/writer node. A failed Send leaves pending untouched, so the
// next resolved outcome's reply carries it along too.
func (e *Engine) reportToSequencer(t *txn.Txn) {
	if e.conn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, t)
	batch := &txn.Batch{BatchNumber: e.batchNum, Txns: e.pending}
	msg := messaging.NewReconIndexReplyBatch(e.nodeID, configs.SequencerNode, batch)
	if err := e.conn.Send(msg); err != nil {
		return
	}
	e.batchNum++
	e.pending = nil
}

// Deliver records a reconnaissance outcome that arrived from a remote
// designated responder, one per transaction carried in the reply batch.
func (e *Engine) Deliver(msg *messaging.Message) {
	if msg.Batch == nil {
		return
	}
	for _, t := range msg.Batch.Txns {
		e.resolved.Put(t.TxnID, &Outcome{TxnID: t.TxnID, ReadSet: t.ReadSet, WriteSet: t.WriteSet})
	}
}

// Forget drops a cached outcome once the owning transaction has fully
// committed or aborted, so the cache doesn't grow without bound.
func (e *Engine) Forget(txnID uint64) {
	e.resolved.Erase(txnID)
}
