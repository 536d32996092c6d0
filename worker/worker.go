// Package worker implements the worker pool (C5): a fixed number of
// goroutines that pull ready transactions off the dispatch loop's queue,
// run them against the storage engine and the application layer, and
// drive the abort/retry/commit cycle described by the scheduler's
// invariants.
package worker

import (
	"runtime"
	"sync/atomic"

	"github.com/marsleezm/spec-calvin/cmap"
	"github.com/marsleezm/spec-calvin/configs"
	"github.com/marsleezm/spec-calvin/lifecycle"
	"github.com/marsleezm/spec-calvin/messaging"
	"github.com/marsleezm/spec-calvin/queue"
	"github.com/marsleezm/spec-calvin/recon"
	"github.com/marsleezm/spec-calvin/txn"
)

// Application is the normal-execution contract a worker drives a
// transaction through. Implementations live in package application.
// Execute reports txn.ExecSuspended when the body issued a remote read it
// cannot proceed without; the worker then leaves the manager parked in
// activeTxns rather than committing or retrying it.
type Application interface {
	Execute(sm *txn.StorageManager) (txn.ExecResult, error)
}

// Pool owns N worker goroutines sharing one ready queue and the maps
// tracking in-flight work.
type Pool struct {
	nodeID string
	app    Application
	recon  *recon.Engine
	conn   *messaging.Connection

	ready       *queue.Queue
	reconReady  *queue.Queue
	activeTxns  *cmap.Map
	reconTxns   *cmap.Map

	onComplete func(committed bool)

	deconstructorInvoked int32
}

// SetOnComplete registers a callback invoked once per transaction, right
// after it reaches Committed or Aborted. The dispatch loop uses this to
// keep its pendingTxns backpressure counter accurate.
func (p *Pool) SetOnComplete(fn func(committed bool)) {
	p.onComplete = fn
}

// New builds a worker pool. Call Start to spin up its goroutines.
func New(nodeID string, app Application, reconEngine *recon.Engine, conn *messaging.Connection) *Pool {
	return &Pool{
		nodeID:     nodeID,
		app:        app,
		recon:      reconEngine,
		conn:       conn,
		ready:      queue.New(0),
		reconReady: queue.New(0),
		activeTxns: cmap.New(),
		reconTxns:  cmap.New(),
	}
}

// Submit enqueues a freshly-dispatched transaction for execution.
func (p *Pool) Submit(sm *txn.StorageManager) {
	p.activeTxns.Put(sm.Txn.TxnID, sm)
	if sm.Txn.Dependent {
		p.reconReady.Push(sm)
	} else {
		p.ready.Push(sm)
	}
}

// Start launches n worker goroutines, each pinned to its own CPU starting
// at baseCoreOffset when configs.PinCPU is enabled.
func (p *Pool) Start(n int, baseCoreOffset int) {
	for i := 0; i < n; i++ {
		core := baseCoreOffset + i
		go func() {
			lifecycle.PinToCPU(core)
			defer runtime.UnlockOSThread()
			p.loop()
		}()
	}
}

// Stop signals every worker goroutine to exit after its current poll.
func (p *Pool) Stop() {
	atomic.StoreInt32(&p.deconstructorInvoked, 1)
}

// loop is the three-source polling cycle: a normal ready transaction
// first, then an inbound message (a remote-read result or a recon reply
// from another node), then a ready recon transaction. Each source is
// tried in order and the loop spins back to the top whenever
// none of them had work, rather than blocking on any single source.
func (p *Pool) loop() {
	var msg messaging.Message
	for atomic.LoadInt32(&p.deconstructorInvoked) == 0 {
		if v, ok := p.ready.Pop(); ok {
			p.runNormal(v.(*txn.StorageManager))
			continue
		}
		if p.conn != nil && p.conn.GetMessage(&msg) {
			p.handleMessage(&msg)
			continue
		}
		if v, ok := p.reconReady.Pop(); ok {
			p.runRecon(v.(*txn.StorageManager))
			continue
		}
	}
}

func (p *Pool) handleMessage(msg *messaging.Message) {
	switch msg.Type {
	case configs.ReadResult:
		if v, ok := p.activeTxns.Lookup(msg.TxnID); ok {
			sm := v.(*txn.StorageManager)
			sm.Lock()
			ready := sm.ApplyRemoteRead(msg.Key, msg.Value)
			sm.Unlock()
			if ready {
				sm.Txn.Status = txn.Fresh
				p.ready.Push(sm)
			}
		}
	case configs.ReconIndexReply:
		if p.recon != nil {
			p.recon.Deliver(msg)
		}
		if msg.Batch != nil {
			for _, t := range msg.Batch.Txns {
				if v, ok := p.reconTxns.Lookup(t.TxnID); ok {
					p.reconReady.Push(v)
				}
			}
		}
	}
}

// runNormal executes one incarnation of a ready transaction. On success it
// commits through the storage engine; on an abort signal observed either
// before or during execution, it retries with a bumped abort generation
// rather than surfacing the abort to the caller, matching the Calvin
// design's "retry transparently, never block the batch" rule. A body that
// reports ExecSuspended instead leaves the manager parked in activeTxns,
// awaiting a READ_RESULT to land via handleMessage. Retries are bounded by
// configs.MaxTxnRetries: a body whose error is persistent across
// incarnations (not a transient lock conflict) would otherwise wedge the
// worker forever, since Retry() always replays from the same Seed.
func (p *Pool) runNormal(sm *txn.StorageManager) {
	for attempt := 0; ; attempt++ {
		if sm.IsAborted() {
			if attempt >= configs.MaxTxnRetries {
				p.finish(sm, false)
				return
			}
			sm.Retry()
			continue
		}
		sm.Txn.Status = txn.Executing
		result, err := p.app.Execute(sm)
		if err != nil {
			if attempt >= configs.MaxTxnRetries {
				configs.TxnPrint(sm.Txn.TxnID, "giving up after %d retries: %v", attempt, err)
				p.finish(sm, false)
				return
			}
			sm.Retry()
			continue
		}
		if result == txn.ExecSuspended {
			sm.Txn.Status = txn.Suspended
			return
		}
		if sm.IsAborted() {
			if attempt >= configs.MaxTxnRetries {
				p.finish(sm, false)
				return
			}
			sm.Retry()
			continue
		}
		ok, aborted := sm.Commit()
		if aborted {
			if attempt >= configs.MaxTxnRetries {
				p.finish(sm, false)
				return
			}
			sm.Retry()
			continue
		}
		p.finish(sm, ok)
		return
	}
}

// finish marks sm Committed or Aborted, drops it from activeTxns, and
// notifies the dispatch loop so its backpressure counter stays accurate.
func (p *Pool) finish(sm *txn.StorageManager, committed bool) {
	if committed {
		sm.Txn.Status = txn.Committed
	} else {
		sm.Txn.Status = txn.Aborted
	}
	p.activeTxns.Erase(sm.Txn.TxnID)
	if p.onComplete != nil {
		p.onComplete(committed)
	}
}

func (p *Pool) runRecon(sm *txn.StorageManager) {
	if p.recon == nil {
		return
	}
	// A broadcast may already have landed (handleMessage's ReconIndexReply
	// case caches it via Deliver before re-pushing here), so check the
	// cache before re-running recon — Run would just return nil again for
	// a non-responder node.
	out, cached := p.recon.Resolve(sm.Txn.TxnID)
	if !cached {
		out = p.recon.Run(sm.Txn)
	}
	if out == nil {
		// not this node's designated responder and no broadcast has
		// landed yet: park until one arrives via handleMessage.
		p.reconTxns.Put(sm.Txn.TxnID, sm)
		return
	}
	if out.Err != nil {
		// ReconUnresolvable: the transaction is never replied to and is
		// simply dropped, matching the "discard, no retry" decision for
		// recon passes that don't resolve.
		p.finish(sm, false)
		return
	}
	sm.Txn.ReadSet = out.ReadSet
	sm.Txn.WriteSet = out.WriteSet
	sm.Txn.Dependent = false
	p.ready.Push(sm)
}
