// Package scheduler assembles the deterministic scheduler core (C1-C11)
// into one running node: dispatch loop, worker pool, reconnaissance
// engine, storage engine, messaging layer, and lifecycle supervisor.
package scheduler

import (
	"runtime"

	"github.com/marsleezm/spec-calvin/application"
	"github.com/marsleezm/spec-calvin/configs"
	"github.com/marsleezm/spec-calvin/dispatch"
	"github.com/marsleezm/spec-calvin/lifecycle"
	"github.com/marsleezm/spec-calvin/messaging"
	"github.com/marsleezm/spec-calvin/recon"
	"github.com/marsleezm/spec-calvin/storage"
	"github.com/marsleezm/spec-calvin/txn"
	"github.com/marsleezm/spec-calvin/worker"
)

// Config carries the knobs a node is started with. A zero NumWorkers falls
// back to configs.NumThreads; every other field is used as given.
type Config struct {
	NodeID       string
	ListenAddr   string
	NumWorkers   int
	DispatchCore int
	WorkerCoreOff int
}

// Node is one running scheduler instance.
type Node struct {
	cfg   Config
	shard *storage.Shard
	conn  *messaging.Connection
	pool  *worker.Pool
	recon *recon.Engine
	loop  *dispatch.Loop
	super *lifecycle.Supervisor
}

// NewNode wires up one node's components without starting any goroutines.
// table/attributeNum describe the single table the sample YCSB workload
// runs against; a real deployment would call AddTable per table it needs
// before NewNode returns.
func NewNode(cfg Config, table string, attributeNum int) (*Node, error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = configs.NumThreads
	}

	shard := storage.NewKV(cfg.NodeID, 0, configs.BenchmarkStorage, 0)
	shard.AddTable(table, attributeNum)

	conn, err := messaging.Listen(cfg.NodeID, cfg.ListenAddr)
	if err != nil {
		return nil, err
	}

	app := application.NewYCSB(table)
	adapter := storage.NewAdapter(shard)

	reconEngine := recon.NewEngine(cfg.NodeID, app, conn)
	pool := worker.New(cfg.NodeID, app, reconEngine, conn)
	spec := txn.NewSpeculativeStore()
	loop := dispatch.NewLoop(adapter, pool, spec)
	pool.SetOnComplete(loop.Complete)

	return &Node{
		cfg:   cfg,
		shard: shard,
		conn:  conn,
		pool:  pool,
		recon: reconEngine,
		loop:  loop,
		super: lifecycle.NewSupervisor(),
	}, nil
}

// Start launches the worker pool and the dispatch loop against fetch, the
// function that pulls the next sequencer batch (typically backed by the
// node's own Connection, or a test harness).
func (n *Node) Start(fetch dispatch.Fetch) {
	n.pool.Start(n.cfg.NumWorkers, n.cfg.WorkerCoreOff)
	n.super.RunPinned(n.cfg.DispatchCore, n.loop, func() {
		n.loop.Run(fetch)
	})
}

// Stop shuts the node down in order: dispatch loop, worker pool, then the
// network connection.
func (n *Node) Stop() {
	n.super.Shutdown()
	n.pool.Stop()
	n.conn.Close()
}

// Shard exposes the underlying storage shard, mainly so a sample
// application or test harness can pre-populate rows before Start.
func (n *Node) Shard() *storage.Shard {
	return n.shard
}

// SequencerFetch adapts this node's Connection into a dispatch.Fetch: it
// polls for an inbound batch message, yielding between polls so it never
// starves the worker goroutines sharing this CPU.
func (n *Node) SequencerFetch() dispatch.Fetch {
	return func() (*txn.Batch, bool) {
		var msg messaging.Message
		for {
			if n.conn.GetMessage(&msg) {
				if msg.Type == configs.TxnBatch || msg.Type == configs.ReconBatch {
					return msg.Batch, true
				}
				continue
			}
			runtime.Gosched()
		}
	}
}
