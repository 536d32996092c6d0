package txn

import (
	"sync"
	"sync/atomic"

	lock "github.com/viney-shih/go-lock"
)

// Storage is the versioned key/value collaborator the scheduler core reads
// and writes through. Concrete implementations live in package storage;
// this interface is the narrow surface spec.md §6 names. onWound lets the
// underlying lock manager notify a transaction that one of its locks was
// granted away to a lower-TxnID requester instead of making that requester
// wait — see storage/cc_2pl_nw.go's wound-based grant order.
type Storage interface {
	Read(key string) (interface{}, bool)
	Begin(txnID uint64, onWound func()) bool
	Write(key string, value interface{}, txnID uint64) bool
	Commit(txnID uint64) (ok bool, aborted bool)
	Unfetch(key string)
}

// ExecResult is what Application.Execute reports about one incarnation of
// a transaction body, beyond a plain error.
type ExecResult int

const (
	// ExecSuccess means every access the body needed was satisfied
	// locally; the manager may proceed to Commit.
	ExecSuccess ExecResult = iota
	// ExecSuspended means the body issued a remote read that has not
	// landed yet. The manager must be left exactly where it is — still
	// registered in the worker pool's activeTxns, not re-queued — until
	// the matching READ_RESULT message drains its PendingReads.
	ExecSuspended
)

// ReadFromEntry is a dependency record attached to a speculatively
// published value: when the writer's incarnation ends without committing,
// every ReadFromEntry registered against it fires, cascading the abort to
// whatever transaction read that value (I3, scenario 3). NumAborted
// disambiguates incarnations: a stale entry from an already-retried one is
// silently dropped.
type ReadFromEntry struct {
	DependingTxnID uint64
	AbortBit       *int32
	NumAborted     uint64
	AbortQueue     chan uint64

	// Counter reports the depending manager's *current* abort generation,
	// so Fire can tell a live dependency from one whose owner has since
	// retried for an unrelated reason.
	Counter func() uint64
}

// Fire notifies the dependent transaction, but only if the recorded abort
// generation still matches — a stale entry from an already-retried
// incarnation is silently dropped (I3).
func (e *ReadFromEntry) Fire(currentAbortCounter uint64) {
	if e.NumAborted != currentAbortCounter {
		return
	}
	if e.AbortBit != nil {
		atomic.StoreInt32(e.AbortBit, 1)
	}
	select {
	case e.AbortQueue <- e.DependingTxnID:
	default:
		// queue is never blocking; a full queue means the dependent
		// manager will observe the abort bit directly on its next poll.
	}
}

// PendingReadEntry is the manager-side counterpart of ReadFromEntry: it
// records that this transaction is waiting on a remote read and which
// abort generation the wait belongs to.
type PendingReadEntry struct {
	Key        string
	NumAborted uint64
}

// StorageManager is the per-transaction execution context described by
// spec.md §3. It is exclusively owned by whichever party currently holds
// it — the worker that built it, or the active-transaction map while the
// transaction is suspended.
type StorageManager struct {
	Txn     *Txn
	Storage Storage

	// Scratch is the local read buffer: values already fetched for this
	// incarnation, keyed by the key string.
	Scratch map[string]interface{}

	// abortBit is a single-word atomic signal: 0 means "not aborted",
	// non-zero means some other worker observed a conflicting write and
	// this transaction's commit must fail.
	abortBit int32
	// abortCounter disambiguates successive incarnations of the same
	// logical transaction so a stale abort signal from an older
	// incarnation is ignored.
	abortCounter uint64

	// PendingReads are outbound remote-read subscriptions not yet
	// satisfied.
	PendingReads map[string]*PendingReadEntry

	// dirty is the ordered list of keys written this incarnation, so
	// Commit can replay them in the order they were issued.
	dirty []string

	// spec is this node's speculative store: the real Storage only ever
	// exposes the last-committed value for a key (its row lock manager
	// copies a transaction's writes back on Finish, never before), so
	// cascading abort (I3) is tracked here instead, independent of the
	// underlying storage engine. Nil in tests that don't exercise it.
	spec *SpeculativeStore
	// published is every key this incarnation has Publish'd to spec, so
	// its speculative entries can be resolved once this incarnation ends.
	published []string
	// abortSignal is this manager's half of the ReadFromEntry.AbortQueue
	// contract: a cascading Fire pushes the firing txn's id here in
	// addition to setting the abort bit, for a caller that wants to know
	// which dependency triggered the abort rather than just that one did.
	abortSignal chan uint64

	latch lock.Mutex
	once  sync.Once
}

// NewStorageManager builds a fresh execution context for a transaction's
// first incarnation. spec may be nil for call sites that never publish or
// observe speculative writes (e.g. a single-node test with no concurrent
// writers to cascade from).
func NewStorageManager(t *Txn, s Storage, spec *SpeculativeStore) *StorageManager {
	return &StorageManager{
		Txn:          t,
		Storage:      s,
		spec:         spec,
		Scratch:      make(map[string]interface{}),
		PendingReads: make(map[string]*PendingReadEntry),
		abortSignal:  make(chan uint64, 1),
		latch:        lock.NewCASMutex(),
	}
}

// AbortCounter returns the manager's current incarnation number.
func (m *StorageManager) AbortCounter() uint64 {
	return atomic.LoadUint64(&m.abortCounter)
}

// AbortBitPtr exposes the raw signal so lock queue entries and
// ReadFromEntry records can observe it without going through the manager.
func (m *StorageManager) AbortBitPtr() *int32 {
	return &m.abortBit
}

// MarkAborted sets the abort bit; idempotent, safe from any goroutine.
func (m *StorageManager) MarkAborted() {
	atomic.StoreInt32(&m.abortBit, 1)
}

// IsAborted reports whether a conflicting write has been observed.
func (m *StorageManager) IsAborted() bool {
	return atomic.LoadInt32(&m.abortBit) != 0
}

// Retry resets the manager for a new incarnation: resolves any speculative
// writes this incarnation published (as aborted, cascading to whatever
// read them), clears the abort bit, bumps the abort counter (so stale
// ReadFromEntry/abort signals referring to the old counter are dropped),
// and clears scratch state.
func (m *StorageManager) Retry() {
	m.finishSpeculative(false)
	atomic.StoreInt32(&m.abortBit, 0)
	atomic.AddUint64(&m.abortCounter, 1)
	m.Scratch = make(map[string]interface{})
	m.PendingReads = make(map[string]*PendingReadEntry)
	m.dirty = nil
	select {
	case <-m.abortSignal:
	default:
	}
	m.Txn.Status = Fresh
}

// Lock serialises commit/read-result handling for this manager. It mirrors
// the CAS-mutex idiom the storage engine's own lock manager uses for hot
// per-row critical sections, rather than a plain sync.Mutex.
func (m *StorageManager) Lock()   { m.latch.Lock() }
func (m *StorageManager) Unlock() { m.latch.Unlock() }

// Read records a value in the scratch buffer so re-execution after a
// resumption does not need to reissue a completed read. A key with an
// uncommitted speculative write from another live transaction is returned
// directly (a dirty read, I-deliberately so): this manager registers
// itself as a dependent so it cascades if that writer never commits.
func (m *StorageManager) Read(key string) (interface{}, bool) {
	if v, ok := m.Scratch[key]; ok {
		return v, true
	}
	if m.spec != nil {
		dep := &ReadFromEntry{
			DependingTxnID: m.Txn.TxnID,
			AbortBit:       &m.abortBit,
			NumAborted:     m.AbortCounter(),
			AbortQueue:     m.abortSignal,
			Counter:        m.AbortCounter,
		}
		if v, writer, ok := m.spec.Peek(key, dep); ok && writer != m.Txn.TxnID {
			m.Scratch[key] = v
			return v, true
		}
	}
	v, ok := m.Storage.Read(key)
	if ok {
		m.Scratch[key] = v
	}
	return v, ok
}

// Write buffers a value locally; StorageManager never writes through to
// Storage directly — Commit replays the buffered writes only once the
// application has reported success. It also publishes the value to the
// speculative store (if any), so a concurrent reader on this node can
// observe it ahead of commit and register a cascading dependency on it.
func (m *StorageManager) Write(key string, value interface{}) {
	m.Scratch[key] = value
	m.dirty = append(m.dirty, key)
	if m.spec != nil {
		m.spec.Publish(key, m.Txn.TxnID, value)
		m.published = append(m.published, key)
	}
}

// RequestRemoteRead records that this incarnation is waiting on a read of
// key from elsewhere and will not be ready to resume until it lands. The
// caller (the application body, via worker.Application.Execute returning
// ExecSuspended) is responsible for actually issuing the remote read.
func (m *StorageManager) RequestRemoteRead(key string) {
	m.PendingReads[key] = &PendingReadEntry{Key: key, NumAborted: m.AbortCounter()}
}

// ApplyRemoteRead drains a satisfied remote read into Scratch, distinct
// from Write: a remote read result is not a write-back and must never be
// replayed by Commit. It reports whether every pending read for this
// incarnation is now satisfied.
func (m *StorageManager) ApplyRemoteRead(key string, value interface{}) bool {
	if entry, ok := m.PendingReads[key]; ok && entry.NumAborted == m.AbortCounter() {
		m.Scratch[key] = value
	}
	delete(m.PendingReads, key)
	return len(m.PendingReads) == 0
}

// finishSpeculative resolves every speculative entry this incarnation
// published. On a successful commit the entries are simply cleared — the
// committed value is now visible through Storage itself. On any other end
// (abort, retry, a conflicting write losing the race) every dependent
// registered against those entries is fired, cascading the abort.
func (m *StorageManager) finishSpeculative(committed bool) {
	if m.spec == nil {
		return
	}
	for _, key := range m.published {
		m.spec.Resolve(key, m.Txn.TxnID, committed)
	}
	m.published = nil
}

// Commit replays every buffered write against the underlying storage
// engine inside one physical transaction and commits it. It returns
// whether the transaction committed, and whether it was aborted by a
// conflicting concurrent writer.
func (m *StorageManager) Commit() (ok bool, aborted bool) {
	if !m.Storage.Begin(m.Txn.TxnID, m.MarkAborted) {
		return false, true
	}
	for _, key := range m.dirty {
		if !m.Storage.Write(key, m.Scratch[key], m.Txn.TxnID) {
			return false, true
		}
	}
	ok, aborted = m.Storage.Commit(m.Txn.TxnID)
	if ok {
		m.finishSpeculative(true)
	}
	return ok, aborted
}
