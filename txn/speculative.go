package txn

import "sync"

// specEntry is one key's most recent uncommitted write inside a node's
// SpeculativeStore, plus every ReadFromEntry registered against it.
type specEntry struct {
	mu      sync.Mutex
	writer  uint64
	hasData bool
	value   interface{}
	readers []*ReadFromEntry
}

// SpeculativeStore lets StorageManagers on the same node observe each
// other's not-yet-committed writes, independent of the underlying Storage
// (whose row lock manager only ever exposes the last-committed value for a
// key — see storage/row.go's ReturnRow). A read that observes another
// transaction's speculative write registers a ReadFromEntry dependency on
// it; Resolve fires every dependency recorded for a key once its writer's
// incarnation ends, cascading an abort to whatever read that value (I3).
type SpeculativeStore struct {
	mu      sync.Mutex
	entries map[string]*specEntry
}

// NewSpeculativeStore returns an empty store, shared by every
// StorageManager on one node.
func NewSpeculativeStore() *SpeculativeStore {
	return &SpeculativeStore{entries: make(map[string]*specEntry)}
}

func (s *SpeculativeStore) entryFor(key string) *specEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &specEntry{}
		s.entries[key] = e
	}
	return e
}

// Publish records txnID's uncommitted value for key, replacing whatever
// incarnation was speculatively there before. It does not carry over the
// previous entry's readers: those already observed the prior value (or
// its absence) and are tracked against that incarnation, not this one.
func (s *SpeculativeStore) Publish(key string, txnID uint64, value interface{}) {
	e := s.entryFor(key)
	e.mu.Lock()
	e.writer = txnID
	e.value = value
	e.hasData = true
	e.mu.Unlock()
}

// Peek returns the current speculative value for key and the TxnID that
// published it. When dep is non-nil and a value is present, dep is
// registered so it fires if that value is ever invalidated.
func (s *SpeculativeStore) Peek(key string, dep *ReadFromEntry) (value interface{}, writer uint64, ok bool) {
	s.mu.Lock()
	e, exists := s.entries[key]
	s.mu.Unlock()
	if !exists {
		return nil, 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasData {
		return nil, 0, false
	}
	if dep != nil {
		e.readers = append(e.readers, dep)
	}
	return e.value, e.writer, true
}

// Resolve ends txnID's ownership of key's speculative entry. If committed
// is false, every dependent registered against it fires (cascading the
// abort); either way the entry is cleared so the next writer starts clean.
// A no-op if txnID is no longer the entry's current writer (already
// superseded by a later Publish).
func (s *SpeculativeStore) Resolve(key string, txnID uint64, committed bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	if e.writer != txnID {
		e.mu.Unlock()
		return
	}
	deps := e.readers
	e.readers = nil
	e.hasData = false
	e.value = nil
	e.mu.Unlock()

	if committed {
		return
	}
	for _, dep := range deps {
		dep.Fire(dep.Counter())
	}
}
