// Package cmap implements the sharded concurrent map the worker pool uses
// to track active and recon-pending transactions by TxnID without a
// single global lock becoming a bottleneck under many workers.
package cmap

import "sync"

const shardCount = 32

type shard struct {
	mu sync.RWMutex
	m  map[uint64]interface{}
}

// Map is a concurrent uint64-keyed map, sharded by txn_id % shardCount.
// Every operation holds at most one shard's lock at a time; Size and
// ClearAndDestroyValues visit the shards one after another.
type Map struct {
	shards [shardCount]*shard
}

// New returns an empty, ready-to-use Map.
func New() *Map {
	cm := &Map{}
	for i := range cm.shards {
		cm.shards[i] = &shard{m: make(map[uint64]interface{})}
	}
	return cm
}

func (cm *Map) shardFor(key uint64) *shard {
	return cm.shards[key%shardCount]
}

// Put inserts or overwrites key's value.
func (cm *Map) Put(key uint64, value interface{}) {
	s := cm.shardFor(key)
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
}

// PutIfAbsent inserts value only if key is not already present, returning
// whether the insert happened.
func (cm *Map) PutIfAbsent(key uint64, value interface{}) bool {
	s := cm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		return false
	}
	s.m[key] = value
	return true
}

// Lookup returns key's value and whether it was present.
func (cm *Map) Lookup(key uint64) (interface{}, bool) {
	s := cm.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Erase removes key, returning the removed value if any.
func (cm *Map) Erase(key uint64) (interface{}, bool) {
	s := cm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	return v, ok
}

// Size returns the total element count across all shards. Like Queue.Size,
// this is a hint, not a snapshot: concurrent writers can race it.
func (cm *Map) Size() int {
	n := 0
	for _, s := range cm.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// ClearAndDestroyValues empties every shard. If destroy is non-nil it is
// called once per removed value, e.g. to release a StorageManager's
// scratch buffers back to a pool.
func (cm *Map) ClearAndDestroyValues(destroy func(value interface{})) {
	for _, s := range cm.shards {
		s.mu.Lock()
		if destroy != nil {
			for _, v := range s.m {
				destroy(v)
			}
		}
		s.m = make(map[uint64]interface{})
		s.mu.Unlock()
	}
}
