package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	rows       map[string]interface{}
	beginCalls int
	commitErr  bool
}

func (s *fakeStorage) Read(key string) (interface{}, bool) {
	v, ok := s.rows[key]
	return v, ok
}
func (s *fakeStorage) Begin(txnID uint64, onWound func()) bool {
	s.beginCalls++
	return true
}
func (s *fakeStorage) Write(key string, value interface{}, txnID uint64) bool {
	if s.commitErr {
		return false
	}
	s.rows[key] = value
	return true
}
func (s *fakeStorage) Commit(txnID uint64) (bool, bool) {
	return true, false
}
func (s *fakeStorage) Unfetch(key string) {
	delete(s.rows, key)
}

func TestStorageManagerReadCachesInScratch(t *testing.T) {
	storage := &fakeStorage{rows: map[string]interface{}{"MAIN/1": 42}}
	sm := NewStorageManager(&Txn{TxnID: 1}, storage, nil)

	v, ok := sm.Read("MAIN/1")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	delete(storage.rows, "MAIN/1")
	v, ok = sm.Read("MAIN/1")
	require.True(t, ok, "second read should come from scratch, not storage")
	assert.Equal(t, 42, v)
}

func TestStorageManagerCommitReplaysWrites(t *testing.T) {
	storage := &fakeStorage{rows: map[string]interface{}{}}
	sm := NewStorageManager(&Txn{TxnID: 7}, storage, nil)

	sm.Write("MAIN/1", "a")
	sm.Write("MAIN/2", "b")

	ok, aborted := sm.Commit()
	require.True(t, ok)
	assert.False(t, aborted)
	assert.Equal(t, 1, storage.beginCalls)
	assert.Equal(t, "a", storage.rows["MAIN/1"])
	assert.Equal(t, "b", storage.rows["MAIN/2"])
}

func TestStorageManagerRetryBumpsAbortCounter(t *testing.T) {
	storage := &fakeStorage{rows: map[string]interface{}{}}
	sm := NewStorageManager(&Txn{TxnID: 3}, storage, nil)
	sm.MarkAborted()
	require.True(t, sm.IsAborted())

	before := sm.AbortCounter()
	sm.Retry()
	assert.False(t, sm.IsAborted())
	assert.Equal(t, before+1, sm.AbortCounter())
}

func TestSpeculativeWriteCascadesAbortToDependent(t *testing.T) {
	store := &fakeStorage{rows: map[string]interface{}{"MAIN/1": 1}}
	spec := NewSpeculativeStore()

	writer := NewStorageManager(&Txn{TxnID: 4}, store, spec)
	reader := NewStorageManager(&Txn{TxnID: 5}, store, spec)

	writer.Write("MAIN/1", 2)

	v, ok := reader.Read("MAIN/1")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	require.False(t, reader.IsAborted(), "reader must not be aborted before the writer's incarnation ends")

	// The writer's incarnation ends without committing (e.g. a lock
	// conflict on another key in the same transaction); the reader that
	// speculatively read its uncommitted value must cascade (I3).
	writer.Retry()
	require.True(t, reader.IsAborted(), "reader should observe the writer's abort")

	reader.Retry()
	require.False(t, reader.IsAborted())

	// Both incarnations eventually succeed: the writer commits its
	// re-executed write, and the reader observes the correct value.
	writer.Write("MAIN/1", 3)
	ok, aborted := writer.Commit()
	require.True(t, ok)
	assert.False(t, aborted)

	v, ok = reader.Read("MAIN/1")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	ok, aborted = reader.Commit()
	require.True(t, ok)
	assert.False(t, aborted)
}

func TestReadFromEntryFireIgnoresStaleGeneration(t *testing.T) {
	ch := make(chan uint64, 1)
	entry := &ReadFromEntry{DependingTxnID: 9, NumAborted: 0, AbortQueue: ch}

	entry.Fire(1)
	select {
	case <-ch:
		t.Fatal("stale-generation entry should not fire")
	default:
	}

	entry.Fire(0)
	select {
	case got := <-ch:
		assert.Equal(t, uint64(9), got)
	default:
		t.Fatal("matching-generation entry should fire")
	}
}
