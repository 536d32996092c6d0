package worker

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/magiconair/properties/assert"
	"github.com/marsleezm/spec-calvin/configs"
	"github.com/marsleezm/spec-calvin/messaging"
	"github.com/marsleezm/spec-calvin/storage"
	"github.com/marsleezm/spec-calvin/txn"
)

type fakeStorage struct {
	committed map[uint64]bool
}

func (s *fakeStorage) Read(key string) (interface{}, bool)                 { return nil, true }
func (s *fakeStorage) Begin(txnID uint64, onWound func()) bool             { return true }
func (s *fakeStorage) Write(key string, value interface{}, id uint64) bool { return true }
func (s *fakeStorage) Commit(txnID uint64) (bool, bool) {
	s.committed[txnID] = true
	return true, false
}
func (s *fakeStorage) Unfetch(key string) {}

type countingApp struct {
	calls int
}

func (a *countingApp) Execute(sm *txn.StorageManager) (txn.ExecResult, error) {
	a.calls++
	return txn.ExecSuccess, nil
}

func TestPoolCommitsSubmittedTxn(t *testing.T) {
	storage := &fakeStorage{committed: make(map[uint64]bool)}
	app := &countingApp{}
	p := New("node-a", app, nil, nil)
	p.Start(2, 0)
	defer p.Stop()

	sm := txn.NewStorageManager(&txn.Txn{TxnID: 42}, storage, nil)
	p.Submit(sm)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if storage.committed[42] {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, storage.committed[42], true)
}

// suspendOnceApp suspends the first incarnation of a transaction waiting
// on a remote read, then succeeds once that read has landed in Scratch.
type suspendOnceApp struct {
	key string
}

func (a *suspendOnceApp) Execute(sm *txn.StorageManager) (txn.ExecResult, error) {
	if _, ok := sm.Read(a.key); ok {
		return txn.ExecSuccess, nil
	}
	sm.RequestRemoteRead(a.key)
	return txn.ExecSuspended, nil
}

// neverLocalStorage never has a key locally: every instance of this test's
// key must arrive as a remote READ_RESULT, never from Storage.Read.
type neverLocalStorage struct {
	committed map[uint64]bool
}

func (s *neverLocalStorage) Read(key string) (interface{}, bool)                  { return nil, false }
func (s *neverLocalStorage) Begin(txnID uint64, onWound func()) bool              { return true }
func (s *neverLocalStorage) Write(key string, value interface{}, id uint64) bool  { return true }
func (s *neverLocalStorage) Commit(txnID uint64) (bool, bool) {
	s.committed[txnID] = true
	return true, false
}
func (s *neverLocalStorage) Unfetch(key string) {}

func TestSuspendedTxnResumesOnReadResult(t *testing.T) {
	storage := &neverLocalStorage{committed: make(map[uint64]bool)}
	app := &suspendOnceApp{key: "MAIN/9"}
	p := New("node-a", app, nil, nil)
	p.Start(1, 0)
	defer p.Stop()

	sm := txn.NewStorageManager(&txn.Txn{TxnID: 77}, storage, nil)
	p.Submit(sm)

	// Give the worker a chance to run the first incarnation and suspend.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sm.Txn.Status == txn.Suspended {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if sm.Txn.Status != txn.Suspended {
		t.Fatalf("expected txn to suspend awaiting a remote read, got status %v", sm.Txn.Status)
	}
	if _, stillActive := p.activeTxns.Lookup(uint64(77)); !stillActive {
		t.Fatal("a suspended txn must remain in activeTxns awaiting its READ_RESULT")
	}

	p.handleMessage(&messaging.Message{
		Type:  configs.ReadResult,
		TxnID: 77,
		Key:   "MAIN/9",
		Value: "remote-value",
		Found: true,
	})

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if storage.committed[77] {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, storage.committed[77], true)
}

// incrementApp does a real read-modify-write against a shared row, used to
// prove that concurrent workers contending on one key still converge on a
// deterministic total rather than losing updates.
type incrementApp struct {
	key string
}

func (a *incrementApp) Execute(sm *txn.StorageManager) (txn.ExecResult, error) {
	v, ok := sm.Read(a.key)
	if !ok {
		return txn.ExecSuccess, fmt.Errorf("missing key %s", a.key)
	}
	row := v.(*storage.RowData)
	next := storage.NewRowDataWithLength(int(row.Length))
	copy(next.Value, row.Value)
	cur, _ := next.GetAttribute(0).(int)
	next.SetAttribute(0, cur+1)
	sm.Write(a.key, next)
	return txn.ExecSuccess, nil
}

func TestConcurrentWorkersConvergeOnDeterministicCount(t *testing.T) {
	shard := storage.NewKV("node-a", 0, configs.BenchmarkStorage, 0)
	shard.AddTable("MAIN", 1)
	shard.Insert("MAIN", 1, storage.WrapTestValue(0))
	adapter := storage.NewAdapter(shard)

	origRetries := configs.MaxTxnRetries
	configs.MaxTxnRetries = 500
	defer func() { configs.MaxTxnRetries = origRetries }()

	const n = 100
	app := &incrementApp{key: "MAIN/1"}
	p := New("node-a", app, nil, nil)
	p.Start(4, 0)
	defer p.Stop()

	var done int64
	p.SetOnComplete(func(committed bool) {
		if committed {
			atomic.AddInt64(&done, 1)
		}
	})

	spec := txn.NewSpeculativeStore()
	for i := uint64(1); i <= n; i++ {
		p.Submit(txn.NewStorageManager(&txn.Txn{TxnID: i}, adapter, spec))
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt64(&done) == n {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, atomic.LoadInt64(&done), int64(n))

	v, ok := shard.Read("MAIN", 1)
	assert.Equal(t, ok, true)
	assert.Equal(t, v.GetAttribute(0), n)
}
