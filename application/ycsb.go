// Package application holds the transaction bodies the worker pool and
// reconnaissance engine drive: the interfaces they call through, and a
// sample YCSB-style workload exercising them end to end.
package application

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"github.com/pingcap/go-ycsb/pkg/generator"

	"github.com/marsleezm/spec-calvin/configs"
	"github.com/marsleezm/spec-calvin/storage"
	"github.com/marsleezm/spec-calvin/txn"
)

// YCSB is a single-table read/update workload mirroring the YCSB-style
// benchmark the storage engine itself is tested against: each transaction
// touches configs.TransactionLength keys drawn from a Zipfian
// distribution over configs.NumberOfRecordsPerShard rows, split between
// reads and updates by configs.ReadPercentage.
type YCSB struct {
	table string
	mu    sync.Mutex
	zipf  *generator.Zipfian
}

// NewYCSB builds a workload over the given table.
func NewYCSB(table string) *YCSB {
	return &YCSB{
		table: table,
		zipf:  generator.NewZipfianWithRange(1, int64(configs.NumberOfRecordsPerShard), configs.YCSBDataSkewness),
	}
}

func (y *YCSB) key(r *rand.Rand) string {
	y.mu.Lock()
	n := y.zipf.Next(r)
	y.mu.Unlock()
	return y.table + "/" + strconv.FormatInt(n, 10)
}

// Execute runs one incarnation of a transaction: for each access, read the
// row and, with probability (1 - ReadPercentage), write back a value that
// actually differs from what was read.
func (y *YCSB) Execute(sm *txn.StorageManager) (txn.ExecResult, error) {
	r := rand.New(rand.NewSource(sm.Txn.Seed))
	for i := 0; i < configs.TransactionLength; i++ {
		key := y.key(r)
		v, ok := sm.Read(key)
		if !ok {
			return txn.ExecSuccess, fmt.Errorf("key %s not found", key)
		}
		if r.Float64() >= configs.ReadPercentage {
			sm.Write(key, bump(v))
		}
	}
	return txn.ExecSuccess, nil
}

// bump returns a row whose F0 attribute is incremented from v's, so a
// write is an observable mutation rather than a no-op write-back of the
// value just read.
func bump(v interface{}) interface{} {
	row, ok := v.(*storage.RowData)
	if !ok || row.Length == 0 {
		return v
	}
	next := storage.NewRowDataWithLength(int(row.Length))
	copy(next.Value, row.Value)
	cur, _ := next.GetAttribute(uint(configs.F0)).(int)
	next.SetAttribute(uint(configs.F0), cur+1)
	return next
}

// ReconExecute discovers the read/write set a dependent instance of this
// workload would touch, without performing any writes. A real dependent
// workload would look up instance-specific secondary-index keys here;
// this workload's access pattern is already known from Seed alone, so
// recon is a deterministic replay of the same key derivation.
func (y *YCSB) ReconExecute(t *txn.Txn) (readSet, writeSet []string, err error) {
	r := rand.New(rand.NewSource(t.Seed))
	for i := 0; i < configs.TransactionLength; i++ {
		key := y.key(r)
		if r.Float64() >= configs.ReadPercentage {
			writeSet = append(writeSet, key)
		} else {
			readSet = append(readSet, key)
		}
	}
	return readSet, writeSet, nil
}
