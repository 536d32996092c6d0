package storage

import (
	"strconv"
	"strings"

	"github.com/marsleezm/spec-calvin/configs"
)

// Adapter bridges the scheduler core's flat string-keyed Storage contract
// (package txn) onto a Shard's table/key B-tree storage, so the rest of
// the scheduler never has to know rows live in named tables. Keys are the
// wire format "table/key", e.g. "MAIN/482".
type Adapter struct {
	shard *Shard
}

// NewAdapter wraps shard for use as a txn.Storage.
func NewAdapter(shard *Shard) *Adapter {
	return &Adapter{shard: shard}
}

func splitKey(key string) (table string, rowKey uint64) {
	parts := strings.SplitN(key, "/", 2)
	configs.Assert(len(parts) == 2, "storage key must be table/key, got "+key)
	n, err := strconv.ParseUint(parts[1], 10, 64)
	configs.CheckError(err)
	return parts[0], n
}

// Read performs a non-transactional point read, used for remote reads on
// behalf of another node and for reads issued before Begin.
func (a *Adapter) Read(key string) (interface{}, bool) {
	table, rowKey := splitKey(key)
	row, ok := a.shard.Read(table, rowKey)
	if !ok {
		return nil, false
	}
	return row, true
}

// Begin starts a physical transaction for txnID on the underlying shard.
// onWound is threaded down to the row lock manager so a transaction that
// gets wounded by a lower-TxnID requester mid-execution can signal its
// StorageManager to abort rather than run to a commit that will never
// stick.
func (a *Adapter) Begin(txnID uint64, onWound func()) bool {
	return a.shard.Begin(uint32(txnID), onWound)
}

// Write applies one buffered write inside the transaction started by
// Begin. A false return means the row's lock manager refused the access
// (2PL-no-wait abort) and the caller must retry the whole transaction; the
// physical transaction is rolled back first so that retry can Begin again.
func (a *Adapter) Write(key string, value interface{}, txnID uint64) bool {
	table, rowKey := splitKey(key)
	row, ok := value.(*RowData)
	if !ok || !a.shard.UpdateTxn(table, uint32(txnID), rowKey, row) {
		a.shard.RollBack(uint32(txnID))
		return false
	}
	return true
}

// Commit finalises the physical transaction. Per the 2PL-no-wait design,
// an abort is detected eagerly at Write time, not at commit: a Commit that
// is reached at all always succeeds.
func (a *Adapter) Commit(txnID uint64) (ok bool, aborted bool) {
	if !a.shard.Commit(uint32(txnID)) {
		a.shard.RollBack(uint32(txnID))
		return false, true
	}
	return true, false
}

// Unfetch drops a key's in-memory copy, e.g. after the application has
// finished with a cold-tier row it pulled in for one transaction.
func (a *Adapter) Unfetch(key string) {
	table, rowKey := splitKey(key)
	a.shard.Unfetch(table, rowKey)
}
