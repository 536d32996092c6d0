package storage

import (
	"github.com/marsleezm/spec-calvin/configs"
	"context"
	"fmt"
	"github.com/goccy/go-json"
	"strconv"
	"sync"
	"time"
)

// Shard maintains a local in-memory kv-store, backed by a B-tree primary
// index per table, plus an optional cold tier for keys that have aged out
// of the working set.
type Shard struct {
	shardID string
	mu      *sync.Mutex
	txnPool sync.Map
	ctx     context.Context

	length int
	tables sync.Map // tables with a primary index for each table.

	log  *LogManager
	cold *ColdStore
}

func (c *Shard) GetID() string {
	return c.shardID
}

// AddTable add a new table into the shard.
func (c *Shard) AddTable(tableName string, attributeNum int) *Table {
	tab := &Table{tableName: tableName, attributesNum: attributeNum, autoIncreasingPrimary: 0}
	tab.primaryIndex = NewBTree(tableName + "-MainIndex")
	c.tables.Store(tableName, tab)
	return tab
}

func newShardKV(shardID string, storeType string, delay time.Duration) *Shard {
	c := &Shard{
		shardID: shardID,
		mu:      &sync.Mutex{},
		ctx:     context.WithValue(context.Background(), "store", storeType),
	}
	c.log = NewLogManager(shardID)
	if configs.EnableColdTier {
		c.cold = NewColdStore()
	}
	return c
}

/* Interactive simple key-Value APIs. */

func (c *Shard) Insert(tableName string, key uint64, value *RowData) bool {
	tab, ok := c.tables.Load(tableName)
	configs.Assert(ok, "the table does not exist")
	t, ok := tab.(*Table)
	configs.Assert(ok, "the loaded table metadata from kv.table is invalid")
	index := t.primaryIndex
	row := NewRowRecord(t, Key(key), Key(key))
	row.Data = value
	err := index.IndexInsert(Key(key), row)
	if err != nil && err != ErrAbort {
		panic(err)
	}
	return err == nil
}

func (c *Shard) Update(tableName string, key uint64, value *RowData) bool {
	tab, ok := c.tables.Load(tableName)
	configs.Assert(ok, "the table does not exist")
	index := tab.(*Table).primaryIndex
	row, err := index.IndexRead(Key(key))
	if err != nil {
		panic(err)
	}
	tempTxn := NewTxn(c.ctx)
	tempTxn.txnID = uint32(time.Now().UnixMicro() & 0x7fffffff)
	tempRow, err := tempTxn.AccessRow(row, TxnWrite)
	if err == nil {
		tempRow.Data = value
		tempTxn.TxnState = txnCommitted
		c.log.writeRedoLog4Txn(tempTxn)
		c.log.writeTxnState(tempTxn)
		tempTxn.Finish(true)
		c.maybeEvict(tableName, key, value)
		return true
	} else if err == ErrAbort {
		tempTxn.TxnState = txnAborted
		c.log.writeRedoLog4Txn(tempTxn)
		c.log.writeTxnState(tempTxn)
		tempTxn.Finish(false)
		return false
	}
	panic(err)
}

func (c *Shard) Read(tableName string, key uint64) (*RowData, bool) {
	tab, ok := c.tables.Load(tableName)
	configs.Assert(ok, "the table does not exist")
	index := tab.(*Table).primaryIndex
	row, err := index.IndexRead(Key(key))
	if err != nil {
		panic(err)
	}
	tempTxn := NewTxn(c.ctx)
	tempTxn.txnID = uint32(time.Now().UnixMicro() & 0x7fffffff)
	r, err := tempTxn.AccessRow(row, TxnRead)
	if err != nil && err != ErrAbort {
		panic(err)
	}
	tempTxn.Finish(err == nil)
	if err == nil {
		if r.Data == nil && c.cold != nil {
			if cv, ok := c.cold.Get(tableName, key); ok {
				return cv, true
			}
			return nil, false
		}
		return r.Data, true
	}
	return nil, false
}

// maybeEvict pushes a row to the cold tier once its key crosses ColdCutoff,
// then releases the in-memory copy via Unfetch.
func (c *Shard) maybeEvict(tableName string, key uint64, value *RowData) {
	if c.cold == nil || key < configs.ColdCutoff {
		return
	}
	if err := c.cold.Put(tableName, key, value); err != nil {
		configs.Warn(false, "cold tier write failed: "+err.Error())
		return
	}
	c.Unfetch(tableName, key)
}

// Unfetch drops the in-memory payload for a key once it has been
// persisted to the cold tier, bounding the resident working set.
func (c *Shard) Unfetch(tableName string, key uint64) {
	tab, ok := c.tables.Load(tableName)
	if !ok {
		return
	}
	index := tab.(*Table).primaryIndex
	row, err := index.IndexRead(Key(key))
	if err != nil {
		return
	}
	row.Data = nil
}

/* Execution phase APIs for transactions. */

// Begin starts a physical transaction for txnID. onWound, if non-nil, is
// invoked if the lock manager ever grants one of this transaction's held
// locks to a lower-TxnID requester instead of making it wait (storage/
// cc_2pl_nw.go's wound-based grant order, see woundOwners).
func (c *Shard) Begin(txnID uint32, onWound func()) bool {
	configs.TPrintf("TXN" + strconv.FormatUint(uint64(txnID), 10) + ": transaction begun")
	_, ok := c.txnPool.Load(txnID)
	configs.Assert(!ok, "the previous transaction has not been finished yet (TID="+strconv.Itoa(int(txnID))+")")
	txn := NewTxn(c.ctx)
	txn.latch.Lock()
	defer txn.latch.Unlock()
	txn.txnID = txnID
	txn.WoundCallback = onWound
	c.txnPool.Store(txnID, txn)
	return true
}

func JPrint(v interface{}) {
	byt, _ := json.Marshal(v)
	fmt.Println(string(byt))
}

func (c *Shard) ReadTxn(tableName string, txnID uint32, key uint64) (*RowData, bool) {
	tab, ok := c.tables.Load(tableName)
	configs.Assert(ok, "the table does not exist")
	index := tab.(*Table).primaryIndex
	row, err := index.IndexRead(Key(key))
	if err != nil {
		panic(err)
	}
	configs.TPrintf("TXN" + strconv.FormatUint(uint64(txnID), 10) + ": reading data on " +
		c.shardID + " " + tableName + ":" + strconv.Itoa(int(key)))
	v, ok := c.txnPool.Load(txnID)
	if !ok {
		configs.Warn(ok, "the transaction has been aborted.")
		return nil, false
	}
	tx := v.(*DBTxn)
	tx.latch.Lock()
	defer tx.latch.Unlock()
	configs.Assert(tx.txnID == txnID, "different transaction running")
	r, err := tx.AccessRow(row, TxnRead)
	if err != nil && err != ErrAbort {
		panic(err)
	}
	if err == nil {
		if r.Data == nil && c.cold != nil {
			return c.cold.Get(tableName, key)
		}
		return r.Data, true
	}
	configs.TxnPrint(uint64(txnID), fmt.Sprintf(" the txn update fail at updating %v-%v-%v", c.shardID, tableName, key))
	return nil, false
}

func (c *Shard) UpdateTxn(tableName string, txnID uint32, key uint64, value *RowData) bool {
	tab, ok := c.tables.Load(tableName)
	configs.TPrintf("TXN" + strconv.FormatUint(uint64(txnID), 10) + ": update Value on shard " + c.shardID + " " + tableName + ":" + strconv.Itoa(int(key)) + ":" + value.String())
	configs.Assert(ok, "the table does not exist")
	index := tab.(*Table).primaryIndex
	row, err := index.IndexRead(Key(key))
	if err != nil {
		panic(err)
	}
	v, ok := c.txnPool.Load(txnID)
	if !ok {
		configs.Warn(ok, "the transaction has been aborted.")
		return false
	}
	tx := v.(*DBTxn)
	tx.latch.Lock()
	defer tx.latch.Unlock()
	configs.Assert(tx.txnID == txnID, "different transaction running")
	tempRow, err := tx.AccessRow(row, TxnWrite)
	if err == nil {
		tempRow.Data = value
		return true
	} else if err == ErrAbort {
		configs.TxnPrint(uint64(txnID), fmt.Sprintf(" the txn update fail at updating %v-%v-%v", c.shardID, tableName, key))
		return false
	}
	panic(err)
}

func (c *Shard) RollBack(txnID uint32) bool {
	v, ok := c.txnPool.Load(txnID)
	if !ok {
		configs.Warn(ok, "the transaction has been aborted.")
		return true
	}
	tx := v.(*DBTxn)
	tx.latch.Lock()
	defer tx.latch.Unlock()
	configs.Assert(tx.txnID == txnID, "different transaction running")
	if !tx.TryFinish() {
		return true
	}
	tx.TxnState = txnAborted
	tx.Finish(false)
	c.log.writeTxnState(tx)
	c.txnPool.Delete(txnID)
	return true
}

func (c *Shard) Commit(txnID uint32) bool {
	configs.TimeTrack(time.Now(), fmt.Sprintf("commit on shard %s", c.shardID), uint64(txnID))
	v, ok := c.txnPool.Load(txnID)
	configs.Warn(ok, "the transaction has finished before commit on this node.")
	if !ok {
		return true
	}
	tx := v.(*DBTxn)
	tx.latch.Lock()
	defer tx.latch.Unlock()
	configs.Assert(tx.txnID == txnID, "different transaction running")
	if !tx.TryFinish() {
		return true
	}
	tx.TxnState = txnCommitted
	c.log.writeRedoLog4Txn(tx)
	c.log.writeTxnState(tx)
	for i := 0; i < tx.RowCnt; i++ {
		ac := tx.Accesses[i]
		if ac.AccessType == TxnWrite && ac.Local != nil {
			c.maybeEvict(ac.Local.FromTable.tableName, uint64(ac.Local.PrimaryKey), ac.Local.Data)
		}
	}
	tx.Finish(true)
	c.txnPool.Delete(txnID)
	return true
}
