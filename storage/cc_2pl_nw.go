package storage

import (
	"github.com/marsleezm/spec-calvin/configs"
	"fmt"
	"github.com/viney-shih/go-lock"
)

type LockEntry struct {
	lockType uint8
	txn      *DBTxn
	next     *LockEntry
	prev     *LockEntry
}

type TwoPhaseLockNoWaitManager struct {
	Latch     lock.Mutex
	LockType  uint8
	LockOwner uint32
	Owners    *LockEntry
	OwnerCnt  uint32
	from      *RowRecord
}

func lockCompatible(a, b uint8) bool {
	if a == configs.LockNone || b == configs.LockNone {
		return true
	}
	if a == configs.LockShared && b == configs.LockShared {
		return true
	}
	return false
}

func (c *TwoPhaseLockNoWaitManager) ToString() string {
	c.Latch.Lock()
	defer c.Latch.Unlock()
	if c.Owners == nil {
		return fmt.Sprintf("LatchType:%v; Owner:%v; OwnerCnt:%v\n", c.LockType, "no", c.OwnerCnt)
	}
	return fmt.Sprintf("LatchType:%v; Owner:%v; OwnerCnt:%v\n", c.LockType, c.Owners.txn.txnID, c.OwnerCnt)
}

func (c *TwoPhaseLockNoWaitManager) AccessRow(lockType uint8, txn *DBTxn) uint8 {
	c.Latch.Lock()
	defer c.Latch.Unlock()
	// the transaction try to upgrade/repeat exclusive lock when it has obtained R/W lock.
	if lockType == configs.LockExclusive && c.Owners != nil && c.Owners.txn.txnID == txn.txnID {
		if c.LockType == configs.LockExclusive {
			return configs.LockSucceed
		} else if c.LockType == configs.LockShared && c.OwnerCnt == 1 {
			c.LockType = configs.LockExclusive
			c.Owners.lockType = configs.LockExclusive
			return configs.LockSucceed
		}
	}
	// repeat read shall be cut on the access level.
	ok := lockCompatible(lockType, c.LockType)
	if ok {
		entry := &LockEntry{
			lockType: lockType,
			txn:      txn,
			next:     c.Owners,
			prev:     nil,
		}
		if c.Owners != nil {
			c.Owners.prev = entry
		}
		c.Owners = entry
		c.OwnerCnt++
		c.LockType = lockType
		return configs.LockSucceed
	}
	// Conflict: grant in TxnID order rather than refusing outright. A
	// requester with a lower TxnID always has priority over every current
	// owner, so wound (abort) them and take the row; a requester with a
	// higher TxnID than any current owner defers to it, same as before.
	for cur := c.Owners; cur != nil; cur = cur.next {
		if cur.txn.txnID < txn.txnID {
			return configs.LockAbort
		}
	}
	c.woundOwners()
	entry := &LockEntry{lockType: lockType, txn: txn, next: nil, prev: nil}
	c.Owners = entry
	c.OwnerCnt = 1
	c.LockType = lockType
	return configs.LockSucceed
}

// woundOwners aborts every current lock holder in favor of a lower-TxnID
// requester and clears the row, bypassing ReleaseRowLock's bookkeeping
// since the wounded owners no longer hold anything to release. Callers
// must already hold c.Latch.
func (c *TwoPhaseLockNoWaitManager) woundOwners() {
	for cur := c.Owners; cur != nil; cur = cur.next {
		if cur.txn.WoundCallback != nil {
			cur.txn.WoundCallback()
		}
	}
	c.Owners = nil
	c.OwnerCnt = 0
	c.LockType = configs.LockNone
}

func (c *TwoPhaseLockNoWaitManager) ReleaseRowLock(lockType uint8, txn *DBTxn) {
	c.Latch.Lock()
	defer c.Latch.Unlock()
	var prev, cur *LockEntry = nil, nil
	for cur = c.Owners; cur != nil && cur.txn.txnID != txn.txnID; cur = cur.next {
		prev = cur
	}
	if cur != nil {
		if prev != nil {
			prev.next = cur.next
		} else {
			c.Owners = cur.next
		}
		if cur.next != nil {
			cur.next.prev = prev
		}
		c.OwnerCnt--
		if c.OwnerCnt == 0 {
			c.LockType = configs.LockNone
		}
	} else {
		//panic("impossible for 2PL no wait")
	}
}

func NewTwoPLNWManager(row *RowRecord) *TwoPhaseLockNoWaitManager {
	return &TwoPhaseLockNoWaitManager{
		from:     row,
		Owners:   nil,
		OwnerCnt: 0,
		LockType: configs.LockNone,
		Latch:    lock.NewCASMutex(),
	}
}
