// Package txn holds the scheduler's view of a transaction: the wire-level
// Txn/Batch shapes and the per-execution StorageManager that tracks a
// transaction's abort generation while it runs.
package txn

import (
	mapset "github.com/deckarep/golang-set"
)

// Status mirrors the lifecycle a Txn moves through inside one node.
type Status int

const (
	Fresh Status = iota
	Executing
	Suspended
	Committed
	Aborted
)

func (s Status) String() string {
	switch s {
	case Fresh:
		return "Fresh"
	case Executing:
		return "Executing"
	case Suspended:
		return "Suspended"
	case Committed:
		return "Committed"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Txn is the unit of work streamed by the sequencer. ReadSet/WriteSet/
// ReadWriteSet are ordered so that lock acquisition order is reproducible;
// Readers/Writers are ordered node-id slices whose first reader is the
// designated responder; ReaderSet/WriterSet expose them as golang-set values.
type Txn struct {
	TxnID   uint64
	TxnType string

	ReadSet      []string
	WriteSet     []string
	ReadWriteSet []string

	Readers []string
	Writers []string

	StartTimeUnixNano int64
	Seed              int64

	Status Status

	// Dependent marks a transaction whose read/write set is not known
	// up-front and must be resolved by the reconnaissance engine (C4).
	Dependent bool
}

// DesignatedResponder is the single reader responsible for replying on
// behalf of a dependent transaction once recon resolves it.
func (t *Txn) DesignatedResponder() string {
	if len(t.Readers) == 0 {
		return ""
	}
	return t.Readers[0]
}

// IsDesignatedResponder reports whether nodeID is this transaction's
// designated responder.
func (t *Txn) IsDesignatedResponder(nodeID string) bool {
	return t.DesignatedResponder() == nodeID
}

// ReaderSet/WriterSet expose Readers/Writers as golang-set values, for
// components that need set algebra (union, contains) rather than a plain
// slice scan.
func (t *Txn) ReaderSet() mapset.Set {
	s := mapset.NewThreadUnsafeSet()
	for _, r := range t.Readers {
		s.Add(r)
	}
	return s
}

func (t *Txn) WriterSet() mapset.Set {
	s := mapset.NewThreadUnsafeSet()
	for _, w := range t.Writers {
		s.Add(w)
	}
	return s
}

// Batch is an ordered, numbered group of transactions shipped together by
// the sequencer. Transactions within a batch are executed in ascending
// TxnID order relative to every other batch already admitted.
type Batch struct {
	BatchNumber uint64
	Txns        []*Txn
}
