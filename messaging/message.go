// Package messaging carries batches, remote-read results, and recon
// traffic between scheduler nodes over newline-delimited JSON on plain
// TCP, the same wire shape the rest of this codebase's network layer
// uses for its own gossip traffic.
package messaging

import (
	"github.com/marsleezm/spec-calvin/configs"
	"github.com/marsleezm/spec-calvin/txn"
)

// Message is the single envelope every connection exchanges. Type is one
// of the configs.TxnBatch/ReconBatch/ReadResult/ReconReadResult/
// ReconIndexReply markers; only the field matching Type is populated.
type Message struct {
	Type string
	From string
	To   string

	Batch *txn.Batch

	// ReadResult fields: a remote read landed for TxnID/Key.
	TxnID uint64
	Key   string
	Value interface{}
	Found bool

	// ReconIndexReply carries its payload in Batch above: one or more
	// resolved transactions, each with its own ReadSet/WriteSet already
	// populated by the designated responder.
}

// NewBatchMessage wraps a batch for the given destination.
func NewBatchMessage(to string, b *txn.Batch) *Message {
	msgType := configs.TxnBatch
	for _, t := range b.Txns {
		if t.Dependent {
			msgType = configs.ReconBatch
			break
		}
	}
	return &Message{Type: msgType, To: to, Batch: b}
}

// NewReadResultMessage wraps a single remote-read outcome.
func NewReadResultMessage(from, to string, txnID uint64, key string, value interface{}, found bool) *Message {
	return &Message{
		Type:  configs.ReadResult,
		From:  from,
		To:    to,
		TxnID: txnID,
		Key:   key,
		Value: value,
		Found: found,
	}
}

// NewReconIndexReplyBatch wraps a designated responder's cumulative reply:
// every transaction it has resolved so far, each carrying its own now-
// populated ReadSet/WriteSet, bound for a single destination (the
// sequencer) rather than fanned out as one message per reader/writer node.
func NewReconIndexReplyBatch(from, to string, batch *txn.Batch) *Message {
	return &Message{
		Type:  configs.ReconIndexReply,
		From:  from,
		To:    to,
		Batch: batch,
	}
}
