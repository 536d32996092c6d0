package recon

import (
	"testing"

	"github.com/magiconair/properties/assert"
	"github.com/marsleezm/spec-calvin/cmap"
	"github.com/marsleezm/spec-calvin/configs"
	"github.com/marsleezm/spec-calvin/messaging"
	"github.com/marsleezm/spec-calvin/txn"
)

type fakeApp struct {
	readSet, writeSet []string
}

func (f *fakeApp) ReconExecute(t *txn.Txn) ([]string, []string, error) {
	return f.readSet, f.writeSet, nil
}

type recordingSender struct {
	sent []*messaging.Message
}

func (s *recordingSender) Send(msg *messaging.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func TestRunOnlyDesignatedResponder(t *testing.T) {
	app := &fakeApp{readSet: []string{"k1"}, writeSet: []string{"k2"}}
	e := NewEngine("node-a", app, nil)

	txA := &txn.Txn{TxnID: 1, Dependent: true, Readers: []string{"node-a", "node-b"}}
	out := e.Run(txA)
	assert.Equal(t, out.ReadSet[0], "k1")

	txB := &txn.Txn{TxnID: 2, Dependent: true, Readers: []string{"node-b", "node-a"}}
	out = e.Run(txB)
	if out != nil {
		t.Fatalf("expected nil outcome for non-responder node, got %+v", out)
	}
}

func TestResolveCachesOutcome(t *testing.T) {
	app := &fakeApp{readSet: []string{"k1"}}
	e := NewEngine("node-a", app, nil)
	txA := &txn.Txn{TxnID: 9, Dependent: true, Readers: []string{"node-a"}}
	e.Run(txA)

	out, ok := e.Resolve(9)
	assert.Equal(t, ok, true)
	assert.Equal(t, out.ReadSet[0], "k1")

	e.Forget(9)
	_, ok = e.Resolve(9)
	assert.Equal(t, ok, false)
}

func TestRunReportsCumulativeReplyToSequencer(t *testing.T) {
	app := &fakeApp{readSet: []string{"k1"}, writeSet: []string{"k2"}}
	sender := &recordingSender{}
	e := &Engine{nodeID: "node-a", app: app, conn: sender, resolved: *cmap.New()}

	txA := &txn.Txn{TxnID: 1, Dependent: true, Readers: []string{"node-a", "node-b"}}
	e.Run(txA)

	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one reply sent, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	assert.Equal(t, msg.Type, configs.ReconIndexReply)
	assert.Equal(t, msg.To, configs.SequencerNode)
	if msg.Batch == nil || len(msg.Batch.Txns) != 1 {
		t.Fatalf("expected a batch carrying the one resolved txn, got %+v", msg.Batch)
	}
	assert.Equal(t, msg.Batch.Txns[0].TxnID, uint64(1))
	assert.Equal(t, msg.Batch.Txns[0].ReadSet[0], "k1")
	assert.Equal(t, msg.Batch.Txns[0].WriteSet[0], "k2")

	// A second resolved txn arrives in its own cumulative reply, not
	// re-bundled with the first (which already flushed successfully).
	txB := &txn.Txn{TxnID: 2, Dependent: true, Readers: []string{"node-a", "node-c"}}
	e.Run(txB)
	if len(sender.sent) != 2 {
		t.Fatalf("expected a second reply, got %d total", len(sender.sent))
	}
	assert.Equal(t, sender.sent[1].Batch.Txns[0].TxnID, uint64(2))
}
