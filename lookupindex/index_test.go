package lookupindex

import (
	"testing"

	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/events"
	"github.com/tolelom/hybridchain/hashx"
)

type fakeStore struct {
	blocks map[hashx.Hash256]*core.Block
}

func (s *fakeStore) Get(h hashx.Hash256) (*core.Block, bool) {
	b, ok := s.blocks[h]
	return b, ok
}

func TestRecordBlockAndTxnDirect(t *testing.T) {
	idx := New(&fakeStore{blocks: map[hashx.Hash256]*core.Block{}}, events.NewEmitter())

	var target hashx.Hash256
	for i := range target {
		target[i] = 0xff
	}
	block := core.NewGenesisBlock(target, target, 1000)
	idx.RecordBlock(block)

	got, ok := idx.Block(block.Hash())
	if !ok || got.Hash() != block.Hash() {
		t.Fatalf("Block(%s) did not return the recorded block", block.Hash())
	}
	if len(idx.AllBlocks()) != 1 {
		t.Fatalf("AllBlocks() = %d, want 1", len(idx.AllBlocks()))
	}

	tx := core.NewTransaction("deadbeef", 1, []byte("payload"), 2000)
	idx.RecordTxn(tx)
	gotTx, ok := idx.Txn(tx.Hash())
	if !ok || gotTx.Hash() != tx.Hash() {
		t.Fatalf("Txn(%s) did not return the recorded transaction", tx.Hash())
	}
	if len(idx.AllTxns()) != 1 {
		t.Fatalf("AllTxns() = %d, want 1", len(idx.AllTxns()))
	}
}

func TestOnBlockEventRecordsBlockAndItsTxns(t *testing.T) {
	var target hashx.Hash256
	for i := range target {
		target[i] = 0xff
	}
	block := core.NewGenesisBlock(target, target, 1000)
	tx := core.NewTransaction("deadbeef", 1, []byte("payload"), 2000)
	block.Content.Data = append(block.Content.Data, tx)

	store := &fakeStore{blocks: map[hashx.Hash256]*core.Block{block.Hash(): block}}
	emitter := events.NewEmitter()
	idx := New(store, emitter)

	emitter.Emit(events.Event{Type: events.EventBlockMined, Hash: block.Hash().String()})

	if _, ok := idx.Block(block.Hash()); !ok {
		t.Fatal("expected block to be recorded after EventBlockMined")
	}
	if _, ok := idx.Txn(tx.Hash()); !ok {
		t.Fatal("expected the block's transaction to be recorded after EventBlockMined")
	}
}

func TestOnBlockEventIgnoresUnknownHash(t *testing.T) {
	store := &fakeStore{blocks: map[hashx.Hash256]*core.Block{}}
	emitter := events.NewEmitter()
	idx := New(store, emitter)

	var unknown hashx.Hash256
	unknown[0] = 1
	emitter.Emit(events.Event{Type: events.EventBlockMined, Hash: unknown.String()})

	if len(idx.AllBlocks()) != 0 {
		t.Fatalf("AllBlocks() = %d, want 0 for an unresolvable event", len(idx.AllBlocks()))
	}
}
