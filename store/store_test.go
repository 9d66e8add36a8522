package store

import (
	"testing"

	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/hashx"
)

func child(parent hashx.Hash256, nonce uint32) *core.Block {
	content := core.Content{}
	return &core.Block{
		Header: core.Header{
			Parent:     parent,
			Nonce:      nonce,
			MerkleRoot: content.MerkleRoot(),
		},
		Content: content,
	}
}

func TestInsertGenesisThenLinearChain(t *testing.T) {
	s := New()
	genesis := core.NewGenesisBlock(hashx.Hash256{}, hashx.Hash256{}, 0)
	gh, outcome := s.InsertGenesis(genesis)
	if outcome != Inserted {
		t.Fatalf("InsertGenesis outcome = %v, want Inserted", outcome)
	}
	if h, ok := s.GetHeight(gh); !ok || h != (core.Uint128{}) {
		t.Fatalf("genesis height = %v, %v; want {}, true", h, ok)
	}

	b1 := child(gh, 1)
	h1, outcome := s.Insert(b1)
	if outcome != Inserted {
		t.Fatalf("Insert(b1) outcome = %v, want Inserted", outcome)
	}
	height, ok := s.GetHeight(h1)
	if !ok || height != (core.Uint128{Lo: 1}) {
		t.Fatalf("b1 height = %v, %v; want {Lo:1}, true", height, ok)
	}

	m, ok := s.MMRFor(h1)
	if !ok || m.Len() != 2 {
		t.Fatalf("MMRFor(b1) len = %d, want 2", m.Len())
	}
}

func TestInsertDuplicateIsIdempotent(t *testing.T) {
	s := New()
	genesis := core.NewGenesisBlock(hashx.Hash256{}, hashx.Hash256{}, 0)
	gh, _ := s.InsertGenesis(genesis)
	b1 := child(gh, 7)
	if _, outcome := s.Insert(b1); outcome != Inserted {
		t.Fatal("first insert should succeed")
	}
	if _, outcome := s.Insert(b1); outcome != Duplicate {
		t.Fatalf("second insert of same block should be Duplicate, got %v", outcome)
	}
}

func TestInsertMissingParent(t *testing.T) {
	s := New()
	orphan := child(hashx.Sum([]byte("nonexistent")), 1)
	if _, outcome := s.Insert(orphan); outcome != MissingParent {
		t.Fatalf("outcome = %v, want MissingParent", outcome)
	}
	if s.Contains(orphan.Hash()) {
		t.Fatal("a MissingParent insert must not add the block to the store")
	}
}

func TestContainsAndGetUnknown(t *testing.T) {
	s := New()
	if s.Contains(hashx.Sum([]byte("nope"))) {
		t.Fatal("empty store should not contain anything")
	}
	if _, ok := s.Get(hashx.Sum([]byte("nope"))); ok {
		t.Fatal("Get on unknown hash should report not-found")
	}
}
