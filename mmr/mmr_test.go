package mmr

import (
	"testing"

	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/merkle"
)

func TestEmptyRootMatchesEmptyMerkle(t *testing.T) {
	m := Empty()
	if m.Len() != 0 {
		t.Fatalf("empty MMR should have 0 leaves, got %d", m.Len())
	}
	if m.Root() != merkle.Build(nil).Root() {
		t.Fatal("empty MMR root should equal the empty Merkle tree's root")
	}
}

func TestAppendAndProveEveryLeaf(t *testing.T) {
	m := Empty()
	var leaves []hashx.Hash256
	for i := 0; i < 20; i++ {
		leaf := hashx.Sum([]byte{byte(i)})
		leaves = append(leaves, leaf)
		m = m.Append(leaf)
	}
	root := m.Root()
	for i, leaf := range leaves {
		proof, ok := m.ProofFor(i)
		if !ok {
			t.Fatalf("ProofFor(%d): not found", i)
		}
		if !Verify(root, leaf, proof) {
			t.Errorf("Verify failed for leaf %d of %d", i, len(leaves))
		}
	}
}

func TestAppendIsImmutable(t *testing.T) {
	m0 := Empty()
	m1 := m0.Append(hashx.Sum([]byte("a")))
	if m0.Len() != 0 {
		t.Error("Append must not mutate the receiver")
	}
	if m1.Len() != 1 {
		t.Error("Append should return an MMR with one more leaf")
	}
}

func TestVerifyRejectsWrongLeaf(t *testing.T) {
	m := Empty()
	for i := 0; i < 5; i++ {
		m = m.Append(hashx.Sum([]byte{byte(i)}))
	}
	proof, _ := m.ProofFor(2)
	if Verify(m.Root(), hashx.Sum([]byte("not present")), proof) {
		t.Error("verify should reject a leaf that was not appended at that index")
	}
}
