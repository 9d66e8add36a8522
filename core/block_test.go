package core

import (
	"testing"

	"github.com/tolelom/hybridchain/crypto"
	"github.com/tolelom/hybridchain/hashx"
)

func TestTransactionSignAndVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	tx := NewTransaction(pub.Hex(), 1, []byte("payload"), 1000)
	tx.Sign(priv)
	if err := tx.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	tx.Nonce = 2
	if err := tx.Verify(); err == nil {
		t.Fatal("Verify should reject a tampered transaction")
	}
}

func TestTransactionSpamIDStableUnderResign(t *testing.T) {
	priv1, pub1, _ := crypto.GenerateKeyPair()
	tx := NewTransaction(pub1.Hex(), 1, []byte("payload"), 1000)
	tx.Sign(priv1)
	id1 := tx.SpamID()

	// Re-signing with the same fields must not change the dedup identity.
	tx.Sign(priv1)
	id2 := tx.SpamID()
	if id1 != id2 {
		t.Fatal("SpamID must be stable across re-signs of identical fields")
	}
}

func TestGenesisBlockHasZeroParentAndHeight(t *testing.T) {
	g := NewGenesisBlock(hashx.Hash256{}, hashx.Hash256{}, 0)
	if !g.IsGenesis() {
		t.Fatal("genesis block must report IsGenesis")
	}
	if err := g.VerifyIntegrity(); err != nil {
		t.Fatalf("genesis VerifyIntegrity: %v", err)
	}
	if h := NextHeight(nil); h != (Uint128{}) {
		t.Fatalf("NextHeight(nil) = %v, want zero", h)
	}
}

func TestBlockVerifyIntegrityDetectsTamperedContent(t *testing.T) {
	priv, pub, _ := crypto.GenerateKeyPair()
	tx := NewTransaction(pub.Hex(), 1, []byte("x"), 1)
	tx.Sign(priv)
	content := Content{Data: []*SignedTransaction{tx}}
	b := &Block{
		Header:  Header{MerkleRoot: content.MerkleRoot()},
		Content: content,
	}
	if err := b.VerifyIntegrity(); err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	b.Content.Data = append(b.Content.Data, tx)
	if err := b.VerifyIntegrity(); err == nil {
		t.Fatal("VerifyIntegrity should reject content added after merkle_root was fixed")
	}
}

func TestNextHeightIncrements(t *testing.T) {
	parent := &BlockRecord{Height: Uint128{Lo: 5}}
	if h := NextHeight(parent); h != (Uint128{Lo: 6}) {
		t.Fatalf("NextHeight = %v, want {Lo:6}", h)
	}
}
