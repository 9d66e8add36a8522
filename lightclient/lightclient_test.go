package lightclient

import (
	"net"
	"testing"

	"github.com/tolelom/hybridchain/chain"
	"github.com/tolelom/hybridchain/config"
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/crypto"
	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/network"
	"github.com/tolelom/hybridchain/store"
	"github.com/tolelom/hybridchain/wire"
)

func maxTarget() hashx.Hash256 {
	var t hashx.Hash256
	for i := range t {
		t[i] = 0xff
	}
	return t
}

// buildChain inserts n blocks on top of st's genesis, each carrying one
// signed transaction, and returns the view plus the genesis hash.
func buildChain(t *testing.T, st *store.Store, gh hashx.Hash256, cfg *config.Config, n int) *chain.View {
	t.Helper()
	view := chain.New(st, cfg, gh)
	parent := gh
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair: %v", err)
		}
		tx := core.NewTransaction(pub.Hex(), uint64(i), []byte("payload"), int64(i))
		tx.Sign(priv)
		content := core.Content{Data: []*core.SignedTransaction{tx}}

		parentMMR, ok := st.MMRFor(parent)
		if !ok {
			t.Fatalf("MMRFor(%s): not found", parent)
		}
		header := core.Header{
			Parent:        parent,
			PowDifficulty: maxTarget(),
			PosDifficulty: maxTarget(),
			TimestampUs:   core.Uint128FromMicros(int64(i + 1)),
			MerkleRoot:    content.MerkleRoot(),
			MMRRoot:       parentMMR.Root(),
		}
		block := &core.Block{Header: header, Content: content, BlockType: core.BlockTypePoWFruit}
		if _, outcome := view.InsertHonest(block); outcome != store.Inserted {
			t.Fatalf("InsertHonest block %d: outcome %v", i, outcome)
		}
		parent = block.Hash()
	}
	return view
}

func chainBlocks(view *chain.View) []*core.Block {
	records := view.AllBlocksInLongestChain()
	blocks := make([]*core.Block, len(records))
	for i, r := range records {
		blocks[i] = r.Block
	}
	return blocks
}

func newTestClient(t *testing.T, n int) (*Client, *network.Peer, net.Conn) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Consensus.Variant = config.VariantBitcoin

	st := store.New()
	genesis := core.NewGenesisBlock(maxTarget(), maxTarget(), 0)
	gh, _ := st.InsertGenesis(genesis)
	view := buildChain(t, st, gh, cfg, n)

	serverConn, clientConn := net.Pipe()
	node := network.NewNode("node0", "127.0.0.1:0", nil)
	peer := network.NewPeer("peer1", "peer1-addr", serverConn)

	return New(node, view, cfg), peer, clientConn
}

func TestServeSPVGetChainReturnsFullChain(t *testing.T) {
	c, peer, client := newTestClient(t, 12)
	defer client.Close()

	go c.serveSPVGetChain(peer)

	var got wire.SPVChainPayload
	typ, err := wire.Decode(client, &got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if typ != wire.MsgSPVChain {
		t.Fatalf("type = %v, want MsgSPVChain", typ)
	}
	if len(got.Blocks) != 13 { // genesis + 12
		t.Fatalf("len(Blocks) = %d, want 13", len(got.Blocks))
	}
	if !got.Blocks[0].IsGenesis() {
		t.Fatal("expected first block to be genesis")
	}
}

func TestSPVTxnProofRoundTripVerifies(t *testing.T) {
	c, peer, client := newTestClient(t, 12)
	defer client.Close()

	go c.serveSPVVerifyRandomTxn(peer)

	var proof wire.SPVTxnProofPayload
	typ, err := wire.Decode(client, &proof)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if typ != wire.MsgSPVTxnProof {
		t.Fatalf("type = %v, want MsgSPVTxnProof", typ)
	}

	c.mu.Lock()
	c.spvChain = chainBlocks(c.view)
	c.mu.Unlock()

	if !c.verifySPVTxnProof(proof) {
		t.Fatal("expected a genuine proof against the client's accepted chain to verify")
	}
}

func TestSPVTxnProofRejectsTamperedRoot(t *testing.T) {
	c, peer, client := newTestClient(t, 12)
	defer client.Close()

	go c.serveSPVVerifyRandomTxn(peer)

	var proof wire.SPVTxnProofPayload
	if _, err := wire.Decode(client, &proof); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	c.mu.Lock()
	c.spvChain = chainBlocks(c.view)
	c.mu.Unlock()

	proof.Root = hashx.Sum([]byte("forged root"))
	if c.verifySPVTxnProof(proof) {
		t.Fatal("expected a tampered root to fail verification")
	}
}

func TestSPVTxnProofRejectsUnknownBlock(t *testing.T) {
	c, peer, client := newTestClient(t, 12)
	defer client.Close()

	go c.serveSPVVerifyRandomTxn(peer)

	var proof wire.SPVTxnProofPayload
	if _, err := wire.Decode(client, &proof); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// spvChain left empty: the client has not accepted any chain yet.
	if c.verifySPVTxnProof(proof) {
		t.Fatal("expected verification to fail with no locally accepted chain")
	}
}

func TestFlyGetChainSampleProofVerifies(t *testing.T) {
	c, peer, client := newTestClient(t, 5)
	defer client.Close()

	go c.serveFlyGetChain(peer)

	var got wire.FlyChainPayload
	typ, err := wire.Decode(client, &got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if typ != wire.MsgFlyChain {
		t.Fatalf("type = %v, want MsgFlyChain", typ)
	}
	if got.Proposal.ChainDepth != 6 { // genesis + 5
		t.Fatalf("ChainDepth = %d, want 6", got.Proposal.ChainDepth)
	}
	if !c.verifyFlySample(got) {
		t.Fatal("expected the sample proof to verify against the tip header's mmr_root")
	}
}

func TestFlyVerifyRandomTxnProofVerifies(t *testing.T) {
	c, peer, client := newTestClient(t, 5)
	defer client.Close()

	go c.serveFlyGetChain(peer)
	var chainResp wire.FlyChainPayload
	if _, err := wire.Decode(client, &chainResp); err != nil {
		t.Fatalf("Decode FlyChain: %v", err)
	}
	prop := chainResp.Proposal
	c.mu.Lock()
	c.flyProposal = &prop
	c.mu.Unlock()

	go c.serveFlyVerifyRandomTxn(peer)
	var proof wire.FlyTxnProofPayload
	typ, err := wire.Decode(client, &proof)
	if err != nil {
		t.Fatalf("Decode FlyTxnProof: %v", err)
	}
	if typ != wire.MsgFlyTxnProof {
		t.Fatalf("type = %v, want MsgFlyTxnProof", typ)
	}

	if !c.verifyFlyTxnProof(proof) {
		t.Fatal("expected the bundled MMR+Merkle proof to verify")
	}
}

func TestFlyVerifyRandomTxnProofRejectsWithoutProposal(t *testing.T) {
	c, peer, client := newTestClient(t, 5)
	defer client.Close()

	go c.serveFlyVerifyRandomTxn(peer)
	var proof wire.FlyTxnProofPayload
	if _, err := wire.Decode(client, &proof); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if c.verifyFlyTxnProof(proof) {
		t.Fatal("expected verification to fail with no accepted proposal")
	}
}
