package gossip

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/tolelom/hybridchain/chain"
	"github.com/tolelom/hybridchain/config"
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/crypto"
	"github.com/tolelom/hybridchain/events"
	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/lookupindex"
	"github.com/tolelom/hybridchain/network"
	"github.com/tolelom/hybridchain/orphan"
	"github.com/tolelom/hybridchain/pool"
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

// newTestWorker builds a Worker over a fresh Bitcoin-variant view seeded
// with a genesis block, plus a pipe-connected peer the test can read the
// worker's replies from.
func newTestWorker(t *testing.T) (*Worker, *store.Store, hashx.Hash256, *network.Peer, net.Conn) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Consensus.Variant = config.VariantBitcoin

	st := store.New()
	genesis := core.NewGenesisBlock(maxTarget(), maxTarget(), 0)
	gh, _ := st.InsertGenesis(genesis)
	view := chain.New(st, cfg, gh)

	serverConn, clientConn := net.Pipe()
	node := network.NewNode("node0", "127.0.0.1:0", nil)
	peer := network.NewPeer("peer1", "peer1-addr", serverConn)

	idx := lookupindex.New(st, events.NewEmitter())
	w := New(node, view, orphan.New(0), pool.NewMempool(), pool.NewTranpool(), idx, cfg, events.NewEmitter())
	return w, st, gh, peer, clientConn
}

func childBlock(parent hashx.Hash256, pow hashx.Hash256) *core.Block {
	content := core.Content{}
	header := core.Header{
		Parent:        parent,
		PowDifficulty: pow,
		PosDifficulty: pow,
		TimestampUs:   core.Uint128FromMicros(1),
		MerkleRoot:    content.MerkleRoot(),
	}
	return &core.Block{Header: header, Content: content, BlockType: core.BlockTypePoWFruit}
}

func TestHandleNewBlockHashesRequestsUnknown(t *testing.T) {
	w, _, _, peer, client := newTestWorker(t)
	defer client.Close()

	unknown := hashx.Sum([]byte("unknown-block"))
	go w.HandleFrame(peer, wire.MsgNewBlockHashes, marshal(t, wire.NewBlockHashesPayload{Hashes: []hashx.Hash256{unknown}}))

	var got wire.GetBlocksPayload
	typ, err := wire.Decode(client, &got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if typ != wire.MsgGetBlocks {
		t.Fatalf("type = %v, want MsgGetBlocks", typ)
	}
	if len(got.Hashes) != 1 || got.Hashes[0] != unknown {
		t.Fatalf("GetBlocks hashes = %v, want [%s]", got.Hashes, unknown)
	}
}

func TestHandleGetBlocksServesKnown(t *testing.T) {
	w, st, genesisHash, peer, client := newTestWorker(t)
	defer client.Close()

	genesis, _ := st.Get(genesisHash)
	go w.HandleFrame(peer, wire.MsgGetBlocks, marshal(t, wire.GetBlocksPayload{Hashes: []hashx.Hash256{genesisHash}}))

	var got wire.BlocksPayload
	typ, err := wire.Decode(client, &got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if typ != wire.MsgBlocks {
		t.Fatalf("type = %v, want MsgBlocks", typ)
	}
	if len(got.Blocks) != 1 || got.Blocks[0].Hash() != genesis.Hash() {
		t.Fatalf("did not receive the requested genesis block back")
	}
}

func TestDeliverAcceptsBlockWithKnownParent(t *testing.T) {
	w, st, genesisHash, _, client := newTestWorker(t)
	defer client.Close()

	child := childBlock(genesisHash, maxTarget())
	accepted := w.deliver(nil, []*core.Block{child})

	if len(accepted) != 1 || accepted[0] != child.Hash() {
		t.Fatalf("accepted = %v, want [%s]", accepted, child.Hash())
	}
	if !st.Contains(child.Hash()) {
		t.Fatal("expected child block to land in the store")
	}
}

func TestDeliverBuffersOrphanAndRequestsMissingParent(t *testing.T) {
	w, st, _, peer, client := newTestWorker(t)
	defer client.Close()

	var unknownParent hashx.Hash256
	unknownParent[0] = 0x42
	orphanBlock := childBlock(unknownParent, maxTarget())

	go w.deliver(peer, []*core.Block{orphanBlock})

	var got wire.GetBlocksPayload
	typ, err := wire.Decode(client, &got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if typ != wire.MsgGetBlocks {
		t.Fatalf("type = %v, want MsgGetBlocks", typ)
	}
	if len(got.Hashes) != 1 || got.Hashes[0] != unknownParent {
		t.Fatalf("GetBlocks hashes = %v, want [%s]", got.Hashes, unknownParent)
	}
	if st.Contains(orphanBlock.Hash()) {
		t.Fatal("orphaned block must not be inserted into the store")
	}
	if !w.orphans.Contains(orphanBlock.Hash()) {
		t.Fatal("expected the orphan to be buffered")
	}
}

func TestHandleTransactionsRecordsAndAddsToMempool(t *testing.T) {
	w, _, _, _, client := newTestWorker(t)
	defer client.Close()

	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	tx := core.NewTransaction(pub.Hex(), 1, []byte("payload"), 1)
	tx.Sign(priv)

	w.handleTransactions([]*core.SignedTransaction{tx})

	if _, ok := w.idx.Txn(tx.Hash()); !ok {
		t.Fatal("expected transaction to be recorded in the lookup index")
	}
	pending := w.mp.Pending(10)
	if len(pending) != 1 || pending[0].Hash() != tx.Hash() {
		t.Fatalf("expected transaction to be pending in the mempool, got %v", pending)
	}
}

// marshal mirrors what node.readLoop hands HandleFrame: the plain JSON
// payload body, already separated from its wire frame by DecodeRaw.
func marshal(t *testing.T, v any) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}
