package rpc

import (
	"testing"

	"github.com/tolelom/hybridchain/chain"
	"github.com/tolelom/hybridchain/config"
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/events"
	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/lightclient"
	"github.com/tolelom/hybridchain/lookupindex"
	"github.com/tolelom/hybridchain/miner"
	"github.com/tolelom/hybridchain/network"
	"github.com/tolelom/hybridchain/pool"
	"github.com/tolelom/hybridchain/staker"
	"github.com/tolelom/hybridchain/store"
	"github.com/tolelom/hybridchain/txgen"
)

func maxTarget() hashx.Hash256 {
	var t hashx.Hash256
	for i := range t {
		t[i] = 0xff
	}
	return t
}

// newTestHandler builds an RPC handler with every dependency wired to a
// fresh, empty chain, mirroring what cmd/node assembles at startup.
func newTestHandler(t *testing.T, variant config.Variant) *Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Consensus.Variant = variant

	st := store.New()
	genesis := core.NewGenesisBlock(maxTarget(), maxTarget(), 0)
	gh, outcome := st.InsertGenesis(genesis)
	if outcome != store.Inserted {
		t.Fatalf("InsertGenesis: %v", outcome)
	}
	view := chain.New(st, cfg, gh)

	emitter := events.NewEmitter()
	mp := pool.NewMempool()
	tp := pool.NewTranpool()
	spam, err := pool.NewSpamRecorder()
	if err != nil {
		t.Fatalf("NewSpamRecorder: %v", err)
	}
	idx := lookupindex.New(st, emitter)

	m := miner.New(view, mp, tp, spam, cfg, emitter)

	var s *staker.Staker
	if variant == config.VariantMinotaur {
		s, err = staker.New(view, mp, tp, cfg, emitter)
		if err != nil {
			t.Fatalf("staker.New: %v", err)
		}
	}

	gen, err := txgen.New(mp)
	if err != nil {
		t.Fatalf("txgen.New: %v", err)
	}

	node := network.NewNode("node0", "127.0.0.1:0", nil)
	lc := lightclient.New(node, view, cfg)

	return NewHandler(m, s, gen, lc, node, idx, spam)
}

func TestMinerStartAcceptsValidLambda(t *testing.T) {
	h := newTestHandler(t, config.VariantFruitchain)
	resp := h.MinerStart("5000")
	if !resp.Success {
		t.Fatalf("expected success, got %q", resp.Message)
	}
}

func TestMinerStartRejectsInvalidLambda(t *testing.T) {
	h := newTestHandler(t, config.VariantFruitchain)
	resp := h.MinerStart("not-a-number")
	if resp.Success {
		t.Fatal("expected failure for a non-numeric lambda")
	}
}

func TestStakerStartFailsOutsideMinotaur(t *testing.T) {
	h := newTestHandler(t, config.VariantFruitchain)
	resp := h.StakerStart("1000")
	if resp.Success {
		t.Fatal("expected failure: staker is not configured for this variant")
	}
}

func TestStakerStartSucceedsUnderMinotaur(t *testing.T) {
	h := newTestHandler(t, config.VariantMinotaur)
	resp := h.StakerStart("1000")
	if !resp.Success {
		t.Fatalf("expected success, got %q", resp.Message)
	}
}

func TestTxGeneratorStart(t *testing.T) {
	h := newTestHandler(t, config.VariantFruitchain)
	resp := h.TxGeneratorStart("2000")
	if !resp.Success {
		t.Fatalf("expected success, got %q", resp.Message)
	}
}

func TestNetworkPingWithNoPeers(t *testing.T) {
	h := newTestHandler(t, config.VariantFruitchain)
	resp := h.NetworkPing()
	if !resp.Success {
		t.Fatalf("expected success, got %q", resp.Message)
	}
}

func TestLedgerTxnEmpty(t *testing.T) {
	h := newTestHandler(t, config.VariantFruitchain)
	txns, err := h.LedgerTxn()
	if err != nil {
		t.Fatalf("LedgerTxn: %v", err)
	}
	if len(txns) != 0 {
		t.Fatalf("len(txns) = %d, want 0 on a fresh chain", len(txns))
	}
}

func TestLedgerSpamEmpty(t *testing.T) {
	h := newTestHandler(t, config.VariantFruitchain)
	dump := h.LedgerSpam()
	if dump.SeenCount != 0 {
		t.Fatalf("SeenCount = %d, want 0", dump.SeenCount)
	}
}
