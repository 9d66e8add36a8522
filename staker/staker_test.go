package staker

import (
	"testing"

	"github.com/tolelom/hybridchain/chain"
	"github.com/tolelom/hybridchain/config"
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/events"
	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/pool"
	"github.com/tolelom/hybridchain/store"
)

func newTestStaker(t *testing.T) (*Staker, *chain.View) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Consensus.Variant = config.VariantMinotaur
	cfg.Consensus.TxnBlockNumber = 1
	cfg.Consensus.Omega = 0.7
	cfg.Consensus.Beta = 0.1

	var maxTarget hashx.Hash256
	for i := range maxTarget {
		maxTarget[i] = 0xff
	}

	st := store.New()
	genesis := core.NewGenesisBlock(maxTarget, maxTarget, 0)
	gh, _ := st.InsertGenesis(genesis)
	v := chain.New(st, cfg, gh)

	mp := pool.NewMempool()
	tp := pool.NewTranpool()
	emitter := events.NewEmitter()

	s, err := New(v, mp, tp, cfg, emitter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, v
}

func TestVirtualFractionBootstrapsTo100Percent(t *testing.T) {
	s, _ := newTestStaker(t)
	if f := s.virtualFraction(0); f != 1.0 {
		t.Fatalf("virtualFraction at epoch 0 = %v, want 1.0 (no previous epoch data)", f)
	}
}

func TestVirtualFractionUsesCachedPreviousEpoch(t *testing.T) {
	s, _ := newTestStaker(t)
	s.epochCounts[3] = &epochCount{mine: 2, total: 8}
	if f := s.virtualFraction(4); f != 0.25 {
		t.Fatalf("virtualFraction = %v, want 0.25", f)
	}
}

func TestStakerWinsElectionAndConsumesTranpoolRefs(t *testing.T) {
	s, v := newTestStaker(t)
	fruitHash := hashx.Sum([]byte("fruit-1"))
	s.tp.Push(fruitHash)

	var won bool
	for i := 0; i < 200 && !won; i++ {
		s.attempt()
		_, height := v.Tip()
		if height.Lo >= 1 {
			won = true
		}
	}
	if !won {
		t.Fatal("staker should have won at least one election in 200 attempts against a loose target")
	}
	if s.tp.Size() != 0 {
		t.Fatalf("tranpool size = %d, want 0 after the winning block consumed its ref", s.tp.Size())
	}
}
