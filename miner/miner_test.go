package miner

import (
	"context"
	"testing"
	"time"

	"github.com/tolelom/hybridchain/chain"
	"github.com/tolelom/hybridchain/config"
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/crypto"
	"github.com/tolelom/hybridchain/events"
	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/pool"
	"github.com/tolelom/hybridchain/store"
)

func newTestMiner(t *testing.T, variant config.Variant) (*Miner, *chain.View, *pool.Mempool) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Consensus.Variant = variant
	cfg.Consensus.TxnNumber = 1
	cfg.Consensus.FruitTargetRatio = 0.2

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
	spam, err := pool.NewSpamRecorder()
	if err != nil {
		t.Fatalf("NewSpamRecorder: %v", err)
	}
	emitter := events.NewEmitter()

	return New(v, mp, tp, spam, cfg, emitter), v, mp
}

func signedTx(t *testing.T, nonce uint64) *core.SignedTransaction {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	tx := core.NewTransaction(pub.Hex(), nonce, []byte("payload"), 1)
	tx.Sign(priv)
	return tx
}

func TestMinerMinesFullBlockInBitcoinMode(t *testing.T) {
	m, v, mp := newTestMiner(t, config.VariantBitcoin)
	if err := mp.Add(signedTx(t, 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var broadcasted hashx.Hash256
	m.Broadcast = func(h hashx.Hash256) { broadcasted = h }

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	m.SendControl(Control{State: StateRun})

	deadline := time.After(1500 * time.Millisecond)
	for {
		_, height := v.Tip()
		if height.Lo >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("miner did not advance the tip in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.SendControl(Control{State: StateShutDown})
	<-done

	if broadcasted.IsZero() {
		t.Fatal("miner should have broadcast the mined block's hash")
	}
	if mp.Size() != 0 {
		t.Fatalf("mempool size = %d, want 0 after inclusion", mp.Size())
	}
}

func TestMinerRespectsPausedState(t *testing.T) {
	m, v, mp := newTestMiner(t, config.VariantBitcoin)
	if err := mp.Add(signedTx(t, 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	<-done

	if _, height := v.Tip(); height.Lo != 0 {
		t.Fatal("a miner left Paused should never advance the tip")
	}
}
