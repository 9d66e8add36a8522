// Package chain implements the blockchain view, component C: chain
// selection over the block store, the selfish-mining state machine, and
// PoW/PoS difficulty retargeting. It never mutates block records itself —
// that is store's job — it only decides which stored record is the tip.
package chain

import (
	"math/rand/v2"
	"sync"

	"github.com/tolelom/hybridchain/config"
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/store"
)

// RNG is the random source behind the selfish tie-break coin flip. It is
// injectable so tests can make the 0.7-probability decision deterministic
// (spec.md §8, §9 design notes).
type RNG interface {
	Float64() float64
}

type defaultRNG struct{}

func (defaultRNG) Float64() float64 { return rand.Float64() }

// View is the mutex-guarded blockchain view over a Store.
type View struct {
	mu  sync.RWMutex
	st  *store.Store
	cfg *config.Config
	rng RNG

	tip       hashx.Hash256
	tipHeight core.Uint128

	// Selfish-mining bookkeeping (spec.md §4.3). pubLen is the height the
	// attacker has publicly acknowledged; privateLead is the attacker's
	// current secret advance over pubLen. Both stay zero in honest mode.
	pubLen      core.Uint128
	privateLead int64
}

// New builds a View rooted at genesisHash, already inserted into st.
func New(st *store.Store, cfg *config.Config, genesisHash hashx.Hash256) *View {
	return &View{
		st:  st,
		cfg: cfg,
		rng: defaultRNG{},
		tip: genesisHash,
	}
}

// SetRNG overrides the tie-break random source. Intended for tests.
func (v *View) SetRNG(rng RNG) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rng = rng
}

// Tip returns the current tip hash and height.
func (v *View) Tip() (hashx.Hash256, core.Uint128) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.tip, v.tipHeight
}

// Store returns the underlying block store.
func (v *View) Store() *store.Store {
	return v.st
}

// uint128Gt reports a > b for the restricted range (Hi rarely nonzero:
// heights and epoch indices in one process lifetime always fit in Lo).
func uint128Gt(a, b core.Uint128) bool {
	if a.Hi != b.Hi {
		return a.Hi > b.Hi
	}
	return a.Lo > b.Lo
}

func uint128Eq(a, b core.Uint128) bool { return a == b }

// InsertHonest delegates to the store and updates the tip under ordinary
// (non-selfish) rules: a strictly taller chain always wins; an equal-height
// selfish block wins the tie with the configured tie-break probability
// (spec.md §4.3, modelling the network-propagation head start a rushed
// selfish release has over the honest announcement).
func (v *View) InsertHonest(block *core.Block) (changed bool, outcome store.InsertOutcome) {
	h, outcome := v.st.Insert(block)
	if outcome != store.Inserted {
		return false, outcome
	}
	height, _ := v.st.GetHeight(h)

	v.mu.Lock()
	defer v.mu.Unlock()
	if uint128Gt(height, v.tipHeight) {
		v.tip = h
		v.tipHeight = height
		return true, outcome
	}
	if uint128Eq(height, v.tipHeight) && block.SelfishBlock {
		if v.rng.Float64() < v.tieBreak() {
			v.tip = h
			v.tipHeight = height
			return true, outcome
		}
	}
	return false, outcome
}

func (v *View) tieBreak() float64 {
	p := v.cfg.Consensus.SelfishTieBreak
	if p <= 0 {
		return 0.7
	}
	return p
}

// InsertSelfish delegates to the store and updates the tip under the
// selfish-mining state machine (spec.md §4.3).
func (v *View) InsertSelfish(block *core.Block) (changed bool, outcome store.InsertOutcome) {
	h, outcome := v.st.Insert(block)
	if outcome != store.Inserted {
		return false, outcome
	}
	height, _ := v.st.GetHeight(h)

	v.mu.Lock()
	defer v.mu.Unlock()

	if block.SelfishBlock && uint128Gt(height, v.tipHeight) {
		v.privateLead++
		v.tip = h
		v.tipHeight = height
		return true, outcome
	}

	if !block.SelfishBlock && uint128Gt(height, v.pubLen) {
		if v.privateLead > 0 {
			// Publish one private block to match: the attacker's private
			// fork stays ahead but concedes exactly one block of lead.
			v.privateLead--
			v.pubLen.Lo++
			return false, outcome
		}
		v.tip = h
		v.tipHeight = height
		v.pubLen = height
		return true, outcome
	}

	return false, outcome
}

// IsWithholding reports whether a selfish miner/staker currently has an
// unpublished private lead. A selfish reorg-bookkeeping filter consults this
// to avoid restoring other parties' displaced transactions while the attack
// is still in progress (spec.md §4.6, §4.7).
func (v *View) IsWithholding() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.privateLead > 0
}

// AllBlocksInLongestChain walks from the tip to genesis via parent links and
// returns the chain in genesis-first order. O(depth).
func (v *View) AllBlocksInLongestChain() []*core.BlockRecord {
	v.mu.RLock()
	tip := v.tip
	v.mu.RUnlock()

	var chain []*core.BlockRecord
	cur := tip
	for {
		rec, ok := v.st.GetRecord(cur)
		if !ok {
			break
		}
		chain = append(chain, rec)
		if rec.Block.IsGenesis() {
			break
		}
		cur = rec.Block.Header.Parent
	}
	// reverse into genesis-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
