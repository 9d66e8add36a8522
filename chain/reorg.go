package chain

import (
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/pool"
)

// chainFromTip walks tip back to genesis via parent links, in genesis-first
// order. Unlike AllBlocksInLongestChain it does not read v.tip, so it can
// reconstruct a chain that is no longer the current tip (the pre-reorg
// chain) as long as the store still holds its records — which it always
// does, since the store never destroys records (spec.md §3 invariants).
func (v *View) chainFromTip(tip hashx.Hash256) []*core.BlockRecord {
	var out []*core.BlockRecord
	cur := tip
	for {
		rec, ok := v.st.GetRecord(cur)
		if !ok {
			break
		}
		out = append(out, rec)
		if rec.Block.IsGenesis() {
			break
		}
		cur = rec.Block.Header.Parent
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ReorgResult is the tails diff between a pre-insert and post-insert
// longest chain (spec.md §4.7).
type ReorgResult struct {
	Removed []*core.BlockRecord
	Added   []*core.BlockRecord
}

// ComputeReorg diffs the chain rooted at oldTip against the current longest
// chain, dropping their shared prefix. Call this immediately after an
// insert that may have changed the tip.
func (v *View) ComputeReorg(oldTip hashx.Hash256) ReorgResult {
	oldChain := v.chainFromTip(oldTip)
	newChain := v.AllBlocksInLongestChain()

	shared := 0
	for shared < len(oldChain) && shared < len(newChain) &&
		oldChain[shared].Block.Hash() == newChain[shared].Block.Hash() {
		shared++
	}
	return ReorgResult{
		Removed: oldChain[shared:],
		Added:   newChain[shared:],
	}
}

// ApplyReorg rewrites mempool and tranpool per spec.md §4.7: transactions
// and fruit/PoW references carried by removed blocks are restored, and
// those carried by added blocks are dropped. selfishSkip, when non-nil, is
// consulted per removed block and may suppress its restoration — used by a
// withholding attacker to avoid resurrecting other parties' work while it
// keeps a private fork secret.
func ApplyReorg(result ReorgResult, mp *pool.Mempool, tp *pool.Tranpool, selfishSkip func(*core.BlockRecord) bool) {
	for _, rec := range result.Removed {
		if selfishSkip != nil && selfishSkip(rec) {
			continue
		}
		if len(rec.Block.Content.Data) > 0 {
			mp.Restore(rec.Block.Content.Data)
		}
		if len(rec.Block.Content.TransactionRef) > 0 {
			tp.Restore(rec.Block.Content.TransactionRef)
		}
	}
	for _, rec := range result.Added {
		if len(rec.Block.Content.Data) > 0 {
			mp.RemoveTxns(rec.Block.Content.Data)
		}
		if len(rec.Block.Content.TransactionRef) > 0 {
			tp.Remove(rec.Block.Content.TransactionRef)
		}
	}
}
