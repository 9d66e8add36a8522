// Package lookupindex maintains the all-blocks/all-txns lookup tables named
// as a shared resource in spec.md §5's concurrency table: gossip and the CLI
// read it, while the miner, staker, and gossip write it. It is grounded on
// the teacher's indexer.go, which keeps the same shape — subscribe to chain
// events, maintain a secondary map alongside the authoritative store — but
// here the secondary map is an identity index (every block and transaction
// ever seen, by hash) rather than an owner/session index over asset events.
package lookupindex

import (
	"sync"

	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/events"
	"github.com/tolelom/hybridchain/hashx"
)

// blockSource is the subset of store.Store the index needs to resolve a
// mined block's hash (carried in an event) back into its full content.
type blockSource interface {
	Get(h hashx.Hash256) (*core.Block, bool)
}

// Index is a mutex-guarded map of every block and transaction identity the
// node has observed, independent of whether that block is still on the
// longest chain or that transaction is still pending in the mempool.
type Index struct {
	mu     sync.RWMutex
	blocks map[hashx.Hash256]*core.Block
	txns   map[hashx.Hash256]*core.SignedTransaction
}

// New creates an Index and subscribes it to emitter so every block the
// miner or staker locally produces is recorded automatically. A block
// gossip accepts from a peer never emits EventBlockMined/EventFruitMined/
// EventPosBlockWon — those three types double as the staker's own-PoW-share
// tally (events/emitter.go, staker.onOwnFruit), so a gossiped block must not
// raise them — which is why gossip.Worker calls RecordBlock directly for
// anything it inserts instead of relying on this subscription. The
// transaction side has no emitted event at all, so callers (gossip, RPC
// submission) always call RecordTxn explicitly.
func New(store blockSource, emitter *events.Emitter) *Index {
	idx := &Index{
		blocks: make(map[hashx.Hash256]*core.Block),
		txns:   make(map[hashx.Hash256]*core.SignedTransaction),
	}
	onMined := func(ev events.Event) { idx.onBlockEvent(store, ev) }
	emitter.Subscribe(events.EventBlockMined, onMined)
	emitter.Subscribe(events.EventFruitMined, onMined)
	emitter.Subscribe(events.EventPosBlockWon, onMined)
	return idx
}

func (idx *Index) onBlockEvent(store blockSource, ev events.Event) {
	h, err := hashx.FromHex(ev.Hash)
	if err != nil {
		return
	}
	block, ok := store.Get(h)
	if !ok {
		return
	}
	idx.RecordBlock(block)
	for _, tx := range block.Content.Data {
		idx.RecordTxn(tx)
	}
}

// RecordBlock adds block to the index, keyed by its own hash.
func (idx *Index) RecordBlock(block *core.Block) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.blocks[block.Hash()] = block
}

// RecordTxn adds tx to the index, keyed by its hash. Gossip calls this for
// every transaction it serves or accepts (spec.md §4.8: "insert into the
// all-txns map"), and RPC submission calls it for whatever it hands to the
// mempool, so a transaction remains resolvable by hash after it leaves the
// mempool by being mined.
func (idx *Index) RecordTxn(tx *core.SignedTransaction) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.txns[tx.Hash()] = tx
}

// Block returns the block recorded under h, if any.
func (idx *Index) Block(h hashx.Hash256) (*core.Block, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	b, ok := idx.blocks[h]
	return b, ok
}

// Txn returns the transaction recorded under h, if any.
func (idx *Index) Txn(h hashx.Hash256) (*core.SignedTransaction, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	tx, ok := idx.txns[h]
	return tx, ok
}

// AllBlocks returns every recorded block hash, in no particular order.
func (idx *Index) AllBlocks() []hashx.Hash256 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]hashx.Hash256, 0, len(idx.blocks))
	for h := range idx.blocks {
		out = append(out, h)
	}
	return out
}

// AllTxns returns every recorded transaction hash, in no particular order.
func (idx *Index) AllTxns() []hashx.Hash256 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]hashx.Hash256, 0, len(idx.txns))
	for h := range idx.txns {
		out = append(out, h)
	}
	return out
}
