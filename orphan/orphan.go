// Package orphan implements the orphan buffer, component D: blocks that
// arrived before their parent, keyed by identity and released once their
// ancestor chain resolves into the store.
//
// The spec permits, but does not require, size-bounded eviction with an LRU
// discipline provided evicted orphans are re-requested on next appearance
// (spec.md §4.4); this implementation takes that option, using
// decred/dcrd/lru's generic map so a pathological flood of unresolvable
// orphans cannot grow the buffer without bound.
package orphan

import (
	"sync"

	"github.com/decred/dcrd/lru"

	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/hashx"
)

// DefaultCapacity bounds the number of buffered orphans before the oldest
// (by least-recent-use) is evicted.
const DefaultCapacity = 4096

// Buffer holds blocks whose parent is not yet in the store.
type Buffer struct {
	mu       sync.Mutex
	byHash   *lru.Map[hashx.Hash256, *core.Block]
	waitingOn map[hashx.Hash256][]hashx.Hash256 // parent hash -> orphan hashes waiting on it
}

// New returns an empty buffer bounded at capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		byHash:    lru.NewMap[hashx.Hash256, *core.Block](uint(capacity)),
		waitingOn: make(map[hashx.Hash256][]hashx.Hash256),
	}
}

// Add buffers block, keyed by its own identity and indexed under the
// missing parent hash it is waiting on. It returns nothing: requesting
// missingParent from a peer is left to the caller, and the buffer itself
// does not recurse further up.
func (b *Buffer) Add(block *core.Block, missingParent hashx.Hash256) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := block.Hash()
	// byHash may silently evict its least-recently-used entry here if the
	// buffer is at capacity. waitingOn keeps the stale index entry for that
	// evicted hash; Resolve simply skips it via byHash.Get's not-found
	// return, and the peer re-delivering the block on next appearance
	// re-adds it cleanly (spec.md §4.4's re-request-on-reappearance).
	b.byHash.Put(h, block)
	b.waitingOn[missingParent] = append(b.waitingOn[missingParent], h)
}

// Contains reports whether h is currently buffered.
func (b *Buffer) Contains(h hashx.Hash256) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byHash.Contains(h)
}

// Resolve removes and returns every orphan that was waiting directly on
// parentHash, so the caller can re-enqueue them for another insert attempt.
func (b *Buffer) Resolve(parentHash hashx.Hash256) []*core.Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	waiters := b.waitingOn[parentHash]
	delete(b.waitingOn, parentHash)
	out := make([]*core.Block, 0, len(waiters))
	for _, h := range waiters {
		if blk, ok := b.byHash.Get(h); ok {
			out = append(out, blk)
			b.byHash.Delete(h)
		}
	}
	return out
}

// Len returns the number of currently-buffered orphans.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byHash.Len()
}
