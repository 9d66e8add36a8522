package pool

import (
	"sync"

	"github.com/tolelom/hybridchain/hashx"
)

// Tranpool is the thread-safe pool of fruit/PoW-block hashes awaiting
// reference from a PoS block's transaction_ref list.
type Tranpool struct {
	mu  sync.RWMutex
	set map[hashx.Hash256]struct{}
	ord []hashx.Hash256
}

// NewTranpool creates an empty tranpool.
func NewTranpool() *Tranpool {
	return &Tranpool{set: make(map[hashx.Hash256]struct{})}
}

// Push adds h if not already present.
func (t *Tranpool) Push(h hashx.Hash256) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.set[h]; exists {
		return
	}
	t.set[h] = struct{}{}
	t.ord = append(t.ord, h)
}

// Pending returns up to n pending hashes, in insertion order.
func (t *Tranpool) Pending(n int) []hashx.Hash256 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]hashx.Hash256, 0, n)
	for _, h := range t.ord {
		if _, ok := t.set[h]; ok {
			out = append(out, h)
			if len(out) >= n {
				break
			}
		}
	}
	return out
}

// Remove deletes hashes from the pool (called when their referencing PoS
// block enters the longest chain, spec.md §4.7).
func (t *Tranpool) Remove(hashes []hashx.Hash256) {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := make(map[hashx.Hash256]bool, len(hashes))
	for _, h := range hashes {
		delete(t.set, h)
		removed[h] = true
	}
	filtered := t.ord[:0]
	for _, h := range t.ord {
		if !removed[h] {
			filtered = append(filtered, h)
		}
	}
	t.ord = filtered
}

// Restore re-admits hashes a reorg returned from a discarded chain tail.
func (t *Tranpool) Restore(hashes []hashx.Hash256) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range hashes {
		if _, exists := t.set[h]; exists {
			continue
		}
		t.set[h] = struct{}{}
		t.ord = append(t.ord, h)
	}
}

// Size returns the number of pending hashes.
func (t *Tranpool) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.set)
}
