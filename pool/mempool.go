// Package pool implements component E: the mempool of pending signed
// transactions, the tranpool of pending fruit/PoW hashes awaiting reference
// from a PoS block, and the spam recorder's duplicate-payload dedup set.
package pool

import (
	"errors"
	"sync"

	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/hashx"
)

// Mempool is the thread-safe pool of signed transactions awaiting inclusion
// in a fruit or PoW block.
type Mempool struct {
	mu  sync.RWMutex
	txs map[hashx.Hash256]*core.SignedTransaction
	ord []hashx.Hash256 // insertion order, for deterministic Pending iteration
}

// NewMempool creates an empty mempool.
func NewMempool() *Mempool {
	return &Mempool{txs: make(map[hashx.Hash256]*core.SignedTransaction)}
}

// Add validates and inserts tx. Duplicate identities are rejected.
func (m *Mempool) Add(tx *core.SignedTransaction) error {
	if err := tx.Verify(); err != nil {
		return err
	}
	key := tx.Hash()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.txs[key]; exists {
		return errors.New("pool: transaction already pending")
	}
	m.txs[key] = tx
	m.ord = append(m.ord, key)
	return nil
}

// Pending returns up to n pending transactions, in insertion order.
func (m *Mempool) Pending(n int) []*core.SignedTransaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.SignedTransaction, 0, n)
	for _, key := range m.ord {
		if tx, ok := m.txs[key]; ok {
			out = append(out, tx)
			if len(out) >= n {
				break
			}
		}
	}
	return out
}

// RemoveTxns deletes txs from the pool. The miner's inner loop marks
// positions for removal and swap-removes them from its working slice in
// reverse order (spec.md §4.5); this pool removes by identity, so caller
// order does not matter here.
func (m *Mempool) RemoveTxns(txs []*core.SignedTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[hashx.Hash256]bool, len(txs))
	for _, tx := range txs {
		key := tx.Hash()
		delete(m.txs, key)
		removed[key] = true
	}
	m.compact(removed)
}

func (m *Mempool) compact(removed map[hashx.Hash256]bool) {
	filtered := m.ord[:0]
	for _, key := range m.ord {
		if !removed[key] {
			filtered = append(filtered, key)
		}
	}
	m.ord = filtered
}

// Restore re-admits txs that a reorg removed from the now-discarded chain
// tail (spec.md §4.7), skipping any already present.
func (m *Mempool) Restore(txs []*core.SignedTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		key := tx.Hash()
		if _, exists := m.txs[key]; exists {
			continue
		}
		m.txs[key] = tx
		m.ord = append(m.ord, key)
	}
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
