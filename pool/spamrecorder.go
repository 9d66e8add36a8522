package pool

import (
	"crypto/rand"
	"sync"

	"github.com/aead/siphash"

	"github.com/tolelom/hybridchain/core"
)

// SpamRecorder is the Bloom-like "seen" set for duplicate-payload
// suppression (spec.md §4.5, glossary "Spam recorder"): it dedups by a
// transaction's SpamID, a semantic identity independent of signature, so
// that re-signing the same payload cannot be reused to evade the miner's
// per-batch include limit. Entries are keyed by a keyed SipHash-2-4 digest
// of the SpamID rather than the 32-byte hash itself, keeping the resident
// set small for a long-running node.
type SpamRecorder struct {
	mu   sync.Mutex
	key  [16]byte
	seen map[uint64]struct{}
}

// NewSpamRecorder returns an empty recorder with a random SipHash key.
func NewSpamRecorder() (*SpamRecorder, error) {
	var key [16]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	return &SpamRecorder{key: key, seen: make(map[uint64]struct{})}, nil
}

func (r *SpamRecorder) digest(tx *core.SignedTransaction) uint64 {
	id := tx.SpamID()
	h, _ := siphash.New(r.key[:]) // key is always 16 bytes; New only errors on bad key length
	h.Write(id[:])
	return h.Sum64()
}

// Test reports whether tx's SpamID has not yet been committed — "true"
// means the miner may include it.
func (r *SpamRecorder) Test(tx *core.SignedTransaction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, seen := r.seen[r.digest(tx)]
	return !seen
}

// Commit records every tx in writes as seen. The miner calls this once per
// candidate block, after the batch-local spam buffer has already filtered
// out in-batch duplicates (spec.md §4.5 step 2).
func (r *SpamRecorder) Commit(writes []*core.SignedTransaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range writes {
		r.seen[r.digest(tx)] = struct{}{}
	}
}

// Len returns the number of recorded digests.
func (r *SpamRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}
