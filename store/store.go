// Package store holds the content-addressed block store, component B. It is
// the single consensus-critical mutator of block records: every thread that
// touches the chain (miner, staker, gossip workers) reads and writes it
// through one mutex, and it never performs chain-selection logic — that is
// the chain package's job.
//
// The store is pure in-memory, grounded on the teacher's original
// PutBlock/GetBlock/GetBlockByHeight/GetTip shape (now storage.HeaderArchive)
// but holding records in a map instead of LevelDB: the block store has no
// crash-recovery or persistence requirement, so durability is handled, if
// at all, by an optional archive in the storage package rather than here.
package store

import (
	"sync"

	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/mmr"
)

// InsertOutcome reports what Insert actually did.
type InsertOutcome int

const (
	// Inserted means the block was new and is now stored.
	Inserted InsertOutcome = iota
	// Duplicate means a record with this identity already existed; the
	// store was not modified.
	Duplicate
	// MissingParent means the block's parent is not in the store; the
	// caller should route it through the orphan buffer instead.
	MissingParent
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	case MissingParent:
		return "missing_parent"
	default:
		return "unknown"
	}
}

// Store is the content-addressed, in-memory block store.
type Store struct {
	mu      sync.RWMutex
	records map[hashx.Hash256]*core.BlockRecord
	mmrs    map[hashx.Hash256]mmr.MMR
}

// New returns an empty store.
func New() *Store {
	return &Store{
		records: make(map[hashx.Hash256]*core.BlockRecord),
		mmrs:    make(map[hashx.Hash256]mmr.MMR),
	}
}

// Contains reports whether h is already stored.
func (s *Store) Contains(h hashx.Hash256) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[h]
	return ok
}

// Get returns the block stored at h, if any.
func (s *Store) Get(h hashx.Hash256) (*core.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[h]
	if !ok {
		return nil, false
	}
	return rec.Block, true
}

// GetRecord returns the full record (block + height) stored at h, if any.
func (s *Store) GetRecord(h hashx.Hash256) (*core.BlockRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[h]
	return rec, ok
}

// GetHeight returns the height of the record at h, if any.
func (s *Store) GetHeight(h hashx.Hash256) (core.Uint128, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[h]
	if !ok {
		return core.Uint128{}, false
	}
	return rec.Height, true
}

// MMRFor returns a cloned MMR snapshot for the record at h.
func (s *Store) MMRFor(h hashx.Hash256) (mmr.MMR, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mmrs[h]
	return m, ok
}

// InsertGenesis stores block as the root record with height 0 and an empty
// MMR extended by its own hash. It bypasses the parent-presence check since
// genesis has no parent.
func (s *Store) InsertGenesis(block *core.Block) (hashx.Hash256, InsertOutcome) {
	h := block.Hash()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[h]; ok {
		return h, Duplicate
	}
	s.records[h] = &core.BlockRecord{Block: block, Height: core.Uint128{}}
	s.mmrs[h] = mmr.Empty().Append(h)
	return h, Inserted
}

// Insert is the store's only mutator for non-genesis blocks. It is
// idempotent: re-inserting a known identity returns Duplicate. It refuses
// blocks whose parent is unknown, returning MissingParent so the caller can
// route the block through the orphan buffer (component D) instead.
//
// On success it stores {block, height = parent.height + 1} and the MMR
// formed by appending hash(block) to the parent's MMR.
func (s *Store) Insert(block *core.Block) (hashx.Hash256, InsertOutcome) {
	h := block.Hash()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[h]; ok {
		return h, Duplicate
	}
	parent, ok := s.records[block.Header.Parent]
	if !ok {
		return h, MissingParent
	}
	height := core.NextHeight(parent)
	parentMMR := s.mmrs[block.Header.Parent]

	s.records[h] = &core.BlockRecord{Block: block, Height: height}
	s.mmrs[h] = parentMMR.Append(h)
	return h, Inserted
}
