package storage

import (
	"testing"

	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/events"
	"github.com/tolelom/hybridchain/hashx"
)

// memDB is a minimal in-memory DB for this package's own tests. It cannot
// reuse internal/testutil.MemDB, which imports this package.
type memDB struct {
	data map[string][]byte
}

func newMemDB() *memDB { return &memDB{data: make(map[string][]byte)} }

func (m *memDB) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}
func (m *memDB) Set(key, value []byte) error { m.data[string(key)] = value; return nil }
func (m *memDB) Delete(key []byte) error     { delete(m.data, string(key)); return nil }
func (m *memDB) NewIterator(prefix []byte) Iterator { return nil }
func (m *memDB) NewBatch() Batch                    { return nil }
func (m *memDB) Close() error                       { return nil }

func maxTarget() hashx.Hash256 {
	var t hashx.Hash256
	for i := range t {
		t[i] = 0xff
	}
	return t
}

func TestHeaderArchiveRecordAndLookup(t *testing.T) {
	db := newMemDB()
	a := NewHeaderArchive(db)

	block := core.NewGenesisBlock(maxTarget(), maxTarget(), 0)
	if err := a.Record(block); err != nil {
		t.Fatalf("Record: %v", err)
	}

	h, err := a.Header(block.Hash())
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	if h.Hash() != block.Header.Hash() {
		t.Fatalf("recorded header hash mismatch")
	}

	tip, err := a.Tip()
	if err != nil {
		t.Fatalf("Tip: %v", err)
	}
	if tip != block.Hash().String() {
		t.Fatalf("Tip = %q, want %q", tip, block.Hash().String())
	}
}

func TestHeaderArchiveMissingHeaderIsNotFound(t *testing.T) {
	db := newMemDB()
	a := NewHeaderArchive(db)
	var h hashx.Hash256
	h[0] = 1
	if _, err := a.Header(h); err != ErrNotFound {
		t.Fatalf("Header: got %v, want ErrNotFound", err)
	}
}

type fakeStore struct {
	blocks map[hashx.Hash256]*core.Block
}

func (s *fakeStore) Get(h hashx.Hash256) (*core.Block, bool) {
	b, ok := s.blocks[h]
	return b, ok
}

func TestHeaderArchiveSubscribeRecordsOnBlockMined(t *testing.T) {
	db := newMemDB()
	a := NewHeaderArchive(db)
	emitter := events.NewEmitter()

	block := core.NewGenesisBlock(maxTarget(), maxTarget(), 0)
	store := &fakeStore{blocks: map[hashx.Hash256]*core.Block{block.Hash(): block}}
	a.Subscribe(store, emitter)

	emitter.Emit(events.Event{Type: events.EventBlockMined, Hash: block.Hash().String()})

	if _, err := a.Header(block.Hash()); err != nil {
		t.Fatalf("Header after subscribed emit: %v", err)
	}
}
