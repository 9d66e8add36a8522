package storage

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/events"
	"github.com/tolelom/hybridchain/hashx"
)

// LevelDB implements DB using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return val, err
}

func (l *LevelDB) Set(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	return l.db.NewIterator(util.BytesPrefix(prefix), nil)
}

func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, b: new(leveldb.Batch)}
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

type levelBatch struct {
	db *leveldb.DB
	b  *leveldb.Batch
}

func (b *levelBatch) Set(key, value []byte) { b.b.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.b.Delete(key) }
func (b *levelBatch) Write() error          { return b.db.Write(b.b, nil) }
func (b *levelBatch) Reset()                { b.b.Reset() }

// ---- header archive ----

// HeaderArchive is an optional, non-consensus-critical durable record of
// the headers passed to Record, keyed by block hash, plus a pointer to the
// last-recorded block. Through Subscribe it records the blocks this node's
// own miner or staker produces; blocks received through gossip are not
// recorded. Per spec.md §1 Non-goals the in-memory
// block store (package store) carries no crash recovery; this archive
// exists purely so a long-running node's history survives a restart for
// inspection (e.g. re-serving an SPV client's full chain after a crash),
// not as a source of truth the consensus components read from.
type HeaderArchive struct {
	db DB
}

// NewHeaderArchive wraps db as a header archive.
func NewHeaderArchive(db DB) *HeaderArchive {
	return &HeaderArchive{db: db}
}

func headerKey(hash hashx.Hash256) []byte {
	return []byte("header:" + hash.String())
}

// Record persists block's header and advances the recorded tip pointer.
func (a *HeaderArchive) Record(block *core.Block) error {
	data, err := json.Marshal(block.Header)
	if err != nil {
		return err
	}
	if err := a.db.Set(headerKey(block.Hash()), data); err != nil {
		return err
	}
	return a.db.Set([]byte("tip"), []byte(block.Hash().String()))
}

// Header looks up a previously recorded header by hash.
func (a *HeaderArchive) Header(hash hashx.Hash256) (*core.Header, error) {
	data, err := a.db.Get(headerKey(hash))
	if err != nil {
		return nil, err
	}
	var h core.Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Tip returns the hex hash of the last block Record saw, or "" if none.
func (a *HeaderArchive) Tip() (string, error) {
	val, err := a.db.Get([]byte("tip"))
	if err == ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// blockSource is the subset of store.Store needed to resolve a mined
// block's hash (carried in an event) back into its full content, mirroring
// lookupindex.blockSource.
type blockSource interface {
	Get(h hashx.Hash256) (*core.Block, bool)
}

// Subscribe registers the archive to record every block the miner or staker
// locally produces, the same three event types lookupindex.New subscribes
// to. A failed Record is logged and otherwise ignored — archival is
// best-effort and must never block or fail consensus.
func (a *HeaderArchive) Subscribe(store blockSource, emitter *events.Emitter) {
	onMined := func(ev events.Event) {
		h, err := hashx.FromHex(ev.Hash)
		if err != nil {
			return
		}
		block, ok := store.Get(h)
		if !ok {
			return
		}
		if err := a.Record(block); err != nil {
			log.Printf("[storage] archive record %s: %v", ev.Hash, err)
		}
	}
	emitter.Subscribe(events.EventBlockMined, onMined)
	emitter.Subscribe(events.EventFruitMined, onMined)
	emitter.Subscribe(events.EventPosBlockWon, onMined)
}
