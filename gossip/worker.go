// Package gossip implements component H: the pull-based block and
// transaction gossip protocol and the §4.4 orphan-buffer delivery loop. It
// is grounded on the teacher's network/node.go handler-table dispatch and
// network/sync.go block-delivery flow, generalized from a JSON envelope to
// the wire package's typed binary frames.
package gossip

import (
	"encoding/json"
	"log"

	"github.com/tolelom/hybridchain/chain"
	"github.com/tolelom/hybridchain/config"
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/crypto"
	"github.com/tolelom/hybridchain/events"
	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/lookupindex"
	"github.com/tolelom/hybridchain/network"
	"github.com/tolelom/hybridchain/orphan"
	"github.com/tolelom/hybridchain/pool"
	"github.com/tolelom/hybridchain/store"
	"github.com/tolelom/hybridchain/wire"
)

// Worker wires a network.Node's received frames to the chain view, orphan
// buffer, pools, and lookup index. One Worker serves every peer; there is
// no per-connection state beyond the network.Peer itself.
type Worker struct {
	node    *network.Node
	view    *chain.View
	orphans *orphan.Buffer
	mp      *pool.Mempool
	tp      *pool.Tranpool
	idx     *lookupindex.Index
	cfg     *config.Config
	emitter *events.Emitter

	lightHandler network.MessageHandler
}

// New builds a Worker and installs it as node's frame handler.
func New(node *network.Node, view *chain.View, orphans *orphan.Buffer, mp *pool.Mempool, tp *pool.Tranpool, idx *lookupindex.Index, cfg *config.Config, emitter *events.Emitter) *Worker {
	w := &Worker{node: node, view: view, orphans: orphans, mp: mp, tp: tp, idx: idx, cfg: cfg, emitter: emitter}
	node.SetHandler(w.HandleFrame)
	return w
}

// SetLightHandler installs the handler light-client message types (§4.9)
// are routed to. Without one installed, those types are silently ignored.
func (w *Worker) SetLightHandler(h network.MessageHandler) {
	w.lightHandler = h
}

// BroadcastNewBlock announces a locally-produced block's hash to every
// peer. Wired as the miner's and staker's Broadcast callback.
func (w *Worker) BroadcastNewBlock(h hashx.Hash256) {
	w.node.Broadcast(wire.MsgNewBlockHashes, wire.NewBlockHashesPayload{Hashes: []hashx.Hash256{h}})
}

// HandleFrame dispatches one received wire frame (spec.md §4.8). It matches
// network.MessageHandler's signature and is installed via SetHandler.
func (w *Worker) HandleFrame(peer *network.Peer, typ wire.MsgType, body []byte) {
	switch typ {
	case wire.MsgPing:
		var p wire.PingPayload
		if !unmarshal(typ, body, &p) {
			return
		}
		send(peer, wire.MsgPong, wire.PongPayload{Nonce: p.Nonce})

	case wire.MsgPong:
		// Liveness only; nothing to act on.

	case wire.MsgNewBlockHashes:
		var p wire.NewBlockHashesPayload
		if !unmarshal(typ, body, &p) {
			return
		}
		w.handleNewBlockHashes(peer, p.Hashes)

	case wire.MsgGetBlocks:
		var p wire.GetBlocksPayload
		if !unmarshal(typ, body, &p) {
			return
		}
		w.handleGetBlocks(peer, p.Hashes)

	case wire.MsgBlocks:
		var p wire.BlocksPayload
		if !unmarshal(typ, body, &p) {
			return
		}
		w.handleBlocks(peer, p.Blocks)

	case wire.MsgNewTransactionHashes:
		var p wire.NewTransactionHashesPayload
		if !unmarshal(typ, body, &p) {
			return
		}
		w.handleNewTransactionHashes(peer, p.Hashes)

	case wire.MsgGetTransactions:
		var p wire.GetTransactionsPayload
		if !unmarshal(typ, body, &p) {
			return
		}
		w.handleGetTransactions(peer, p.Hashes)

	case wire.MsgTransactions:
		var p wire.TransactionsPayload
		if !unmarshal(typ, body, &p) {
			return
		}
		w.handleTransactions(p.Txns)

	default:
		// Light-client message types (§4.9) are forwarded unparsed to the
		// handler installed via SetLightHandler (lightclient.Client), so
		// this dispatcher never interprets them itself.
		if w.lightHandler != nil {
			w.lightHandler(peer, typ, body)
		}
	}
}

func (w *Worker) handleNewBlockHashes(peer *network.Peer, hashes []hashx.Hash256) {
	var missing []hashx.Hash256
	for _, h := range hashes {
		if !w.view.Store().Contains(h) {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		send(peer, wire.MsgGetBlocks, wire.GetBlocksPayload{Hashes: missing})
	}
}

func (w *Worker) handleGetBlocks(peer *network.Peer, hashes []hashx.Hash256) {
	var blocks []*core.Block
	for _, h := range hashes {
		if b, ok := w.view.Store().Get(h); ok {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) > 0 {
		send(peer, wire.MsgBlocks, wire.BlocksPayload{Blocks: blocks})
	}
}

func (w *Worker) handleBlocks(peer *network.Peer, blocks []*core.Block) {
	accepted := w.deliver(peer, blocks)
	if len(accepted) > 0 {
		w.node.Broadcast(wire.MsgNewBlockHashes, wire.NewBlockHashesPayload{Hashes: accepted})
	}
}

func (w *Worker) handleNewTransactionHashes(peer *network.Peer, hashes []hashx.Hash256) {
	var missing []hashx.Hash256
	for _, h := range hashes {
		if _, ok := w.idx.Txn(h); !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		send(peer, wire.MsgGetTransactions, wire.GetTransactionsPayload{Hashes: missing})
	}
}

func (w *Worker) handleGetTransactions(peer *network.Peer, hashes []hashx.Hash256) {
	var txns []*core.SignedTransaction
	for _, h := range hashes {
		if tx, ok := w.idx.Txn(h); ok {
			txns = append(txns, tx)
		}
	}
	if len(txns) > 0 {
		send(peer, wire.MsgTransactions, wire.TransactionsPayload{Txns: txns})
	}
}

// handleTransactions inserts every received transaction into the all-txns
// lookup table and, if it is not already pending, the mempool (spec.md
// §4.8: "insert into the all-txns map and push into mempool if absent").
func (w *Worker) handleTransactions(txns []*core.SignedTransaction) {
	for _, tx := range txns {
		w.idx.RecordTxn(tx)
		if err := w.mp.Add(tx); err != nil {
			continue // already pending, or failed verification: not an error worth logging per-peer
		}
	}
}

// deliver runs the §4.4 breadth-first orphan-buffer delivery loop over a
// freshly-received batch of blocks and returns the hashes of those it
// accepted into the store.
func (w *Worker) deliver(peer *network.Peer, blocks []*core.Block) []hashx.Hash256 {
	queue := append([]*core.Block{}, blocks...)
	queued := make(map[hashx.Hash256]bool, len(blocks))
	for _, b := range blocks {
		queued[b.Hash()] = true
	}

	var accepted []hashx.Hash256
	var request []hashx.Hash256
	requested := make(map[hashx.Hash256]bool)

	for len(queue) > 0 {
		block := queue[0]
		queue = queue[1:]
		h := block.Hash()
		delete(queued, h)

		if w.view.Store().Contains(h) {
			continue
		}

		parent := block.Header.Parent
		var missingRef hashx.Hash256
		haveMissingRef := false
		for _, ref := range block.Content.TransactionRef {
			if !w.view.Store().Contains(ref) {
				missingRef = ref
				haveMissingRef = true
				break
			}
		}

		switch {
		case w.view.Store().Contains(parent) && !haveMissingRef:
			if !w.validateHeader(block) {
				continue
			}
			oldTip, _ := w.view.Tip()
			var changed bool
			var outcome store.InsertOutcome
			if w.cfg.Consensus.Selfish {
				changed, outcome = w.view.InsertSelfish(block)
			} else {
				changed, outcome = w.view.InsertHonest(block)
			}
			if outcome != store.Inserted {
				continue
			}

			result := w.view.ComputeReorg(oldTip)
			var selfishSkip func(*core.BlockRecord) bool
			if w.cfg.Consensus.Selfish && w.view.IsWithholding() {
				selfishSkip = func(rec *core.BlockRecord) bool { return !rec.Block.SelfishBlock }
			}
			chain.ApplyReorg(result, w.mp, w.tp, selfishSkip)

			w.idx.RecordBlock(block)
			for _, tx := range block.Content.Data {
				w.idx.RecordTxn(tx)
			}

			height, _ := w.view.Store().GetHeight(h)
			if changed {
				w.emitter.Emit(events.Event{Type: events.EventTipChanged, Hash: h.String(), Height: height.Lo})
			}
			if len(result.Removed) > 0 || len(result.Added) > 1 {
				w.emitter.Emit(events.Event{Type: events.EventReorg, Hash: h.String(), Height: height.Lo})
			}
			accepted = append(accepted, h)

			for _, resolved := range w.orphans.Resolve(h) {
				if !queued[resolved.Hash()] {
					queue = append(queue, resolved)
					queued[resolved.Hash()] = true
				}
			}

		case w.orphans.Contains(parent) || queued[parent]:
			// The ancestor chain is already being chased; buffer this block
			// behind it without sending a redundant GetBlocks.
			w.orphans.Add(block, parent)

		default:
			missing := parent
			if w.view.Store().Contains(parent) && haveMissingRef {
				missing = missingRef
			}
			w.orphans.Add(block, missing)
			if !requested[missing] {
				request = append(request, missing)
				requested[missing] = true
			}
		}
	}

	if len(request) > 0 && peer != nil {
		send(peer, wire.MsgGetBlocks, wire.GetBlocksPayload{Hashes: request})
	}
	return accepted
}

// validateHeader runs spec.md §4.8's four-step header check, minus step 4
// (parent/fruit presence), which deliver already established before calling
// this. Step 1 and the Minotaur-only retarget check in step 2 apply to
// PoW-type blocks; step 3's VRF check applies to PoS-type blocks. It
// verifies the VRF proof and checks sha256(vrf_hash) against the header's
// declared pos_difficulty (which must equal the view's PoS target); the
// staker's tighter virtual-stake target is not re-derived here.
func (w *Worker) validateHeader(block *core.Block) bool {
	h := block.Header
	switch block.BlockType {
	case core.BlockTypePoWFruit:
		if !block.Hash().LessOrEqual(h.PowDifficulty) {
			return false
		}
		if w.cfg.Consensus.Variant == config.VariantMinotaur {
			if h.PowDifficulty != w.view.GetDifficulty(int64(h.TimestampUs.Lo)) {
				return false
			}
		}
		return true

	case core.BlockTypePoSBlock:
		pub, err := crypto.VRFPubKeyFromBytes(h.VRFPubkey)
		if err != nil {
			return false
		}
		randBytes := h.Rand.Bytes()
		tsBytes := h.TimestampUs.Bytes()
		message := append(append([]byte{}, randBytes[:]...), tsBytes[:]...)
		vrfHashBytes, err := crypto.VRFVerify(pub, h.VRFProof, message)
		if err != nil {
			return false
		}
		var vrfHash hashx.Hash256
		copy(vrfHash[:], vrfHashBytes)
		if vrfHash != h.VRFHash {
			return false
		}
		if !hashx.Sum(vrfHashBytes).LessOrEqual(h.PosDifficulty) {
			return false
		}
		if h.PosDifficulty != w.view.GetPosDifficulty() {
			return false
		}
		return true

	default:
		return false
	}
}

func unmarshal(typ wire.MsgType, body []byte, out any) bool {
	if err := json.Unmarshal(body, out); err != nil {
		log.Printf("[gossip] unmarshal %s: %v", typ, err)
		return false
	}
	return true
}

func send(peer *network.Peer, typ wire.MsgType, v any) {
	if err := peer.Send(typ, v); err != nil {
		log.Printf("[gossip] send %s to %s: %v", typ, peer.ID, err)
	}
}
