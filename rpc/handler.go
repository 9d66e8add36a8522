package rpc

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/tolelom/hybridchain/lightclient"
	"github.com/tolelom/hybridchain/lookupindex"
	"github.com/tolelom/hybridchain/miner"
	"github.com/tolelom/hybridchain/network"
	"github.com/tolelom/hybridchain/pool"
	"github.com/tolelom/hybridchain/staker"
	"github.com/tolelom/hybridchain/txgen"
	"github.com/tolelom/hybridchain/wire"
)

// Handler holds every component the control API starts or reads from. staker is nil outside the Minotaur variant (spec.md §4.6 names
// Minotaur staking as the only variant that runs one).
type Handler struct {
	miner       *miner.Miner
	staker      *staker.Staker
	generator   *txgen.Generator
	lightClient *lightclient.Client
	node        *network.Node
	idx         *lookupindex.Index
	spam        *pool.SpamRecorder
}

// NewHandler creates an RPC Handler. s may be nil when the running
// consensus variant has no staker.
func NewHandler(m *miner.Miner, s *staker.Staker, g *txgen.Generator, lc *lightclient.Client, node *network.Node, idx *lookupindex.Index, spam *pool.SpamRecorder) *Handler {
	return &Handler{miner: m, staker: s, generator: g, lightClient: lc, node: node, idx: idx, spam: spam}
}

func parseU64Param(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("must be a non-negative integer: %w", err)
	}
	return int64(v), nil
}

// MinerStart handles /miner/start?lambda=<u64>.
func (h *Handler) MinerStart(lambdaRaw string) Response {
	lambda, err := parseU64Param(lambdaRaw)
	if err != nil {
		return fail("lambda: " + err.Error())
	}
	h.miner.SendControl(miner.Control{State: miner.StateRun, LambdaUs: lambda})
	return ok("miner started")
}

// StakerStart handles /staker/start?zeta=<u64>.
func (h *Handler) StakerStart(zetaRaw string) Response {
	if h.staker == nil {
		return fail("staker not configured for this consensus variant")
	}
	zeta, err := parseU64Param(zetaRaw)
	if err != nil {
		return fail("zeta: " + err.Error())
	}
	h.staker.SendControl(staker.Control{State: staker.StateRun, ZetaUs: zeta})
	return ok("staker started")
}

// TxGeneratorStart handles /tx-generator/start?theta=<u64>.
func (h *Handler) TxGeneratorStart(thetaRaw string) Response {
	theta, err := parseU64Param(thetaRaw)
	if err != nil {
		return fail("theta: " + err.Error())
	}
	h.generator.SendControl(txgen.Control{State: txgen.StateRun, ThetaUs: theta})
	return ok("tx-generator started")
}

// SPVStart handles /spv/start?lambda=<u64>. lambda is accepted for
// consistency with the other /*/start endpoints, but the light-client
// driver's own round interval is config-driven (config.LightClientConfig,
// spec.md §4.9 names no per-round sleep knob to override at runtime); it
// is parsed and validated but otherwise unused.
func (h *Handler) SPVStart(lambdaRaw string) Response {
	if _, err := parseU64Param(lambdaRaw); err != nil {
		return fail("lambda: " + err.Error())
	}
	h.lightClient.SendControl(lightclient.Control{State: lightclient.StateRun})
	return ok("light client started")
}

// NetworkPing handles /network/ping: broadcasts a liveness ping to every
// connected peer.
func (h *Handler) NetworkPing() Response {
	var b [8]byte
	_, _ = rand.Read(b[:])
	nonce := binary.BigEndian.Uint64(b[:])
	h.node.Broadcast(wire.MsgPing, wire.PingPayload{Nonce: nonce})
	return ok(fmt.Sprintf("ping broadcast to %d peer(s)", len(h.node.Peers())))
}

// LedgerTxn handles /ledger/txn: a JSON dump of the canonical transaction
// list (every transaction hash this node has recorded, resolved to its
// full signed transaction where still available).
func (h *Handler) LedgerTxn() ([]*txnDump, error) {
	hashes := h.idx.AllTxns()
	out := make([]*txnDump, 0, len(hashes))
	for _, hash := range hashes {
		tx, ok := h.idx.Txn(hash)
		if !ok {
			continue
		}
		out = append(out, &txnDump{Hash: hash.String(), From: tx.From, Nonce: tx.Nonce})
	}
	return out, nil
}

type txnDump struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	Nonce uint64 `json:"nonce"`
}

// LedgerSpam handles /ledger/spam: a JSON dump of spam-recorder metrics.
func (h *Handler) LedgerSpam() spamDump {
	return spamDump{SeenCount: h.spam.Len()}
}

type spamDump struct {
	SeenCount int `json:"seen_count"`
}
