// Package wire defines the binary message framing and payload types carried
// over a peer connection: the consensus gossip messages (§4.8) and the
// light-client SPV/FlyClient request/response pairs (§4.9) share one codec
// and one frame format, grounded on the teacher's length-prefixed
// network/peer.go framing and generalized from a single JSON envelope type
// into a typed, optionally-compressed binary frame.
package wire

import (
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/merkle"
	"github.com/tolelom/hybridchain/mmr"
)

// MsgType labels a wire frame's payload shape.
type MsgType uint8

const (
	MsgPing MsgType = iota + 1
	MsgPong
	MsgNewBlockHashes
	MsgGetBlocks
	MsgBlocks
	MsgNewTransactionHashes
	MsgGetTransactions
	MsgTransactions
	MsgSPVGetChain
	MsgSPVChain
	MsgSPVVerifyRandomTxn
	MsgSPVTxnProof
	MsgFlyGetChain
	MsgFlyChain
	MsgFlyVerifyRandomTxn
	MsgFlyTxnProof
)

func (t MsgType) String() string {
	switch t {
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	case MsgNewBlockHashes:
		return "new_block_hashes"
	case MsgGetBlocks:
		return "get_blocks"
	case MsgBlocks:
		return "blocks"
	case MsgNewTransactionHashes:
		return "new_transaction_hashes"
	case MsgGetTransactions:
		return "get_transactions"
	case MsgTransactions:
		return "transactions"
	case MsgSPVGetChain:
		return "spv_get_chain"
	case MsgSPVChain:
		return "spv_chain"
	case MsgSPVVerifyRandomTxn:
		return "spv_verify_random_txn"
	case MsgSPVTxnProof:
		return "spv_txn_proof"
	case MsgFlyGetChain:
		return "fly_get_chain"
	case MsgFlyChain:
		return "fly_chain"
	case MsgFlyVerifyRandomTxn:
		return "fly_verify_random_txn"
	case MsgFlyTxnProof:
		return "fly_txn_proof"
	default:
		return "unknown"
	}
}

// PingPayload/PongPayload carry a liveness nonce (spec.md §4.8).
type PingPayload struct {
	Nonce uint64 `json:"nonce"`
}

type PongPayload struct {
	Nonce uint64 `json:"nonce"`
}

// NewBlockHashesPayload announces block identities the sender has accepted.
type NewBlockHashesPayload struct {
	Hashes []hashx.Hash256 `json:"hashes"`
}

// GetBlocksPayload requests full blocks by identity.
type GetBlocksPayload struct {
	Hashes []hashx.Hash256 `json:"hashes"`
}

// BlocksPayload serves full blocks; unknown hashes are simply omitted.
type BlocksPayload struct {
	Blocks []*core.Block `json:"blocks"`
}

// NewTransactionHashesPayload/GetTransactionsPayload/TransactionsPayload
// mirror the block pull-gossip shape for signed transactions.
type NewTransactionHashesPayload struct {
	Hashes []hashx.Hash256 `json:"hashes"`
}

type GetTransactionsPayload struct {
	Hashes []hashx.Hash256 `json:"hashes"`
}

type TransactionsPayload struct {
	Txns []*core.SignedTransaction `json:"txns"`
}

// SPVGetChainPayload carries nothing; it is a bare request.
type SPVGetChainPayload struct{}

// SPVChainPayload is accepted only if strictly longer than the client's last
// accepted chain (spec.md §4.9 step 1).
type SPVChainPayload struct {
	Blocks []*core.Block `json:"blocks"`
}

// SPVVerifyRandomTxnPayload carries nothing; it asks the peer to pick.
type SPVVerifyRandomTxnPayload struct{}

// SPVTxnProofPayload answers an SPVVerifyRandomTxn request with a Merkle
// inclusion proof for one transaction of one non-recent block.
// LeafHash is the committed merkle leaf (core.Content.LeafHashes()[Index]),
// distinct from TxnHash (the transaction's own identity hash): the two
// differ because a leaf hashes the transaction's signing bytes under
// merkle.LeafHash's length-prefixed encoding, not hashx.Sum over them. A
// verifier with only TxnHash cannot rebuild the leaf itself, so the prover
// discloses it directly.
type SPVTxnProofPayload struct {
	BlockHash hashx.Hash256 `json:"block_hash"`
	Root      hashx.Hash256 `json:"root"`
	TxnHash   hashx.Hash256 `json:"txn_hash"`
	LeafHash  hashx.Hash256 `json:"leaf_hash"`
	Proof     merkle.Proof  `json:"proof"`
	Index     int           `json:"index"`
	LeafCount int           `json:"leaf_count"`
}

// FlyGetChainPayload carries nothing; it is a bare request.
type FlyGetChainPayload struct{}

// FlyProposal is {chain_depth, tip_header} per spec.md §4.9 step 1.
type FlyProposal struct {
	ChainDepth int64       `json:"chain_depth"`
	TipHeader  core.Header `json:"tip_header"`
}

// FlyChainPayload answers FlyGetChain with a proposal and an MMR sample
// proof for a random leaf index in [0, chain_depth-2].
type FlyChainPayload struct {
	Proposal       FlyProposal   `json:"proposal"`
	SampleIndex    int           `json:"sample_index"`
	SampleLeafHash hashx.Hash256 `json:"sample_leaf_hash"`
	SampleProof    mmr.Proof     `json:"sample_proof"`
}

// FlyVerifyRandomTxnPayload carries nothing; it asks the peer to pick.
type FlyVerifyRandomTxnPayload struct{}

// FlyTxnProofPayload bundles an MMR membership proof for the target block
// with a Merkle proof of one of its transactions (spec.md §4.9 step 2).
type FlyTxnProofPayload struct {
	BlockIndex int           `json:"block_index"`
	MMRProof   mmr.Proof     `json:"mmr_proof"`
	BlockHash  hashx.Hash256 `json:"block_hash"`
	Root       hashx.Hash256 `json:"root"`
	TxnHash    hashx.Hash256 `json:"txn_hash"`
	TxnLeaf    hashx.Hash256 `json:"txn_leaf"`
	TxnProof   merkle.Proof  `json:"txn_proof"`
	TxnIndex   int           `json:"txn_index"`
	LeafCount  int           `json:"leaf_count"`
}
