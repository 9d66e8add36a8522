package core

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/merkle"
)

// BlockType distinguishes the two kinds of record the store holds: a
// proof-of-work payload (a plain block in Bitcoin/Minotaur mode, or a fruit
// in two-layer mode) and a proof-of-stake block that adopts prior PoW work
// by reference rather than carrying transactions itself.
type BlockType string

const (
	BlockTypePoWFruit BlockType = "pow_fruit"
	BlockTypePoSBlock BlockType = "pos_block"
)

// Header is the hashed, consensus-critical metadata of a block. Not every
// field is meaningful in every variant: fields a variant does not use are
// left at their zero value and excluded from that variant's checks (e.g. a
// Bitcoin-mode header never sets VRFProof/VRFHash/VRFPubkey; the miner
// fills PosDifficulty in every variant, but only PoS blocks are checked
// against it).
type Header struct {
	Parent        hashx.Hash256 `json:"parent"`
	Nonce         uint32        `json:"nonce"`
	PowDifficulty hashx.Hash256 `json:"pow_difficulty"`
	PosDifficulty hashx.Hash256 `json:"pos_difficulty"`
	TimestampUs   Uint128       `json:"timestamp_us"`
	MerkleRoot    hashx.Hash256 `json:"merkle_root"`
	MMRRoot       hashx.Hash256 `json:"mmr_root"`
	VRFProof      []byte        `json:"vrf_proof,omitempty"`
	VRFHash       hashx.Hash256 `json:"vrf_hash"`
	VRFPubkey     []byte        `json:"vrf_pubkey,omitempty"`
	Rand          Uint128       `json:"rand"`
}

// serialize produces the canonical byte encoding that Hash() digests. It is
// a fixed-field binary layout, not JSON, so header identity never depends on
// struct-tag ordering or an encoding library's map iteration.
func (h Header) serialize() []byte {
	var buf bytes.Buffer
	buf.Write(h.Parent[:])
	var nonceBuf [4]byte
	binary.BigEndian.PutUint32(nonceBuf[:], h.Nonce)
	buf.Write(nonceBuf[:])
	buf.Write(h.PowDifficulty[:])
	buf.Write(h.PosDifficulty[:])
	tsBytes := h.TimestampUs.Bytes()
	buf.Write(tsBytes[:])
	buf.Write(h.MerkleRoot[:])
	buf.Write(h.MMRRoot[:])
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(h.VRFProof)))
	buf.Write(lenBuf[:])
	buf.Write(h.VRFProof)
	buf.Write(h.VRFHash[:])
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(h.VRFPubkey)))
	buf.Write(lenBuf[:])
	buf.Write(h.VRFPubkey)
	randBytes := h.Rand.Bytes()
	buf.Write(randBytes[:])
	return buf.Bytes()
}

// Hash returns the header's identity: SHA-256 of its canonical serialisation.
func (h Header) Hash() hashx.Hash256 {
	return hashx.Sum(h.serialize())
}

// Content carries a block's payload. data is used by fruits and ordinary PoW
// blocks; transactionRef is used by PoS blocks, which adopt prior fruit/PoW
// hashes instead of carrying transactions directly (spec.md §3).
type Content struct {
	Data           []*SignedTransaction `json:"data,omitempty"`
	TransactionRef []hashx.Hash256      `json:"transaction_ref,omitempty"`
}

// LeafHashes returns the ordered merkle leaves MerkleRoot commits to. It is
// exported so a package outside core (the light-client proof responder) can
// rebuild the same tree merkle.Build(c.LeafHashes()) produced and derive a
// per-index proof, without reaching into SignedTransaction's unexported
// signingBytes.
func (c Content) LeafHashes() []hashx.Hash256 {
	leaves := make([]hashx.Hash256, 0, len(c.Data)+len(c.TransactionRef))
	for _, tx := range c.Data {
		leaves = append(leaves, merkle.LeafHash(tx.signingBytes()))
	}
	for _, ref := range c.TransactionRef {
		leaves = append(leaves, merkle.LeafHash(ref[:]))
	}
	return leaves
}

// MerkleRoot commits Data the same way merkle.LeafHash/merkle.Build commit
// any other leaf set, so a light client's SPV proof need not know whether
// the leaves being proved are transactions or referenced hashes.
func (c Content) MerkleRoot() hashx.Hash256 {
	return merkle.Build(c.LeafHashes()).Root()
}

// Block is a header paired with its content and the consensus role it plays.
// SelfishBlock marks a block mined by a selfish (withholding) node. It is
// not hashed into identity, but it is carried in the JSON wire encoding, and
// an honest view's tie-break reads it on received blocks.
type Block struct {
	Header       Header    `json:"header"`
	Content      Content   `json:"content"`
	BlockType    BlockType `json:"block_type"`
	SelfishBlock bool      `json:"selfish_block"`
}

// Hash returns the block's identity: its header's hash. Content is bound to
// the header via MerkleRoot, so two blocks with the same header hash and
// differing content cannot both pass VerifyIntegrity.
func (b *Block) Hash() hashx.Hash256 {
	return b.Header.Hash()
}

// VerifyIntegrity checks that the header's merkle_root matches the content
// actually carried. It does not check proof-of-work/stake thresholds or
// parent linkage — those are the orphan buffer's and chain view's job
// (spec.md §4.4, §4.3).
func (b *Block) VerifyIntegrity() error {
	if want, got := b.Header.MerkleRoot, b.Content.MerkleRoot(); want != got {
		return fmt.Errorf("merkle_root mismatch: header %s content %s", want, got)
	}
	return nil
}

// MeetsTarget reports whether the block's hash satisfies target, using the
// big-endian unsigned "<= target" comparison every difficulty check in this
// system uses (spec.md §3).
func (b *Block) MeetsTarget(target hashx.Hash256) bool {
	return b.Hash().LessOrEqual(target)
}

// IsGenesis reports whether b has no parent (the all-zero Hash256).
func (b *Block) IsGenesis() bool {
	return b.Header.Parent.IsZero()
}

// BlockRecord is a block store entry: the block plus its height, where
// height is the parent's height + 1 and genesis is 0 (spec.md §3 invariant).
type BlockRecord struct {
	Block  *Block
	Height Uint128
}

// NewGenesisBlock builds the unsigned genesis block for a given pow/pos
// starting difficulty. It carries no content and a zero parent.
func NewGenesisBlock(powDifficulty, posDifficulty hashx.Hash256, timestampUs int64) *Block {
	content := Content{}
	header := Header{
		Parent:        hashx.Hash256{},
		PowDifficulty: powDifficulty,
		PosDifficulty: posDifficulty,
		TimestampUs:   Uint128FromMicros(timestampUs),
		MerkleRoot:    content.MerkleRoot(),
	}
	return &Block{Header: header, Content: content, BlockType: BlockTypePoWFruit}
}

// NextHeight returns parent.Height + 1, or 0 if parent is nil (genesis).
func NextHeight(parent *BlockRecord) Uint128 {
	if parent == nil {
		return Uint128{}
	}
	h := parent.Height
	if h.Lo == ^uint64(0) {
		return Uint128{Hi: h.Hi + 1, Lo: 0}
	}
	return Uint128{Hi: h.Hi, Lo: h.Lo + 1}
}
