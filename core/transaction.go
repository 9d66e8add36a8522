// Package core holds the consensus data model shared by every component:
// signed transactions, block headers/content, and the stored block record.
// Transactions are carried opaquely — per spec.md §1 Non-goals the core
// never interprets a transaction's payload against account/UTXO state, it
// only signs, hashes, and spam-dedups them.
package core

import (
	"errors"
	"fmt"

	"github.com/tolelom/hybridchain/crypto"
	"github.com/tolelom/hybridchain/hashx"
)

// SignedTransaction is the atomic unit the mempool carries. Payload is
// opaque application data; the consensus core only needs its identity
// (Hash), its signer, and a stable SpamID for dedup.
type SignedTransaction struct {
	From      string `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64 `json:"nonce"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"` // unix micros
	Signature string `json:"signature"`
}

func (tx *SignedTransaction) signingBytes() []byte {
	buf := make([]byte, 0, len(tx.Payload)+len(tx.From)+16)
	buf = append(buf, []byte(tx.From)...)
	var nonceBuf [8]byte
	for i := 0; i < 8; i++ {
		nonceBuf[i] = byte(tx.Nonce >> (56 - 8*i))
	}
	buf = append(buf, nonceBuf[:]...)
	var tsBuf [8]byte
	for i := 0; i < 8; i++ {
		tsBuf[i] = byte(uint64(tx.Timestamp) >> (56 - 8*i))
	}
	buf = append(buf, tsBuf[:]...)
	buf = append(buf, tx.Payload...)
	return buf
}

// Hash returns the transaction's content identity (excludes Signature).
func (tx *SignedTransaction) Hash() hashx.Hash256 {
	return hashx.Sum(tx.signingBytes())
}

// SpamID is the dedup key the spam recorder (component E) keys on: the
// semantic identity of a transaction independent of its signature, so that
// re-signing (or replaying) the same payload/from/nonce does not slip past
// dedup (spec.md glossary: "Spam recorder").
func (tx *SignedTransaction) SpamID() hashx.Hash256 {
	return tx.Hash()
}

// Sign signs the transaction with priv and sets Signature.
func (tx *SignedTransaction) Sign(priv crypto.PrivateKey) {
	h := tx.Hash()
	tx.Signature = crypto.Sign(priv, h[:])
}

// Verify checks the signature against From.
func (tx *SignedTransaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	h := tx.Hash()
	return crypto.Verify(pub, h[:], tx.Signature)
}

// NewTransaction creates an unsigned transaction with the given fields.
func NewTransaction(from string, nonce uint64, payload []byte, timestampUs int64) *SignedTransaction {
	return &SignedTransaction{From: from, Nonce: nonce, Payload: payload, Timestamp: timestampUs}
}
