package wallet

import (
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers. Per
// spec.md §1, identity/key management is an external collaborator; a
// Wallet only ever produces an opaque core.SignedTransaction, it never
// interprets what the payload means.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (used as "from").
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// NewTx builds and signs a transaction carrying payload as opaque bytes.
func (w *Wallet) NewTx(nonce uint64, payload []byte, timestampUs int64) *core.SignedTransaction {
	tx := core.NewTransaction(w.pub.Hex(), nonce, payload, timestampUs)
	tx.Sign(w.priv)
	return tx
}
