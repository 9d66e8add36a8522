package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// VRF implements ECVRF-SECP256K1-SHA256-TAI: the construction the original
// staker binds (spec.md §9 design notes). The spec only requires
// prove/verify/proof_to_hash, so this is the minimal RFC 9381-shaped
// construction over the curve flokicoin's own schnorr package already binds
// (github.com/decred/dcrd/dcrec/secp256k1/v4) — try-and-increment
// hash-to-curve, a Schnorr-style (Gamma, c, s) proof, and a SHA-256
// proof-to-hash step.

// VRFProofLen is the serialized length of a proof: a compressed curve point
// (33 bytes) plus a 16-byte challenge plus a 32-byte scalar.
const VRFProofLen = 33 + 16 + 32

// VRFPrivateKey is a staker's VRF signing key.
type VRFPrivateKey struct {
	key *secp.PrivateKey
}

// VRFPublicKey is a staker's VRF verification key.
type VRFPublicKey struct {
	key *secp.PublicKey
}

// GenerateVRFKeyPair creates a new VRF key pair.
func GenerateVRFKeyPair() (*VRFPrivateKey, *VRFPublicKey, error) {
	priv, err := secp.GeneratePrivateKey()
	if err != nil {
		return nil, nil, err
	}
	return &VRFPrivateKey{key: priv}, &VRFPublicKey{key: priv.PubKey()}, nil
}

// Bytes returns the compressed serialization of the public key.
func (pk *VRFPublicKey) Bytes() []byte {
	return pk.key.SerializeCompressed()
}

// VRFPubKeyFromBytes parses a compressed public key.
func VRFPubKeyFromBytes(b []byte) (*VRFPublicKey, error) {
	key, err := secp.ParsePubKey(b)
	if err != nil {
		return nil, err
	}
	return &VRFPublicKey{key: key}, nil
}

// hashToCurveTAI is the "try and increment" hash-to-curve used by the TAI
// suites: hash candidate x-coordinates until one parses as a valid curve
// point, preferring the even-y representative.
func hashToCurveTAI(pub *VRFPublicKey, alpha []byte) (*secp.JacobianPoint, error) {
	pubBytes := pub.key.SerializeCompressed()
	for ctr := 0; ctr < 256; ctr++ {
		h := sha256.New()
		h.Write([]byte{0x01})
		h.Write(pubBytes)
		h.Write(alpha)
		h.Write([]byte{byte(ctr)})
		digest := h.Sum(nil)

		candidate := make([]byte, 0, 33)
		candidate = append(candidate, 0x02) // even-y compressed prefix
		candidate = append(candidate, digest...)
		point, err := secp.ParsePubKey(candidate)
		if err != nil {
			continue
		}
		var jp secp.JacobianPoint
		point.AsJacobian(&jp)
		return &jp, nil
	}
	return nil, errors.New("crypto: hash-to-curve exhausted try-and-increment counter")
}

// hashPoints derives the Fiat-Shamir challenge scalar from the four points
// that bind a VRF proof: the hashed input point, the VRF output point, and
// the prover's two nonce commitments. Truncated to 16 bytes, matching the
// secp256k1 suite's cLen.
func hashPoints(points ...*secp.JacobianPoint) [16]byte {
	h := sha256.New()
	h.Write([]byte{0x02})
	for _, p := range points {
		p.ToAffine()
		xb := p.X.Bytes()
		yb := p.Y.Bytes()
		h.Write(xb[:])
		h.Write(yb[:])
	}
	digest := h.Sum(nil)
	var c [16]byte
	copy(c[:], digest[:16])
	return c
}

func scalarFromBytes16(b [16]byte) secp.ModNScalar {
	var s secp.ModNScalar
	var full [32]byte
	copy(full[16:], b[:])
	s.SetByteArray(&full)
	return s
}

// nonceFor derives a deterministic per-proof nonce from the private key and
// the hashed input point, avoiding a system RNG dependency for proof
// reproducibility in tests.
func nonceFor(priv *VRFPrivateKey, h *secp.JacobianPoint) secp.ModNScalar {
	skBytes := priv.key.Serialize()
	h.ToAffine()
	xb := h.X.Bytes()
	mac := hmac.New(sha256.New, skBytes)
	mac.Write(xb[:])
	digest := mac.Sum(nil)
	var k secp.ModNScalar
	k.SetByteSlice(digest)
	if k.IsZero() {
		k.SetInt(1)
	}
	return k
}

// VRFProof is a decoded (Gamma, c, s) proof.
type VRFProof struct {
	Gamma secp.JacobianPoint
	C     [16]byte
	S     secp.ModNScalar
}

// Prove computes pi = VRF_prove(sk, alpha).
func Prove(priv *VRFPrivateKey, pub *VRFPublicKey, alpha []byte) ([]byte, error) {
	h, err := hashToCurveTAI(pub, alpha)
	if err != nil {
		return nil, err
	}

	var gamma secp.JacobianPoint
	secp.ScalarMultNonConst(&priv.key.Key, h, &gamma)

	k := nonceFor(priv, h)

	var kG, kH secp.JacobianPoint
	secp.ScalarBaseMultNonConst(&k, &kG)
	secp.ScalarMultNonConst(&k, h, &kH)

	c := hashPoints(h, &gamma, &kG, &kH)
	cScalar := scalarFromBytes16(c)

	var cSK secp.ModNScalar
	cSK.Mul2(&cScalar, &priv.key.Key)
	s := new(secp.ModNScalar).Add2(&k, &cSK)

	gamma.ToAffine()
	gammaPub := secp.NewPublicKey(&gamma.X, &gamma.Y)
	gammaBytes := gammaPub.SerializeCompressed()

	sBytes := s.Bytes()

	out := make([]byte, 0, VRFProofLen)
	out = append(out, gammaBytes...)
	out = append(out, c[:]...)
	out = append(out, sBytes[:]...)
	return out, nil
}

// decodeProof splits a serialized proof into its (Gamma, c, s) components.
func decodeProof(pi []byte) (gamma *secp.PublicKey, c [16]byte, s secp.ModNScalar, err error) {
	if len(pi) != VRFProofLen {
		return nil, c, s, errors.New("crypto: malformed vrf proof length")
	}
	gamma, err = secp.ParsePubKey(pi[:33])
	if err != nil {
		return nil, c, s, err
	}
	copy(c[:], pi[33:49])
	var sBytes [32]byte
	copy(sBytes[:], pi[49:81])
	s.SetByteArray(&sBytes)
	return gamma, c, s, nil
}

// VRFVerify checks proof pi against pub and alpha, returning the VRF output
// hash on success.
func VRFVerify(pub *VRFPublicKey, pi []byte, alpha []byte) ([]byte, error) {
	gammaPub, c, s, err := decodeProof(pi)
	if err != nil {
		return nil, err
	}
	var gamma secp.JacobianPoint
	gammaPub.AsJacobian(&gamma)

	h, err := hashToCurveTAI(pub, alpha)
	if err != nil {
		return nil, err
	}

	cScalar := scalarFromBytes16(c)
	negC := cScalar
	negC.Negate()

	var pubJ secp.JacobianPoint
	pub.key.AsJacobian(&pubJ)

	// U = s*G - c*pub
	var sG, cPub, u secp.JacobianPoint
	secp.ScalarBaseMultNonConst(&s, &sG)
	secp.ScalarMultNonConst(&negC, &pubJ, &cPub)
	secp.AddNonConst(&sG, &cPub, &u)

	// V = s*H - c*gamma
	var sH, cGamma, v secp.JacobianPoint
	secp.ScalarMultNonConst(&s, h, &sH)
	secp.ScalarMultNonConst(&negC, &gamma, &cGamma)
	secp.AddNonConst(&sH, &cGamma, &v)

	cPrime := hashPoints(h, &gamma, &u, &v)
	if cPrime != c {
		return nil, errors.New("crypto: vrf proof verification failed")
	}
	return ProofToHash(pi)
}

// ProofToHash derives the VRF output from a (not necessarily just-verified)
// proof's Gamma component: beta = SHA256(0x03 || gamma_bytes).
func ProofToHash(pi []byte) ([]byte, error) {
	gammaPub, _, _, err := decodeProof(pi)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write([]byte{0x03})
	h.Write(gammaPub.SerializeCompressed())
	return h.Sum(nil), nil
}
