// Package hashx implements the 256-bit hash primitives shared by every
// consensus component: identity hashing, big-endian numeric ordering for
// difficulty comparisons, and the limb-wise scaling used to retarget PoW/PoS
// difficulty.
package hashx

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
)

// Size is the length in bytes of a Hash256.
const Size = 32

// Hash256 is an opaque 32-byte value, totally ordered as a big-endian
// unsigned integer. It is used both as a content identity and, for
// difficulty targets, as a numeric bound.
type Hash256 [Size]byte

// Sum returns the SHA-256 digest of data as a Hash256.
func Sum(data []byte) Hash256 {
	return Hash256(sha256.Sum256(data))
}

// String returns the lowercase hex encoding of h.
func (h Hash256) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the underlying 32 bytes.
func (h Hash256) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, h[:])
	return out
}

// IsZero reports whether h is the all-zero hash (used for the genesis
// block's parent reference).
func (h Hash256) IsZero() bool {
	return h == Hash256{}
}

// MarshalJSON encodes h as a hex string, so gossiped headers and hash lists
// read as plain text rather than byte-array literals.
func (h Hash256) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON parses h from a hex string produced by MarshalJSON.
func (h *Hash256) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := FromHex(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Address truncates h to a 20-byte address, matching the convention used
// for deriving short identifiers from a full digest.
func (h Hash256) Address() [20]byte {
	var addr [20]byte
	copy(addr[:], h[:20])
	return addr
}

// Cmp compares h and other as big-endian unsigned 256-bit integers. It returns
// -1, 0, or 1 following the usual comparator convention.
func (h Hash256) Cmp(other Hash256) int {
	return bytes.Compare(h[:], other[:])
}

// LessOrEqual reports whether h <= target, interpreting both as big-endian
// unsigned integers. This is the difficulty-acceptance test used throughout
// the miner, staker, and gossip validation: a candidate hash "beats" a
// target when it does not exceed it.
func (h Hash256) LessOrEqual(target Hash256) bool {
	return h.Cmp(target) <= 0
}

// FromHex parses a hex string into a Hash256. Short inputs are left-padded
// with zero bytes; this mirrors how a numeric target with leading zero
// limbs is commonly expressed in hex.
func FromHex(s string) (Hash256, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash256{}, err
	}
	var h Hash256
	if len(raw) > Size {
		raw = raw[len(raw)-Size:]
	}
	copy(h[Size-len(raw):], raw)
	return h, nil
}

// limbs returns h as 16 big-endian uint16 limbs, most significant first.
func (h Hash256) limbs() [16]uint16 {
	var out [16]uint16
	for i := 0; i < 16; i++ {
		out[i] = binary.BigEndian.Uint16(h[i*2 : i*2+2])
	}
	return out
}

func limbsToHash(limbs [16]uint16) Hash256 {
	var h Hash256
	for i, l := range limbs {
		binary.BigEndian.PutUint16(h[i*2:i*2+2], l)
	}
	return h
}

// DivideBy scales h by dividing each of its 16 big-endian u16 limbs by r,
// truncating to the nearest integer and saturating at 0 when r yields a
// zero quotient. This is a *per-limb*, not whole-integer, division: it is
// the target-scaling primitive spec.md §4.1 calls for (used to derive the
// easier fruit/PoS thresholds from the full PoW target, and to retarget
// difficulty by a ratio). DivideBy(h, 1.0) is the identity, and for r >= 1
// the result is monotonically non-increasing in r.
func DivideBy(h Hash256, r float64) Hash256 {
	if r <= 0 {
		return h
	}
	limbs := h.limbs()
	var out [16]uint16
	for i, l := range limbs {
		scaled := float64(l) / r
		if scaled > 0xFFFF {
			out[i] = 0xFFFF
		} else if scaled < 0 {
			out[i] = 0
		} else {
			out[i] = uint16(scaled)
		}
	}
	return limbsToHash(out)
}

// MultiplyBy scales h by multiplying each limb by r, saturating at 0xFFFF.
// It is the companion of DivideBy used to widen the PoS target by a stake
// fraction (spec.md §4.6): a larger virtual stake produces a larger,
// easier-to-beat target.
func MultiplyBy(h Hash256, r float64) Hash256 {
	if r < 0 {
		r = 0
	}
	limbs := h.limbs()
	var out [16]uint16
	for i, l := range limbs {
		scaled := float64(l) * r
		if scaled > 0xFFFF {
			out[i] = 0xFFFF
		} else if scaled < 0 {
			out[i] = 0
		} else {
			out[i] = uint16(scaled)
		}
	}
	return limbsToHash(out)
}
