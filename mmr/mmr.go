// Package mmr implements an append-only Merkle Mountain Range over leaf
// hashes, used to snapshot "every header hash on the chain from genesis up
// to and including this block" (spec.md §3) so that a FlyClient-style
// membership proof for any prefix is O(log n) reconstructable.
//
// This is a leaf-hash MMR, not the position-committing interior-node
// variant in forestrie-go-merklelog/mmr this package is grounded on: per
// spec.md §4.1 "Only 'leaf i exists and equals X' is proved", so interior
// nodes need not commit to their own position. A mountain (a maximal
// perfect subtree) is built with the ordinary merkle package and the
// mountain peaks are bagged left-to-right into a single root.
package mmr

import (
	"math/bits"

	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/merkle"
)

// MMR is an append-only accumulator over leaf hashes.
type MMR struct {
	leaves []hashx.Hash256
}

// Empty returns the MMR with no leaves. Its root is the root of the empty
// Merkle tree, matching spec.md scenario 1 (genesis-only chain).
func Empty() MMR {
	return MMR{}
}

// Append returns a new MMR with leaf appended. The receiver is left
// untouched — callers snapshot by cloning (spec.md §3: "MMR for a block
// equals append(parent.mmr, header.hash)").
func (m MMR) Append(leaf hashx.Hash256) MMR {
	next := make([]hashx.Hash256, len(m.leaves)+1)
	copy(next, m.leaves)
	next[len(m.leaves)] = leaf
	return MMR{leaves: next}
}

// Len returns the number of leaves in the MMR.
func (m MMR) Len() int {
	return len(m.leaves)
}

// mountainSizes decomposes n leaves into mountain sizes from most- to
// least-significant bit of n, e.g. n=11 (0b1011) -> [8, 2, 1].
func mountainSizes(n int) []int {
	if n == 0 {
		return nil
	}
	var sizes []int
	width := bits.Len(uint(n))
	for b := width - 1; b >= 0; b-- {
		if n&(1<<b) != 0 {
			sizes = append(sizes, 1<<b)
		}
	}
	return sizes
}

// peaks returns the root of each mountain, left to right, plus the leaf
// offset at which each mountain begins.
func (m MMR) peaks() ([]hashx.Hash256, []int) {
	sizes := mountainSizes(len(m.leaves))
	peaks := make([]hashx.Hash256, len(sizes))
	offsets := make([]int, len(sizes))
	offset := 0
	for i, sz := range sizes {
		offsets[i] = offset
		peaks[i] = merkle.Build(m.leaves[offset : offset+sz]).Root()
		offset += sz
	}
	return peaks, offsets
}

// bag folds peaks left to right into a single root: H(...H(H(p0,p1),p2)...).
// A single peak is its own root; zero peaks (empty MMR) uses the empty
// Merkle tree's root so Root() agrees with merkle.Build(nil).Root().
func bag(peaks []hashx.Hash256) hashx.Hash256 {
	if len(peaks) == 0 {
		return merkle.Build(nil).Root()
	}
	acc := peaks[0]
	for _, p := range peaks[1:] {
		acc = merkle.Combine(acc, p)
	}
	return acc
}

// Root returns the bagged MMR root.
func (m MMR) Root() hashx.Hash256 {
	peaks, _ := m.peaks()
	return bag(peaks)
}

// Proof is a membership proof for a single leaf: the Merkle co-path inside
// its mountain, plus the sibling mountain peaks needed to re-derive the
// bagged root.
type Proof struct {
	MountainProof merkle.Proof
	MountainIndex int // which mountain (0 = leftmost) the leaf belongs to
	MountainSize  int
	IndexInMtn    int
	OtherPeaks    []hashx.Hash256 // all other mountain peaks, in left-to-right order
}

// ProofFor builds a membership proof for leaf index i.
func (m MMR) ProofFor(i int) (Proof, bool) {
	if i < 0 || i >= len(m.leaves) {
		return Proof{}, false
	}
	sizes := mountainSizes(len(m.leaves))
	offset := 0
	for mi, sz := range sizes {
		if i < offset+sz {
			mountain := m.leaves[offset : offset+sz]
			tree := merkle.Build(mountain)
			var other []hashx.Hash256
			off2 := 0
			for mj, sz2 := range sizes {
				if mj != mi {
					other = append(other, merkle.Build(m.leaves[off2:off2+sz2]).Root())
				}
				off2 += sz2
			}
			return Proof{
				MountainProof: tree.ProofFor(i - offset),
				MountainIndex: mi,
				MountainSize:  sz,
				IndexInMtn:    i - offset,
				OtherPeaks:    other,
			}, true
		}
		offset += sz
	}
	return Proof{}, false
}

// Verify checks that leaf, combined with proof, reproduces root.
func Verify(root hashx.Hash256, leaf hashx.Hash256, proof Proof) bool {
	mountainRoot := reconstructMountainRoot(leaf, proof)
	peaks := make([]hashx.Hash256, 0, len(proof.OtherPeaks)+1)
	inserted := false
	otherIdx := 0
	// Re-interleave: mountains are ordered left to right by size descending
	// (matching mountainSizes); OtherPeaks preserves that relative order
	// with MountainIndex's slot removed, so reinsert at MountainIndex.
	total := len(proof.OtherPeaks) + 1
	for slot := 0; slot < total; slot++ {
		if slot == proof.MountainIndex {
			peaks = append(peaks, mountainRoot)
			inserted = true
			continue
		}
		if otherIdx < len(proof.OtherPeaks) {
			peaks = append(peaks, proof.OtherPeaks[otherIdx])
			otherIdx++
		}
	}
	if !inserted {
		peaks = append(peaks, mountainRoot)
	}
	return bag(peaks) == root
}

func reconstructMountainRoot(leaf hashx.Hash256, proof Proof) hashx.Hash256 {
	cur := leaf
	for i, sibling := range proof.MountainProof.Path {
		if i < len(proof.MountainProof.RightSide) && proof.MountainProof.RightSide[i] {
			cur = merkle.Combine(cur, sibling)
		} else {
			cur = merkle.Combine(sibling, cur)
		}
	}
	return cur
}
