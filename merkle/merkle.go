// Package merkle implements the fixed binary Merkle tree used for
// transaction commitments (Content.data's root) and for SPV inclusion
// proofs. Construction pads a duplicated last leaf at every odd level,
// matching the teacher's length-prefixed leaf-hashing convention in
// core/block.go's ComputeTxRoot, generalized here into a full tree with
// co-path proofs.
package merkle

import (
	"bytes"
	"encoding/binary"

	"github.com/tolelom/hybridchain/hashx"
)

// LeafHash hashes a single leaf's raw bytes, length-prefixing it so that
// leaves of different lengths can never collide at a boundary.
func LeafHash(data []byte) hashx.Hash256 {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
	return hashx.Sum(buf.Bytes())
}

// Combine hashes two sibling nodes into their parent. It is exported so
// that other packages (mmr) building proofs over a differently-shaped tree
// of the same leaves can recombine nodes identically to Build/Verify.
func Combine(left, right hashx.Hash256) hashx.Hash256 {
	buf := make([]byte, 0, hashx.Size*2)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return hashx.Sum(buf)
}

func parentHash(left, right hashx.Hash256) hashx.Hash256 {
	return Combine(left, right)
}

// Tree is a complete binary Merkle tree over a fixed leaf set.
type Tree struct {
	levels [][]hashx.Hash256 // levels[0] = leaves, levels[len-1] = {root}
}

// Build constructs a Tree from already-hashed leaves. An empty leaf set
// yields a tree whose root is the hash of the string "empty", matching the
// teacher's "empty" sentinel for zero-transaction blocks.
func Build(leaves []hashx.Hash256) *Tree {
	if len(leaves) == 0 {
		return &Tree{levels: [][]hashx.Hash256{{hashx.Sum([]byte("empty"))}}}
	}
	level := append([]hashx.Hash256(nil), leaves...)
	levels := [][]hashx.Hash256{level}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1]) // duplicate-last-leaf padding
		}
		next := make([]hashx.Hash256, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, parentHash(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}
}

// Root returns the tree's root hash.
func (t *Tree) Root() hashx.Hash256 {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof returns the co-path from leaf index to the root, along with
// whether each step is the right-hand sibling (needed to recombine in the
// correct order during verification).
type Proof struct {
	Path      []hashx.Hash256
	RightSide []bool
}

// ProofFor builds an inclusion proof for the leaf at index.
func (t *Tree) ProofFor(index int) Proof {
	var proof Proof
	idx := index
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		isRight := idx%2 == 1
		var siblingIdx int
		if isRight {
			siblingIdx = idx - 1
		} else {
			siblingIdx = idx + 1
			if siblingIdx >= len(nodes) {
				siblingIdx = idx // duplicated-last-leaf padding sibling is itself
			}
		}
		proof.Path = append(proof.Path, nodes[siblingIdx])
		proof.RightSide = append(proof.RightSide, !isRight) // sibling is on the right iff we're on the left
		idx /= 2
	}
	return proof
}

// Verify checks that leafHash combined with proof at index, out of
// leafCount total leaves, reproduces root. It does not depend on how the
// tree backing the proof was constructed (spec.md §4.1).
func Verify(root, leafHash hashx.Hash256, proof Proof, index, leafCount int) bool {
	if leafCount <= 0 {
		return leafHash == root && len(proof.Path) == 0
	}
	if index < 0 || index >= leafCount {
		return false
	}
	cur := leafHash
	for i, sibling := range proof.Path {
		if i < len(proof.RightSide) && proof.RightSide[i] {
			cur = parentHash(cur, sibling)
		} else {
			cur = parentHash(sibling, cur)
		}
	}
	return cur == root
}
