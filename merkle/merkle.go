// Package merkle is a standalone Merkle tree utility. It is not wired into
// block hashing in this chain — blocks hash their transaction list
// directly (see block.encodeForHash) — but is kept as a tested utility for
// a future block-header redesign that wants a transaction digest cheaper
// to prove membership against than the full list.
package merkle

import (
	"crypto/sha256"

	"github.com/pkg/errors"
)

// Node is a single node in a Merkle tree: a leaf holds the hash of one
// piece of data, an internal node holds the hash of its two children.
type Node struct {
	Left  *Node
	Right *Node
	Hash  []byte
}

// Tree wraps the root of a built Merkle tree.
type Tree struct {
	Root *Node
}

func newLeaf(data []byte) *Node {
	h := sha256.Sum256(data)
	return &Node{Hash: h[:]}
}

func newParent(left, right *Node) *Node {
	combined := make([]byte, 0, len(left.Hash)+len(right.Hash))
	combined = append(combined, left.Hash...)
	combined = append(combined, right.Hash...)
	h := sha256.Sum256(combined)
	return &Node{Left: left, Right: right, Hash: h[:]}
}

// New builds a Merkle tree over data, one leaf per element. An odd number
// of elements duplicates the last one, the usual balanced-tree convention.
func New(data [][]byte) (*Tree, error) {
	if len(data) == 0 {
		return nil, errors.New("merkle: cannot build a tree over zero elements")
	}

	leaves := make([]*Node, 0, len(data))
	for _, d := range data {
		leaves = append(leaves, newLeaf(d))
	}
	if len(leaves)%2 != 0 {
		leaves = append(leaves, leaves[len(leaves)-1])
	}

	level := leaves
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]*Node, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, newParent(level[i], level[i+1]))
		}
		level = next
	}

	return &Tree{Root: level[0]}, nil
}

// RootHash returns the tree's root digest.
func (t *Tree) RootHash() []byte {
	return t.Root.Hash
}
