// Package merkle provides a merkle tree over hex digests for validation
// support for the blockchain. Interior nodes hash the concatenation of their
// children's hex digests, and an odd leaf is paired with a copy of itself,
// so any two nodes computing a root over the same transaction ids agree.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hashable represents the behavior concrete data must exhibit to be placed
// in the merkle tree.
type Hashable interface {
	MerkleHash() string
}

// =============================================================================

// Node represents a single node in the tree.
type Node struct {
	Hash  string
	Left  *Node
	Right *Node
	leaf  bool
	dup   bool
}

// Tree represents a merkle tree over a set of hashable values.
type Tree[T Hashable] struct {
	Root   *Node
	Leafs  []*Node
	values []T
}

// NewTree constructs a merkle tree from the specified values. A tree over no
// values has the hash of the empty string as its root so empty transaction
// sets still produce a stable digest.
func NewTree[T Hashable](values []T) *Tree[T] {
	t := Tree[T]{
		values: values,
	}
	t.generate()

	return &t
}

// RootHex returns the hex encoded merkle root for the tree.
func (t *Tree[T]) RootHex() string {
	return t.Root.Hash
}

// Values returns the values the tree was constructed from.
func (t *Tree[T]) Values() []T {
	return t.values
}

// generate constructs the leafs and interior nodes of the tree.
func (t *Tree[T]) generate() {
	if len(t.values) == 0 {
		t.Root = &Node{Hash: hashHex("")}
		return
	}

	var leafs []*Node
	for _, value := range t.values {
		leafs = append(leafs, &Node{
			Hash: value.MerkleHash(),
			leaf: true,
		})
	}

	t.Leafs = leafs
	t.Root = buildLevel(leafs)
}

// =============================================================================

// buildLevel recursively pairs nodes until a single root remains.
func buildLevel(nodes []*Node) *Node {
	if len(nodes) == 1 {
		return nodes[0]
	}

	if len(nodes)%2 == 1 {
		last := nodes[len(nodes)-1]
		nodes = append(nodes, &Node{Hash: last.Hash, leaf: last.leaf, dup: true})
	}

	var parents []*Node
	for i := 0; i < len(nodes); i += 2 {
		parents = append(parents, &Node{
			Hash:  hashHex(nodes[i].Hash + nodes[i+1].Hash),
			Left:  nodes[i],
			Right: nodes[i+1],
		})
	}

	return buildLevel(parents)
}

// hashHex returns the hex encoded sha256 of the specified string.
func hashHex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
