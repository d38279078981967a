// Package merkle computes merkle roots and inclusion proofs for the
// transactions recorded in a block.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hashable represents the behavior concrete data must exhibit to be used as
// a leaf in the tree.
type Hashable interface {
	Hash() ([]byte, error)
}

// Proof order values. An order of Left means the proof hash is concatenated
// before the running hash, Right means after.
const (
	Left  int64 = 0
	Right int64 = 1
)

// =============================================================================

// Tree holds every level of a merkle tree, leafs first and the root last.
// When a level has an odd number of nodes the last node is duplicated.
type Tree struct {
	levels       [][][]byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy(hashStrategy func() hash.Hash) func(t *Tree) {
	return func(t *Tree) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a merkle tree over the specified values.
func NewTree[T Hashable](values []T, options ...func(t *Tree)) (*Tree, error) {
	if len(values) == 0 {
		return nil, errors.New("cannot construct tree with no content")
	}

	t := Tree{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	leafs := make([][]byte, len(values))
	for i, value := range values {
		h, err := value.Hash()
		if err != nil {
			return nil, err
		}
		leafs[i] = h
	}

	level := leafs
	t.levels = append(t.levels, level)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
			t.levels[len(t.levels)-1] = level
		}

		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, t.join(level[i], level[i+1]))
		}

		t.levels = append(t.levels, next)
		level = next
	}

	return &t, nil
}

// Root returns the merkle root hash.
func (t *Tree) Root() []byte {
	return t.levels[len(t.levels)-1][0]
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree) RootHex() string {
	return hexutil.Encode(t.Root())
}

// Proof returns the set of hashes and the order of concatenating those
// hashes for proving the leaf at the specified index is in the tree.
//
// Starting with the leaf hash, for every proof hash: when the order is Left
// hash(proof|running), when the order is Right hash(running|proof). The final
// running hash must equal the root.
func (t *Tree) Proof(index int) ([][]byte, []int64, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, nil, errors.New("index out of range")
	}

	var proof [][]byte
	var order []int64

	for _, level := range t.levels[:len(t.levels)-1] {
		if index%2 == 0 {
			proof = append(proof, level[index+1])
			order = append(order, Right)
		} else {
			proof = append(proof, level[index-1])
			order = append(order, Left)
		}
		index /= 2
	}

	return proof, order, nil
}

// Verify checks the leaf hash combined with the proof produces the root.
func (t *Tree) Verify(leaf []byte, proof [][]byte, order []int64) bool {
	if len(proof) != len(order) {
		return false
	}

	running := leaf
	for i, p := range proof {
		switch order[i] {
		case Left:
			running = t.join(p, running)
		default:
			running = t.join(running, p)
		}
	}

	return bytes.Equal(running, t.Root())
}

// join hashes the two child hashes into the parent hash.
func (t *Tree) join(left, right []byte) []byte {
	h := t.hashStrategy()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// =============================================================================

// RootHex is a convenience function that returns the hex encoded merkle root
// for the values. An empty set of values produces a root of all zeros.
func RootHex[T Hashable](values []T) (string, error) {
	if len(values) == 0 {
		return hexutil.Encode(make([]byte, sha256.Size)), nil
	}

	tree, err := NewTree(values)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}
