package merkle_test

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"testing"

	"github.com/quorumchain/node/foundation/blockchain/merkle"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Data uses the sha256 hashing algorithm for the merkle tree.
type Data struct {
	x string
}

// Hash hashes the values using sha256.
func (d Data) Hash() ([]byte, error) {
	h := sha256.Sum256([]byte(d.x))
	return h[:], nil
}

func hashPair(a, b []byte) []byte {
	h := sha256.New()
	h.Write(a)
	h.Write(b)
	return h.Sum(nil)
}

func leaf(s string) []byte {
	h, _ := Data{x: s}.Hash()
	return h
}

// =============================================================================

func Test_Root(t *testing.T) {
	type table struct {
		name string
		data []Data
		root []byte
	}

	tt := []table{
		{
			name: "single",
			data: []Data{{x: "a"}},
			root: leaf("a"),
		},
		{
			name: "pair",
			data: []Data{{x: "a"}, {x: "b"}},
			root: hashPair(leaf("a"), leaf("b")),
		},
		{
			name: "odd",
			data: []Data{{x: "a"}, {x: "b"}, {x: "c"}},
			root: hashPair(hashPair(leaf("a"), leaf("b")), hashPair(leaf("c"), leaf("c"))),
		},
	}

	t.Log("Given the need to calculate merkle roots.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				tree, err := merkle.NewTree(tst.data)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to build a tree: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould be able to build a tree.", success, testID)

				if !bytes.Equal(tree.Root(), tst.root) {
					t.Logf("\t%s\tTest %d:\tgot: %x", failed, testID, tree.Root())
					t.Logf("\t%s\tTest %d:\texp: %x", failed, testID, tst.root)
					t.Fatalf("\t%s\tTest %d:\tShould get the expected root.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould get the expected root.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Proof(t *testing.T) {
	data := []Data{{x: "a"}, {x: "b"}, {x: "c"}, {x: "d"}, {x: "e"}}

	t.Log("Given the need to prove a leaf is part of the tree.")
	{
		tree, err := merkle.NewTree(data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build a tree: %v", failed, err)
		}

		for i, d := range data {
			proof, order, err := tree.Proof(i)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to get a proof for leaf %d: %v", failed, i, err)
			}

			h, _ := d.Hash()
			if !tree.Verify(h, proof, order) {
				t.Fatalf("\t%s\tShould be able to verify leaf %d.", failed, i)
			}
			t.Logf("\t%s\tShould be able to verify leaf %d.", success, i)
		}

		proof, order, _ := tree.Proof(0)
		if tree.Verify(leaf("z"), proof, order) {
			t.Fatalf("\t%s\tShould fail to verify a leaf not in the tree.", failed)
		}
		t.Logf("\t%s\tShould fail to verify a leaf not in the tree.", success)

		if _, _, err := tree.Proof(len(data) + 1); err == nil {
			t.Fatalf("\t%s\tShould fail to get a proof out of range.", failed)
		}
		t.Logf("\t%s\tShould fail to get a proof out of range.", success)
	}
}

func Test_HashStrategy(t *testing.T) {
	t.Log("Given the need to change the hash strategy.")
	{
		data := []Data{{x: "a"}, {x: "b"}}

		sha, err := merkle.NewTree(data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build a sha256 tree: %v", failed, err)
		}

		md, err := merkle.NewTree(data, merkle.WithHashStrategy(md5.New))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build a md5 tree: %v", failed, err)
		}

		if bytes.Equal(sha.Root(), md.Root()) {
			t.Fatalf("\t%s\tShould get different roots for different strategies.", failed)
		}
		t.Logf("\t%s\tShould get different roots for different strategies.", success)
	}
}

func Test_EmptyRoot(t *testing.T) {
	t.Log("Given the need to handle blocks without transactions.")
	{
		root, err := merkle.RootHex([]Data{})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to get an empty root: %v", failed, err)
		}

		if len(root) != 66 {
			t.Fatalf("\t%s\tShould get a 32 byte zero root: %s", failed, root)
		}
		t.Logf("\t%s\tShould get a 32 byte zero root.", success)
	}
}
