package database_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/quorumchain/node/foundation/blockchain/database"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	userA    = database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
	userB    = database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	proposer = database.NodeID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")
)

// =============================================================================

func Test_TxValidate(t *testing.T) {
	type table struct {
		name  string
		tx    database.Tx
		valid bool
	}

	tt := []table{
		{
			name:  "valid",
			tx:    database.Tx{Outputs: []database.Output{{User: userA, Product: "apple"}}},
			valid: true,
		},
		{
			name:  "no-outputs",
			tx:    database.Tx{Inputs: []database.Input{{UnclaimedHash: "0x01"}}},
			valid: false,
		},
		{
			name:  "bad-user",
			tx:    database.Tx{Outputs: []database.Output{{User: "bill", Product: "apple"}}},
			valid: false,
		},
		{
			name: "double-spend",
			tx: database.Tx{
				Inputs:  []database.Input{{UnclaimedHash: "0x01"}, {UnclaimedHash: "0x01"}},
				Outputs: []database.Output{{User: userA, Product: "apple"}},
			},
			valid: false,
		},
	}

	t.Log("Given the need to validate transactions.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				err := tst.tx.Validate()
				if (err == nil) != tst.valid {
					t.Fatalf("\t%s\tTest %d:\tShould get the expected validation result: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould get the expected validation result.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_SignedTx(t *testing.T) {
	t.Log("Given the need to sign transactions and recover the signer.")
	{
		privateKey, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}
		owner := database.PublicKeyToAccountID(privateKey.PublicKey)

		tx, err := database.NewTx(1, []database.Input{{UnclaimedHash: "0x01"}}, []database.Output{{User: userB, Product: "apple"}})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build a transaction: %v", failed, err)
		}

		if err := (database.SignedTx{Tx: tx}).Validate(); !errors.Is(err, database.ErrUnsigned) {
			t.Fatalf("\t%s\tShould require a signature on a spend: %v", failed, err)
		}
		t.Logf("\t%s\tShould require a signature on a spend.", success)

		signedTx, err := tx.Sign(privateKey)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
		}

		if err := signedTx.Validate(); err != nil {
			t.Fatalf("\t%s\tShould validate a signed spend: %v", failed, err)
		}
		t.Logf("\t%s\tShould validate a signed spend.", success)

		from, err := signedTx.FromAccount()
		if err != nil || !from.Equal(owner) {
			t.Fatalf("\t%s\tShould recover the signer %s, got %s: %v", failed, owner, from, err)
		}
		t.Logf("\t%s\tShould recover the signer.", success)

		tampered := signedTx
		tampered.Outputs = []database.Output{{User: userA, Product: "apple"}}
		if from, err := tampered.FromAccount(); err == nil && from.Equal(owner) {
			t.Fatalf("\t%s\tShould not recover the signer from a changed transaction.", failed)
		}
		t.Logf("\t%s\tShould not recover the signer from a changed transaction.", success)

		if signedTx.ID() == tampered.ID() {
			t.Fatalf("\t%s\tShould get a different id for a changed transaction.", failed)
		}
		t.Logf("\t%s\tShould get a different id for a changed transaction.", success)
	}
}

func Test_UnclaimedKey(t *testing.T) {
	t.Log("Given the need to key unclaimed records by their content.")
	{
		out := database.Output{User: userA, Product: "apple"}

		u1 := database.NewUnclaimedTx("0xabc", 0, out)
		u2 := database.NewUnclaimedTx("0xabc", 0, out)
		u3 := database.NewUnclaimedTx("0xabc", 1, out)

		if u1.Key() != u2.Key() {
			t.Fatalf("\t%s\tShould get the same key for the same record.", failed)
		}
		t.Logf("\t%s\tShould get the same key for the same record.", success)

		if u1.Key() == u3.Key() {
			t.Fatalf("\t%s\tShould get a different key for a different index.", failed)
		}
		t.Logf("\t%s\tShould get a different key for a different index.", success)
	}
}

func Test_BlockChain(t *testing.T) {
	t.Log("Given the need to link blocks into a chain.")
	{
		genesis, err := database.NewBlock(proposer, database.BlockHeader{}, "", []database.SignedTx{
			{Tx: database.Tx{Outputs: []database.Output{{User: userA, Product: "apple"}}}},
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the genesis block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to create the genesis block.", success)

		if genesis.Header.Height != 0 {
			t.Fatalf("\t%s\tShould have a genesis height of 0, got %d.", failed, genesis.Header.Height)
		}

		next, err := database.NewBlock(proposer, genesis.Header, genesis.Hash(), []database.SignedTx{
			{Tx: database.Tx{Outputs: []database.Output{{User: userB, Product: "pear"}}}},
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the next block: %v", failed, err)
		}

		if err := next.ValidateNext(genesis); err != nil {
			t.Fatalf("\t%s\tShould be able to validate the next block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to validate the next block.", success)

		if err := genesis.ValidateNext(next); !errors.Is(err, database.ErrChainForked) {
			t.Fatalf("\t%s\tShould detect a block that does not extend the parent: %v", failed, err)
		}
		t.Logf("\t%s\tShould detect a block that does not extend the parent.", success)

		next.Trans = append(next.Trans, database.SignedTx{Tx: database.Tx{Outputs: []database.Output{{User: userA, Product: "plum"}}}})
		if err := next.ValidateNext(genesis); err == nil {
			t.Fatalf("\t%s\tShould detect a merkle root mismatch.", failed)
		}
		t.Logf("\t%s\tShould detect a merkle root mismatch.", success)
	}
}
