package cmd

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/quorumchain/node/foundation/blockchain/database"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_BuildTx(t *testing.T) {
	t.Log("Given the need to build a transaction from flags.")
	{
		nonce = 4
		inputs = []string{"0xaa"}
		outputs = []string{"0xF01813E4B85e178A83e29B8E7bF26BD830a25f32:apple"}

		tx, err := buildTx()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build the transaction: %v", failed, err)
		}
		if tx.Nonce != 4 || len(tx.Inputs) != 1 || tx.Outputs[0].Product != "apple" {
			t.Fatalf("\t%s\tShould carry the flag values, got %+v.", failed, tx)
		}
		t.Logf("\t%s\tShould be able to build the transaction.", success)

		outputs = []string{"apple"}
		if _, err := buildTx(); err == nil {
			t.Fatalf("\t%s\tShould reject an output without a user.", failed)
		}

		outputs = []string{"bill:apple"}
		if _, err := buildTx(); err == nil {
			t.Fatalf("\t%s\tShould reject an output with a malformed user.", failed)
		}
		t.Logf("\t%s\tShould reject malformed outputs.", success)

		outputs = []string{"0xF01813E4B85e178A83e29B8E7bF26BD830a25f32:apple"}
		privateKey, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}

		signedTx, err := buildSignedTx(privateKey)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
		}

		from, err := signedTx.FromAccount()
		if err != nil || !from.Equal(database.PublicKeyToAccountID(privateKey.PublicKey)) {
			t.Fatalf("\t%s\tShould be signed by the loaded key, got %s: %v", failed, from, err)
		}
		t.Logf("\t%s\tShould sign the transaction with the loaded key.", success)
	}
}
