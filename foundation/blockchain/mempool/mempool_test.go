package mempool_test

import (
	"testing"

	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/mempool"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestCRUD(t *testing.T) {
	type table struct {
		name string
		txs  []database.SignedTx
		best []uint64
	}

	out := []database.Output{{User: "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32", Product: "apple"}}

	tt := []table{
		{
			name: "basic",
			txs: []database.SignedTx{
				{Tx: database.Tx{Nonce: 2, Outputs: out, TimeStamp: 20}},
				{Tx: database.Tx{Nonce: 3, Outputs: out, TimeStamp: 40}},
				{Tx: database.Tx{Nonce: 4, Outputs: out, TimeStamp: 10}},
				{Tx: database.Tx{Nonce: 1, Outputs: out, TimeStamp: 30}},
			},
			best: []uint64{4, 2, 1},
		},
	}

	t.Log("Given the need to validate mempool api.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a set of transaction.", testID)
			{
				f := func(t *testing.T) {
					mp, err := mempool.New()
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to construct the mempool: %v", failed, testID, err)
					}

					for _, tx := range tst.txs {
						if _, added := mp.Upsert(tx); !added {
							t.Fatalf("\t%s\tTest %d:\tShould be able to add new transaction: %s", failed, testID, tx)
						}
						t.Logf("\t%s\tTest %d:\tShould be able to add new transaction: %s", success, testID, tx)
					}

					if _, added := mp.Upsert(tst.txs[0]); added {
						t.Fatalf("\t%s\tTest %d:\tShould not add a known transaction twice.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould not add a known transaction twice.", success, testID)

					best := mp.PickBest(len(tst.best))
					for i, tx := range best {
						if tx.Nonce != tst.best[i] {
							t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, tx.Nonce)
							t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, tst.best[i])
							t.Fatalf("\t%s\tTest %d:\tShould get back the oldest transactions first.", failed, testID)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould get back the oldest transactions first.", success, testID)

					mp.Delete(best[0])
					if mp.Count() != 3 {
						t.Fatalf("\t%s\tTest %d:\tShould be able to remove a transaction.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to remove a transaction.", success, testID)

					mp.Truncate()
					if mp.Count() != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould be able to truncate mempool.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to truncate mempool.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}

	if _, err := mempool.NewWithStrategy("tip"); err == nil {
		t.Fatalf("\t%s\tShould reject an unknown strategy.", failed)
	}
}
