package storage_test

import (
	"errors"
	"testing"

	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/storage"
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

func Test_BatchMerge(t *testing.T) {
	t.Log("Given the need to compose write batches bottom up.")
	{
		parent := storage.NewWriteBatch()
		parent.Put([]byte("a"), []byte("1"))

		child := storage.NewWriteBatch()
		child.Put([]byte("b"), []byte("2"))
		child.Delete([]byte("c"))

		parent.Merge(child)

		if parent.Len() != 3 {
			t.Fatalf("\t%s\tShould have all ops in the parent, got %d.", failed, parent.Len())
		}
		t.Logf("\t%s\tShould have all ops in the parent.", success)

		if child.Len() != 0 || child.Size() != 0 {
			t.Fatalf("\t%s\tShould leave the child empty after the merge.", failed)
		}
		t.Logf("\t%s\tShould leave the child empty after the merge.", success)

		ops := parent.Ops()
		if string(ops[0].Key) != "a" || string(ops[1].Key) != "b" || ops[2].Kind != storage.OpDelete {
			t.Fatalf("\t%s\tShould keep the ops in order.", failed)
		}
		t.Logf("\t%s\tShould keep the ops in order.", success)

		if parent.Size() != 5 {
			t.Fatalf("\t%s\tShould track the approximate size, got %d.", failed, parent.Size())
		}
		t.Logf("\t%s\tShould track the approximate size.", success)
	}
}

func Test_CommitBlock(t *testing.T) {
	t.Log("Given the need to commit a block and its records atomically.")
	{
		db, err := storage.OpenMem()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open the store: %v", failed, err)
		}
		defer db.Close()

		if _, err := db.Head(); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("\t%s\tShould have no head on an empty store: %v", failed, err)
		}
		t.Logf("\t%s\tShould have no head on an empty store.", success)

		tx := database.SignedTx{Tx: database.Tx{Outputs: []database.Output{{User: userA, Product: "apple"}, {User: userB, Product: "pear"}}}}
		block, err := database.NewBlock(proposer, database.BlockHeader{}, "", []database.SignedTx{tx})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build a block: %v", failed, err)
		}

		wb := storage.NewWriteBatch()
		var keys []string
		for i, out := range tx.Outputs {
			u := database.NewUnclaimedTx(tx.ID(), uint32(i), out)
			keys = append(keys, u.Key())
			if err := wb.PutUnclaimed(u); err != nil {
				t.Fatalf("\t%s\tShould be able to stage a record: %v", failed, err)
			}
		}
		if err := wb.PutBlock(block); err != nil {
			t.Fatalf("\t%s\tShould be able to stage the block: %v", failed, err)
		}
		wb.SetHead(block.Hash())

		if err := db.Commit(wb); err != nil {
			t.Fatalf("\t%s\tShould be able to commit the batch: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to commit the batch.", success)

		head, err := db.Head()
		if err != nil || head.Hash() != block.Hash() {
			t.Fatalf("\t%s\tShould have the block as head: %v", failed, err)
		}
		t.Logf("\t%s\tShould have the block as head.", success)

		byHeight, err := db.GetBlockByHeight(0)
		if err != nil || byHeight.Hash() != block.Hash() {
			t.Fatalf("\t%s\tShould find the block by height: %v", failed, err)
		}
		t.Logf("\t%s\tShould find the block by height.", success)

		for _, key := range keys {
			ok, err := db.HasUnclaimed(key)
			if err != nil || !ok {
				t.Fatalf("\t%s\tShould find unclaimed record %s: %v", failed, key, err)
			}
		}
		t.Logf("\t%s\tShould find the unclaimed records.", success)

		recs, err := db.QueryUnclaimed(userB)
		if err != nil || len(recs) != 1 || recs[0].Product != "pear" {
			t.Fatalf("\t%s\tShould query the records for a user: %v %v", failed, recs, err)
		}
		t.Logf("\t%s\tShould query the records for a user.", success)

		spend := storage.NewWriteBatch()
		spend.DeleteUnclaimed(keys[0])
		if err := db.Commit(spend); err != nil {
			t.Fatalf("\t%s\tShould be able to commit a spend: %v", failed, err)
		}

		if ok, _ := db.HasUnclaimed(keys[0]); ok {
			t.Fatalf("\t%s\tShould have removed the spent record.", failed)
		}
		t.Logf("\t%s\tShould have removed the spent record.", success)

		if _, err := db.GetUnclaimed(keys[0]); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("\t%s\tShould get not found for a spent record: %v", failed, err)
		}
		t.Logf("\t%s\tShould get not found for a spent record.", success)
	}
}
