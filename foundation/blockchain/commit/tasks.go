package commit

import (
	"errors"
	"fmt"

	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/scheduler"
	"github.com/quorumchain/node/foundation/blockchain/storage"
)

// Chunk sizes for splitting a transaction across tasks.
const (
	InputChunkSize  = 128
	OutputChunkSize = 128
)

// Reader provides the lookups the input tasks need.
type Reader interface {
	GetUnclaimed(hash string) (database.UnclaimedTx, error)
}

// NewTransactionTask constructs the root task that commits a single
// transaction. It forks one input task and one output task per chunk and
// returns. Every forked chunk merges its private batch into txBatch, which
// is complete once the returned task is finished.
func NewTransactionTask(db Reader, tx database.SignedTx, txBatch *storage.WriteBatch) *scheduler.Task {
	txID := tx.ID()

	fn := func(w *scheduler.Worker, self *scheduler.Task) error {

		// Only the owner of the records may spend them.
		var from database.AccountID
		if len(tx.Inputs) > 0 {
			var err error
			if from, err = tx.FromAccount(); err != nil {
				return fmt.Errorf("tx %s: %w: %w", txID, ErrNotOwner, err)
			}
		}

		for i := 0; i*InputChunkSize < len(tx.Inputs); i++ {
			end := min((i+1)*InputChunkSize, len(tx.Inputs))
			child := newInputListTask(self, db, txID, from, i, tx.Inputs[i*InputChunkSize:end], txBatch)
			if err := fork(w, child); err != nil {
				return err
			}
		}

		for i := 0; i*OutputChunkSize < len(tx.Outputs); i++ {
			end := min((i+1)*OutputChunkSize, len(tx.Outputs))
			child := newOutputListTask(self, txID, i, tx.Outputs[i*OutputChunkSize:end], txBatch)
			if err := fork(w, child); err != nil {
				return err
			}
		}

		return nil
	}

	return scheduler.NewTask("tx:"+txID, nil, fn)
}

// newOutputListTask stages a new unclaimed record for every output in the
// chunk. Output indexes continue across chunks.
func newOutputListTask(parent *scheduler.Task, txID string, chunk int, outputs []database.Output, txBatch *storage.WriteBatch) *scheduler.Task {
	fn := func(w *scheduler.Worker, self *scheduler.Task) error {
		batch := storage.NewWriteBatch()

		for i, out := range outputs {
			index := uint32(chunk*OutputChunkSize + i)
			if err := batch.PutUnclaimed(database.NewUnclaimedTx(txID, index, out)); err != nil {
				return fmt.Errorf("output %d of %s: %w", index, txID, err)
			}
		}

		txBatch.Merge(batch)
		return nil
	}

	return scheduler.NewTask(fmt.Sprintf("outputs:%s:%d", txID, chunk), parent, fn)
}

// newInputListTask stages the removal of the unclaimed record every input in
// the chunk spends. An input that references a record which isn't unclaimed
// or isn't owned by the signer fails the task.
func newInputListTask(parent *scheduler.Task, db Reader, txID string, from database.AccountID, chunk int, inputs []database.Input, txBatch *storage.WriteBatch) *scheduler.Task {
	fn := func(w *scheduler.Worker, self *scheduler.Task) error {
		batch := storage.NewWriteBatch()

		for _, in := range inputs {
			u, err := db.GetUnclaimed(in.UnclaimedHash)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("input %s of %s: %w", in.UnclaimedHash, txID, ErrMissingInput)
				}
				return fmt.Errorf("input %s of %s: %w", in.UnclaimedHash, txID, err)
			}

			if !u.User.Equal(from) {
				return fmt.Errorf("input %s of %s: %w: owned by %s, signed by %s", in.UnclaimedHash, txID, ErrNotOwner, u.User, from)
			}

			batch.DeleteUnclaimed(in.UnclaimedHash)
		}

		txBatch.Merge(batch)
		return nil
	}

	return scheduler.NewTask(fmt.Sprintf("inputs:%s:%d", txID, chunk), parent, fn)
}

// fork schedules the child on the running worker. A child that can't be
// scheduled is failed and finished so its parent still completes.
func fork(w *scheduler.Worker, child *scheduler.Task) error {
	if err := w.Schedule(child); err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrScheduling, child.Name(), err)
		child.Fail(err)
		return err
	}

	return nil
}
