// Package commit turns a decided block into storage mutations. Every
// transaction is processed by a tree of tasks on the scheduler and the
// resulting batches are composed into one block level batch that is written
// atomically.
package commit

import (
	"context"
	"errors"
	"fmt"

	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/scheduler"
	"github.com/quorumchain/node/foundation/blockchain/storage"
)

// Set of errors a commit can fail with.
var (
	ErrScheduling   = errors.New("commit: scheduling failure")
	ErrStorageWrite = errors.New("commit: storage write failure")
	ErrMissingInput = errors.New("commit: input is not unclaimed")
	ErrNotOwner     = errors.New("commit: input is not owned by the signer")
)

// Store represents the storage a committer reads from and writes to.
type Store interface {
	Reader
	Commit(wb *storage.WriteBatch) error
}

// EventHandler defines a function that is called when events occur.
type EventHandler func(v string, args ...any)

// Committer applies blocks to storage.
type Committer struct {
	engine    *scheduler.Engine
	store     Store
	evHandler EventHandler
}

// New constructs a committer.
func New(engine *scheduler.Engine, store Store, evHandler EventHandler) *Committer {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	return &Committer{
		engine:    engine,
		store:     store,
		evHandler: ev,
	}
}

// Stage processes every transaction of the block on the task engine and
// returns the block level batch. The batch also records the block itself and
// moves the chain head to it. Nothing is written.
func (c *Committer) Stage(ctx context.Context, block database.Block) (*storage.WriteBatch, error) {
	roots := make([]*scheduler.Task, len(block.Trans))
	batches := make([]*storage.WriteBatch, len(block.Trans))

	for i, tx := range block.Trans {
		batches[i] = storage.NewWriteBatch()
		roots[i] = NewTransactionTask(c.store, tx, batches[i])

		if err := c.engine.Submit(roots[i]); err != nil {
			return nil, fmt.Errorf("%w: tx %s: %w", ErrScheduling, tx.ID(), err)
		}
	}

	for i, root := range roots {
		if err := root.Wait(ctx); err != nil {
			return nil, fmt.Errorf("tx %s: %w", block.Trans[i].ID(), err)
		}
	}

	// Transaction batches are composed in block order.
	blockBatch := storage.NewWriteBatch()
	for _, batch := range batches {
		blockBatch.Merge(batch)
	}

	if err := blockBatch.PutBlock(block); err != nil {
		return nil, fmt.Errorf("staging block: %w", err)
	}
	blockBatch.SetHead(block.Hash())

	return blockBatch, nil
}

// Apply stages the block and writes the block level batch to storage as one
// atomic write. Either the block, its records and the new head all become
// visible or nothing does.
func (c *Committer) Apply(ctx context.Context, block database.Block) error {
	c.evHandler("commit: Apply: started: blk[%d] trans[%d]", block.Header.Height, len(block.Trans))
	defer c.evHandler("commit: Apply: completed: blk[%d]", block.Header.Height)

	wb, err := c.Stage(ctx, block)
	if err != nil {
		c.evHandler("commit: Apply: ERROR: %s", err)
		return err
	}

	if err := c.store.Commit(wb); err != nil {
		c.evHandler("commit: Apply: ERROR: write of %d ops: %s", wb.Len(), err)
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}

	c.evHandler("commit: Apply: wrote %d ops, %d bytes", wb.Len(), wb.Size())

	return nil
}
