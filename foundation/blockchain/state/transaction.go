package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/quorumchain/node/foundation/blockchain/commit"
	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/storage"
)

// UpsertWalletTransaction accepts a transaction from a user for inclusion in
// a block and shares it with the known peers.
func (s *State) UpsertWalletTransaction(tx database.SignedTx) error {
	added, err := s.upsertTransaction(tx)
	if err != nil {
		return err
	}

	if added {
		s.worker.signalShareTx(tx)
	}

	return nil
}

// UpsertNodeTransaction accepts a transaction shared by a peer. It is not
// shared again.
func (s *State) UpsertNodeTransaction(tx database.SignedTx) error {
	_, err := s.upsertTransaction(tx)
	return err
}

// upsertTransaction validates the transaction against the local chain and
// adds it to the mempool. Every transaction entering the mempool must be
// signed, even one that only creates records.
func (s *State) upsertTransaction(tx database.SignedTx) (bool, error) {
	if err := tx.Validate(); err != nil {
		return false, err
	}

	if _, err := tx.FromAccount(); err != nil {
		return false, err
	}

	if err := s.checkInputs(tx); err != nil {
		return false, err
	}

	n, added := s.mempool.Upsert(tx)
	s.evHandler("state: upsertTransaction: %s: added[%v] mempool[%d]", tx, added, n)

	return added, nil
}

// checkInputs makes sure every input of the transaction is still unclaimed
// and owned by the account that signed the transaction.
func (s *State) checkInputs(tx database.SignedTx) error {
	if len(tx.Inputs) == 0 {
		return nil
	}

	from, err := tx.FromAccount()
	if err != nil {
		return fmt.Errorf("%w: %w", commit.ErrNotOwner, err)
	}

	for _, in := range tx.Inputs {
		u, err := s.storage.GetUnclaimed(in.UnclaimedHash)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %s", commit.ErrMissingInput, in.UnclaimedHash)
			}
			return err
		}

		if !u.User.Equal(from) {
			return fmt.Errorf("%w: %s is owned by %s, signed by %s", commit.ErrNotOwner, in.UnclaimedHash, u.User, from)
		}
	}

	return nil
}

// =============================================================================

// ProposeBlock takes the best transactions from the mempool, builds the
// block that extends the local head and runs a consensus round for it. It
// returns once the round ends. A nil error means the block is committed.
func (s *State) ProposeBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: ProposeBlock: started")
	defer s.evHandler("state: ProposeBlock: completed")

	var trans []database.SignedTx
	for _, tx := range s.mempool.PickBest(s.maxTxPerBlock) {

		// A transaction whose input was claimed by a block applied after it
		// entered the mempool can never commit.
		if err := s.checkInputs(tx); err != nil {
			s.evHandler("state: ProposeBlock: dropping %s: %s", tx, err)
			s.mempool.Delete(tx)
			continue
		}
		trans = append(trans, tx)
	}

	if len(trans) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	// Peers that never reported their node id can't vote in the round.
	s.resolvePeers(ctx)

	head, err := s.storage.Head()
	if err != nil {
		return database.Block{}, fmt.Errorf("reading head: %w", err)
	}

	block, err := database.NewBlock(s.identity.NodeID, head.Header, head.Hash(), trans)
	if err != nil {
		return database.Block{}, err
	}

	s.evHandler("state: ProposeBlock: blk[%d] trans[%d]", block.Header.Height, len(trans))

	if err := s.node.Load().Proposer.Propose(ctx, block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}
