package state

import (
	"github.com/quorumchain/node/foundation/blockchain/consensus"
	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/genesis"
	"github.com/quorumchain/node/foundation/blockchain/peer"
	"github.com/quorumchain/node/foundation/blockchain/scheduler"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// =============================================================================

// Host returns the address peers reach this node on.
func (s *State) Host() string {
	return s.host
}

// NodeID returns the id this node signs consensus messages with.
func (s *State) NodeID() database.NodeID {
	return s.identity.NodeID
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// LatestBlock returns the block at the head of the chain.
func (s *State) LatestBlock() (database.Block, error) {
	return s.storage.Head()
}

// KnownPeers retrieves a copy of the known peer list, not including this node.
func (s *State) KnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// AddKnownPeer provides the ability to add a new peer to the known peer list.
func (s *State) AddKnownPeer(p peer.Peer) bool {
	return s.knownPeers.Add(p)
}

// Status returns what this node reports about itself.
func (s *State) Status() (peer.Status, error) {
	head, err := s.storage.Head()
	if err != nil {
		return peer.Status{}, err
	}

	status := peer.Status{
		NodeID:            string(s.identity.NodeID),
		LatestBlockHash:   head.Hash(),
		LatestBlockHeight: head.Header.Height,
		KnownPeers:        s.KnownPeers(),
	}

	return status, nil
}

// =============================================================================

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryMempool returns a copy of the mempool in proposal order.
func (s *State) QueryMempool() []database.SignedTx {
	return s.mempool.PickBest(-1)
}

// QueryBlockByHash returns the block with the specified hash.
func (s *State) QueryBlockByHash(hash string) (database.Block, error) {
	return s.storage.GetBlock(hash)
}

// QueryBlocksByHeight returns the set of blocks based on block heights.
func (s *State) QueryBlocksByHeight(from uint64, to uint64) ([]database.Block, error) {
	if from == QueryLatest || to == QueryLatest {
		head, err := s.storage.Head()
		if err != nil {
			return nil, err
		}

		if from == QueryLatest {
			from = head.Header.Height
		}
		if to == QueryLatest {
			to = head.Header.Height
		}
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		block, err := s.storage.GetBlockByHeight(i)
		if err != nil {
			return nil, err
		}
		out = append(out, block)
	}

	return out, nil
}

// QueryUnclaimed returns the unclaimed records paid to the user. An empty
// user returns every record.
func (s *State) QueryUnclaimed(user database.AccountID) ([]database.UnclaimedTx, error) {
	return s.storage.QueryUnclaimed(user)
}

// =============================================================================

// EngineStats returns the counters of every task engine worker.
func (s *State) EngineStats() []scheduler.Stats {
	return s.engine.Stats()
}

// ProposerStatus returns a snapshot of the local proposer.
func (s *State) ProposerStatus() consensus.ProposerStatus {
	return s.node.Load().Proposer.Status()
}
