// Package consensus implements the two phase agreement nodes run before a
// block is committed. A proposer collects a majority of promises for its
// proposal (prepare) and then a majority of accepts (commit) before it
// applies the block and tells its peers the block is decided.
package consensus

import (
	"errors"
	"fmt"

	"github.com/quorumchain/node/foundation/blockchain/database"
)

// Set of errors a round can end with.
var (
	ErrAlreadyActive  = errors.New("consensus: a proposal is already active")
	ErrPhaseTimedOut  = errors.New("consensus: phase timed out")
	ErrPhaseRejected  = errors.New("consensus: phase rejected")
	ErrRoundAborted   = errors.New("consensus: round aborted")
	ErrShutdown       = errors.New("consensus: proposer is shut down")
	ErrInvalidMessage = errors.New("consensus: invalid message")
	ErrUnknownNode    = errors.New("consensus: message from unknown node")
)

// EventHandler defines a function that is called when events occur in the
// processing of consensus rounds.
type EventHandler func(v string, args ...any)

// Phase identifies the step of a round.
type Phase uint8

// Set of phases a round moves through.
const (
	PhaseQueued Phase = iota
	PhasePrepare
	PhaseCommit
)

// String implements the fmt.Stringer interface.
func (p Phase) String() string {
	switch p {
	case PhaseQueued:
		return "queued"
	case PhasePrepare:
		return "prepare"
	case PhaseCommit:
		return "commit"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// =============================================================================

// Proposal is a candidate block and the node proposing it. It is a value
// type and never changes after construction. Two proposals are equal when
// all their fields are equal.
type Proposal struct {
	TimeStamp  uint64          `json:"timestamp"`
	Height     uint64          `json:"height"`
	BlockHash  string          `json:"block_hash"`
	PrevHash   string          `json:"prev_hash"`
	ProposerID database.NodeID `json:"proposer"`
}

// NewProposal constructs the proposal for the block.
func NewProposal(block database.Block) Proposal {
	return Proposal{
		TimeStamp:  block.Header.TimeStamp,
		Height:     block.Header.Height,
		BlockHash:  block.Hash(),
		PrevHash:   block.Header.PrevBlockHash,
		ProposerID: block.Header.ProposerID,
	}
}

// Matches reports whether the block is the one this proposal is for.
func (p Proposal) Matches(block database.Block) bool {
	return p == NewProposal(block)
}

// String implements the fmt.Stringer interface for logging.
func (p Proposal) String() string {
	hash := p.BlockHash
	if len(hash) > 10 {
		hash = hash[:10]
	}
	return fmt.Sprintf("blk[%d]:%s:%s", p.Height, hash, p.ProposerID)
}
