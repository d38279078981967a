package consensus

import (
	"context"
	"fmt"
)

// Node pairs the proposer and acceptor of the local node and routes inbound
// messages to the one that handles them.
type Node struct {
	Proposer *Proposer
	Acceptor *Acceptor
}

// Deliver routes a message received from a peer.
func (n *Node) Deliver(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MsgPrepare:
		return n.Acceptor.OnPrepare(ctx, msg)

	case MsgCommit:
		return n.Acceptor.OnCommit(ctx, msg)

	case MsgDecided:
		return n.Acceptor.OnDecided(ctx, msg)

	case MsgPromise, MsgAccept, MsgReject:
		n.Proposer.Vote(msg)
		return nil
	}

	return fmt.Errorf("%w: unknown type %d", ErrInvalidMessage, msg.Type)
}
