package consensus

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/signature"
)

// MessageType identifies a consensus message.
type MessageType uint8

// Set of consensus messages.
const (
	MsgPrepare MessageType = iota + 1
	MsgPromise
	MsgReject
	MsgCommit
	MsgAccept
	MsgDecided
)

// String implements the fmt.Stringer interface.
func (mt MessageType) String() string {
	switch mt {
	case MsgPrepare:
		return "prepare"
	case MsgPromise:
		return "promise"
	case MsgReject:
		return "reject"
	case MsgCommit:
		return "commit"
	case MsgAccept:
		return "accept"
	case MsgDecided:
		return "decided"
	}
	return fmt.Sprintf("message(%d)", uint8(mt))
}

// Message is what nodes exchange during a round. Prepare and decided
// messages carry the candidate block. Every message is signed by the node
// that sent it.
type Message struct {
	Type      MessageType     `json:"type"`
	Phase     Phase           `json:"phase"`
	Proposal  Proposal        `json:"proposal"`
	Block     *database.Block `json:"block,omitempty"`
	From      database.NodeID `json:"from"`
	Host      string          `json:"host"`
	Signature string          `json:"sig"`
}

// signedFields is the part of the message covered by the signature. The
// block is tied in through the proposal's block hash.
type signedFields struct {
	Type     MessageType     `json:"type"`
	Phase    Phase           `json:"phase"`
	Proposal Proposal        `json:"proposal"`
	From     database.NodeID `json:"from"`
	Host     string          `json:"host"`
}

func (m Message) signedFields() signedFields {
	return signedFields{
		Type:     m.Type,
		Phase:    m.Phase,
		Proposal: m.Proposal,
		From:     m.From,
		Host:     m.Host,
	}
}

// Verify checks the message was signed by the node it claims to be from and
// that a carried block is the one proposed.
func (m Message) Verify() error {
	if err := signature.Verify(m.signedFields(), m.Signature, string(m.From)); err != nil {
		return fmt.Errorf("%w: %s from %s: %w", ErrInvalidMessage, m.Type, m.From, err)
	}

	if m.Block != nil && !m.Proposal.Matches(*m.Block) {
		return fmt.Errorf("%w: %s from %s: block does not match proposal", ErrInvalidMessage, m.Type, m.From)
	}

	return nil
}

// String implements the fmt.Stringer interface for logging.
func (m Message) String() string {
	return fmt.Sprintf("%s:%s:%s", m.Type, m.Phase, m.Proposal)
}

// =============================================================================

// Transport delivers consensus messages to other nodes.
type Transport interface {
	Broadcast(ctx context.Context, msg Message)
	Send(ctx context.Context, host string, msg Message) error
}

// Identity is the key and address a node signs its messages with.
type Identity struct {
	NodeID     database.NodeID
	Host       string
	privateKey *ecdsa.PrivateKey
}

// NewIdentity constructs the identity for the node key listening on host.
func NewIdentity(privateKey *ecdsa.PrivateKey, host string) Identity {
	return Identity{
		NodeID:     database.PublicKeyToNodeID(privateKey.PublicKey),
		Host:       host,
		privateKey: privateKey,
	}
}

// NewMessage constructs and signs a message.
func (id Identity) NewMessage(typ MessageType, phase Phase, p Proposal, block *database.Block) (Message, error) {
	msg := Message{
		Type:     typ,
		Phase:    phase,
		Proposal: p,
		Block:    block,
		From:     id.NodeID,
		Host:     id.Host,
	}

	sig, err := signature.Sign(msg.signedFields(), id.privateKey)
	if err != nil {
		return Message{}, fmt.Errorf("signing %s: %w", typ, err)
	}
	msg.Signature = sig

	return msg, nil
}
