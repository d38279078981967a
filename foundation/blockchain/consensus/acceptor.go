package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quorumchain/node/foundation/blockchain/database"
)

// Chain provides the view of the local chain the acceptor validates
// proposals against.
type Chain interface {
	Head() (database.Block, error)
	HasBlock(hash string) (bool, error)
}

// AcceptorConfig represents the configuration required to construct an
// acceptor.
type AcceptorConfig struct {
	Identity     Identity
	Transport    Transport
	Chain        Chain
	Committer    Applier
	PhaseTimeout time.Duration
	OnApplied    func(database.Block)
	EvHandler    EventHandler

	// Member reports whether the node is a known peer reachable at host.
	// Messages from anyone else are dropped. Nil accepts every verified
	// message.
	Member func(ctx context.Context, from database.NodeID, host string) bool
}

// promise records the proposal this node promised at a height.
type promise struct {
	proposal Proposal
	accepted bool
	at       time.Time
}

// Acceptor answers the proposals of other nodes. It promises at most one
// proposal per height until that promise expires and it only accepts the
// commit of the proposal it promised.
type Acceptor struct {
	cfg      AcceptorConfig
	mu       sync.Mutex
	promises map[uint64]promise
}

// NewAcceptor constructs an acceptor.
func NewAcceptor(cfg AcceptorConfig) *Acceptor {
	if cfg.PhaseTimeout <= 0 {
		cfg.PhaseTimeout = DefaultPhaseTimeout
	}

	ev := cfg.EvHandler
	cfg.EvHandler = func(v string, args ...any) {
		if ev != nil {
			ev(v, args...)
		}
	}

	return &Acceptor{
		cfg:      cfg,
		promises: make(map[uint64]promise),
	}
}

// OnPrepare answers a prepare with a promise or a rejection.
func (a *Acceptor) OnPrepare(ctx context.Context, msg Message) error {
	if err := a.check(ctx, msg); err != nil {
		return err
	}

	if msg.Block == nil {
		return fmt.Errorf("%w: prepare from %s carries no block", ErrInvalidMessage, msg.From)
	}

	reply := MsgPromise
	if err := a.promise(msg.Proposal, *msg.Block); err != nil {
		a.cfg.EvHandler("consensus: acceptor: prepare rejected: %s: %s", msg.Proposal, err)
		reply = MsgReject
	}

	return a.reply(ctx, msg, reply, PhasePrepare)
}

// OnCommit answers a commit with an accept or a rejection.
func (a *Acceptor) OnCommit(ctx context.Context, msg Message) error {
	if err := a.check(ctx, msg); err != nil {
		return err
	}

	reply := MsgAccept
	if err := a.accept(msg.Proposal); err != nil {
		a.cfg.EvHandler("consensus: acceptor: commit rejected: %s: %s", msg.Proposal, err)
		reply = MsgReject
	}

	return a.reply(ctx, msg, reply, PhaseCommit)
}

// OnDecided applies a block a majority accepted.
func (a *Acceptor) OnDecided(ctx context.Context, msg Message) error {
	if err := a.check(ctx, msg); err != nil {
		return err
	}

	if msg.Block == nil {
		return fmt.Errorf("%w: decided from %s carries no block", ErrInvalidMessage, msg.From)
	}
	block := *msg.Block

	exists, err := a.cfg.Chain.HasBlock(msg.Proposal.BlockHash)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	head, err := a.cfg.Chain.Head()
	if err != nil {
		return fmt.Errorf("reading head: %w", err)
	}

	if err := block.ValidateNext(head); err != nil {
		return fmt.Errorf("decided %s: %w", msg.Proposal, err)
	}

	if err := a.cfg.Committer.Apply(ctx, block); err != nil {
		return fmt.Errorf("applying decided %s: %w", msg.Proposal, err)
	}

	a.forget(block.Header.Height)

	if a.cfg.OnApplied != nil {
		a.cfg.OnApplied(block)
	}

	a.cfg.EvHandler("consensus: acceptor: decided block applied: %s", msg.Proposal)

	return nil
}

// =============================================================================
// These methods implement the LocalAcceptor interface.

// PromiseLocal records a promise for a proposal made by this node.
func (a *Acceptor) PromiseLocal(p Proposal, block database.Block) error {
	return a.promise(p, block)
}

// AcceptLocal records the accept of a proposal made by this node.
func (a *Acceptor) AcceptLocal(p Proposal) error {
	return a.accept(p)
}

// =============================================================================

// check verifies the signature and that the sender is a known peer.
func (a *Acceptor) check(ctx context.Context, msg Message) error {
	if err := msg.Verify(); err != nil {
		return err
	}

	if a.cfg.Member != nil && !a.cfg.Member(ctx, msg.From, msg.Host) {
		return fmt.Errorf("%w: %s from %s at %s", ErrUnknownNode, msg.Type, msg.From, msg.Host)
	}

	return nil
}

// promise applies the promise rules: the block extends the local head and
// no other live promise exists at that height.
func (a *Acceptor) promise(p Proposal, block database.Block) error {
	if !p.Matches(block) {
		return errors.New("block does not match proposal")
	}

	head, err := a.cfg.Chain.Head()
	if err != nil {
		return fmt.Errorf("reading head: %w", err)
	}

	if err := block.ValidateNext(head); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.prune(head.Header.Height)

	if cur, exists := a.promises[p.Height]; exists && cur.proposal != p && !a.expired(cur) {
		return fmt.Errorf("already promised %s", cur.proposal)
	}

	a.promises[p.Height] = promise{
		proposal: p,
		at:       time.Now(),
	}

	return nil
}

// accept applies the accept rule: the proposal is the one promised.
func (a *Acceptor) accept(p Proposal) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, exists := a.promises[p.Height]
	if !exists {
		return errors.New("no promise at height")
	}

	if cur.proposal != p {
		return fmt.Errorf("promised %s", cur.proposal)
	}

	cur.accepted = true
	cur.at = time.Now()
	a.promises[p.Height] = cur

	return nil
}

// forget drops the promise at a height once its block is applied.
func (a *Acceptor) forget(height uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.promises, height)
}

// expired reports whether the round behind a promise must have ended. An
// accepted promise may still be waiting on the decided message.
func (a *Acceptor) expired(pr promise) bool {
	limit := a.cfg.PhaseTimeout
	if pr.accepted {
		limit *= 2
	}
	return time.Since(pr.at) > limit
}

// prune drops promises for heights already on the chain.
func (a *Acceptor) prune(head uint64) {
	for height := range a.promises {
		if height <= head {
			delete(a.promises, height)
		}
	}
}

// reply signs the answer and sends it to the node that asked.
func (a *Acceptor) reply(ctx context.Context, msg Message, typ MessageType, phase Phase) error {
	out, err := a.cfg.Identity.NewMessage(typ, phase, msg.Proposal, nil)
	if err != nil {
		return err
	}

	if err := a.cfg.Transport.Send(ctx, msg.Host, out); err != nil {
		return fmt.Errorf("sending %s to %s: %w", typ, msg.Host, err)
	}

	return nil
}
