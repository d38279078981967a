package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quorumchain/node/foundation/blockchain/commit"
	"github.com/quorumchain/node/foundation/blockchain/database"
)

// DefaultPhaseTimeout is how long a phase waits for a majority.
const DefaultPhaseTimeout = 60 * time.Second

// Applier commits a decided block to local storage.
type Applier interface {
	Apply(ctx context.Context, block database.Block) error
}

// LocalAcceptor lets the proposer cast the local node's votes through the
// same rules the node applies to proposals from its peers.
type LocalAcceptor interface {
	PromiseLocal(p Proposal, block database.Block) error
	AcceptLocal(p Proposal) error
}

// ProposerConfig represents the configuration required to start a proposer.
type ProposerConfig struct {
	Identity              Identity
	Transport             Transport
	Committer             Applier
	Local                 LocalAcceptor
	Peers                 func() int
	Voters                func() []database.NodeID
	PhaseTimeout          time.Duration
	FatalOnStorageFailure bool
	Fatal                 func(error)
	OnApplied             func(database.Block)
	EvHandler             EventHandler
}

// ProposerStatus is a snapshot of the proposer.
type ProposerStatus struct {
	Active    bool      `json:"active"`
	Phase     string    `json:"phase"`
	Proposal  *Proposal `json:"proposal,omitempty"`
	Rounds    uint64    `json:"rounds"`
	Succeeded uint64    `json:"succeeded"`
	Failed    uint64    `json:"failed"`
}

// =============================================================================

// Set of commands the proposer goroutine accepts.
type (
	startCmd struct {
		ctx   context.Context
		block database.Block
		reply chan error
		done  chan error
	}

	voteCmd struct {
		msg Message
	}

	abortCmd struct{}
)

// Proposer drives rounds for blocks this node proposes. The active round is
// owned by a single goroutine. Every interaction with it is a command sent
// over a channel, so at most one round can ever be active.
type Proposer struct {
	cfg       ProposerConfig
	cmds      chan any
	shut      chan struct{}
	shutOnce  sync.Once
	wg        sync.WaitGroup
	phase     atomic.Uint32
	proposal  atomic.Pointer[Proposal]
	rounds    atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// NewProposer constructs a proposer and starts its goroutine.
func NewProposer(cfg ProposerConfig) *Proposer {
	if cfg.PhaseTimeout <= 0 {
		cfg.PhaseTimeout = DefaultPhaseTimeout
	}

	if cfg.Peers == nil {
		cfg.Peers = func() int { return 0 }
	}

	if cfg.Fatal == nil {
		cfg.Fatal = func(err error) { panic(err) }
	}

	ev := cfg.EvHandler
	cfg.EvHandler = func(v string, args ...any) {
		if ev != nil {
			ev(v, args...)
		}
	}

	p := Proposer{
		cfg:  cfg,
		cmds: make(chan any, 64),
		shut: make(chan struct{}),
	}

	p.wg.Add(1)

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	go func() {
		defer p.wg.Done()
		hasStarted <- true
		p.run()
	}()

	<-hasStarted

	return &p
}

// Shutdown stops the proposer goroutine. An active round ends with
// ErrShutdown. It is safe to call more than once.
func (p *Proposer) Shutdown() {
	p.shutOnce.Do(func() {
		p.cfg.EvHandler("consensus: proposer: shutdown: started")
		close(p.shut)
	})

	p.wg.Wait()
	p.cfg.EvHandler("consensus: proposer: shutdown: completed")
}

// Propose runs a round for the block and blocks until the round ends. It
// returns ErrAlreadyActive when another round is in progress. A nil error
// means a majority accepted the block and it was committed locally.
// Cancelling the context aborts a round still collecting votes.
func (p *Proposer) Propose(ctx context.Context, block database.Block) error {
	if p.isShutdown() {
		return ErrShutdown
	}

	cmd := startCmd{
		ctx:   ctx,
		block: block,
		reply: make(chan error, 1),
		done:  make(chan error, 1),
	}

	select {
	case p.cmds <- cmd:
	case <-p.shut:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}

	// The command can land in the buffer after the goroutine is gone, so
	// the reply is never waited on alone.
	select {
	case err := <-cmd.reply:
		if err != nil {
			return err
		}
	case <-p.shut:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}

	// The round watches the same context and aborts itself while it is
	// still collecting votes.
	select {
	case err := <-cmd.done:
		return err
	case <-p.shut:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Vote delivers a promise, accept or reject from a peer. Messages that fail
// verification, are for another proposal or for another phase are dropped.
func (p *Proposer) Vote(msg Message) {
	if err := msg.Verify(); err != nil {
		p.cfg.EvHandler("consensus: proposer: Vote: dropped: %s", err)
		return
	}

	select {
	case p.cmds <- voteCmd{msg: msg}:
	case <-p.shut:
	}
}

// Abort ends a round that is still collecting votes. A round that already
// started committing runs to completion.
func (p *Proposer) Abort() {
	select {
	case p.cmds <- abortCmd{}:
	case <-p.shut:
	}
}

// Status returns a snapshot of the proposer.
func (p *Proposer) Status() ProposerStatus {
	phase := Phase(p.phase.Load())

	return ProposerStatus{
		Active:    phase != PhaseQueued,
		Phase:     phase.String(),
		Proposal:  p.proposal.Load(),
		Rounds:    p.rounds.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
	}
}

// isShutdown reports whether Shutdown was called.
func (p *Proposer) isShutdown() bool {
	select {
	case <-p.shut:
		return true
	default:
		return false
	}
}

// =============================================================================

// run is the proposer goroutine. Rounds execute here one at a time.
func (p *Proposer) run() {
	for {
		select {
		case <-p.shut:
			return

		case cmd := <-p.cmds:
			switch c := cmd.(type) {
			case startCmd:
				if err := c.ctx.Err(); err != nil {
					c.reply <- err
					continue
				}
				c.reply <- nil

				err := p.runRound(c.ctx, c.block)
				p.endRound(err)
				c.done <- err

			case voteCmd:
				p.cfg.EvHandler("consensus: proposer: vote dropped, no active round: %s from %s", c.msg, c.msg.From)
			}
		}
	}
}

// runRound moves a single proposal through both phases and the commit.
func (p *Proposer) runRound(ctx context.Context, block database.Block) error {
	prop := NewProposal(block)

	p.rounds.Add(1)
	p.proposal.Store(&prop)

	p.cfg.EvHandler("consensus: round: started: %s", prop)

	// Phase 1: collect promises.
	p.phase.Store(uint32(PhasePrepare))

	q1 := NewPhase1Quorum(p.cfg.Peers()+1, p.cfg.PhaseTimeout)
	defer q1.Stop()
	p.restrict(&q1.tally)

	if p.cfg.Local != nil {
		if err := p.cfg.Local.PromiseLocal(prop, block); err != nil {
			return fmt.Errorf("%w: %s: local node: %w", ErrPhaseRejected, PhasePrepare, err)
		}
	}

	if err := p.broadcast(MsgPrepare, PhasePrepare, prop, &block); err != nil {
		return err
	}
	q1.Promise(p.cfg.Identity.NodeID)

	if err := p.await(ctx, prop, &q1.tally, MsgPromise, q1.Promise); err != nil {
		return err
	}

	// Phase 2: collect accepts.
	p.phase.Store(uint32(PhaseCommit))

	q2 := NewPhase2Quorum(p.cfg.Peers()+1, p.cfg.PhaseTimeout)
	defer q2.Stop()
	p.restrict(&q2.tally)

	if p.cfg.Local != nil {
		if err := p.cfg.Local.AcceptLocal(prop); err != nil {
			return fmt.Errorf("%w: %s: local node: %w", ErrPhaseRejected, PhaseCommit, err)
		}
	}

	if err := p.broadcast(MsgCommit, PhaseCommit, prop, nil); err != nil {
		return err
	}
	q2.Accept(p.cfg.Identity.NodeID)

	if err := p.await(ctx, prop, &q2.tally, MsgAccept, q2.Accept); err != nil {
		return err
	}

	// The block is decided. Commit it locally before telling the peers.
	if err := p.commit(block); err != nil {
		return err
	}

	if p.cfg.OnApplied != nil {
		p.cfg.OnApplied(block)
	}

	if err := p.broadcast(MsgDecided, PhaseCommit, prop, &block); err != nil {
		p.cfg.EvHandler("consensus: round: WARNING: %s", err)
	}

	return nil
}

// restrict snapshots the nodes allowed to vote in the phase: the local node
// and every peer whose node id is known. Without a voter source any verified
// vote counts.
func (p *Proposer) restrict(t *tally) {
	if p.cfg.Voters == nil {
		return
	}

	voters := append(p.cfg.Voters(), p.cfg.Identity.NodeID)
	t.Restrict(voters)
}

// await blocks until the tally resolves or the phase timer fires. Votes for
// the active proposal and phase are counted, everything else is dropped.
func (p *Proposer) await(ctx context.Context, prop Proposal, t *tally, yesType MessageType, yes func(database.NodeID) bool) error {
	for {
		res := t.Result()
		switch res.Status {
		case StatusAccepted:
			p.cfg.EvHandler("consensus: round: %s: accepted: %d/%d votes", t.Phase(), res.Accepted, res.Required)
			return nil

		case StatusRejected:
			p.cfg.EvHandler("consensus: round: %s: rejected: %d/%d votes", t.Phase(), res.Rejected, res.Required)
			return fmt.Errorf("%w: %s: %d of %d required rejected", ErrPhaseRejected, t.Phase(), res.Rejected, res.Required)
		}

		select {
		case <-p.shut:
			return ErrShutdown

		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrRoundAborted, t.Phase(), ctx.Err())

		case <-t.Expired():

			// A vote counted in the same instant the timer fired still wins.
			if t.Result().Status != StatusUnknown {
				continue
			}

			p.cfg.EvHandler("consensus: round: %s: timed out: %d/%d votes", t.Phase(), res.Accepted, res.Required)
			return fmt.Errorf("%w: %s: %d of %d required votes", ErrPhaseTimedOut, t.Phase(), res.Accepted, res.Required)

		case cmd := <-p.cmds:
			switch c := cmd.(type) {
			case startCmd:
				c.reply <- ErrAlreadyActive

			case abortCmd:
				return fmt.Errorf("%w: %s", ErrRoundAborted, t.Phase())

			case voteCmd:
				msg := c.msg
				switch {
				case msg.Proposal != prop:
					p.cfg.EvHandler("consensus: round: stale vote dropped: %s from %s", msg, msg.From)

				case !t.Member(msg.From):
					p.cfg.EvHandler("consensus: round: unknown voter dropped: %s from %s", msg, msg.From)

				case msg.Type == yesType:
					if !yes(msg.From) {
						p.cfg.EvHandler("consensus: round: duplicate vote dropped: %s from %s", msg, msg.From)
					}

				case msg.Type == MsgReject && msg.Phase == t.Phase():
					if !t.Reject(msg.From) {
						p.cfg.EvHandler("consensus: round: duplicate vote dropped: %s from %s", msg, msg.From)
					}

				default:
					p.cfg.EvHandler("consensus: round: wrong phase vote dropped: %s from %s", msg, msg.From)
				}
			}
		}
	}
}

// commit applies the block while still answering commands. The commit can't
// be aborted once started.
func (p *Proposer) commit(block database.Block) error {
	done := make(chan error, 1)
	go func() {
		done <- p.cfg.Committer.Apply(context.Background(), block)
	}()

	for {
		select {
		case err := <-done:
			if err == nil {
				return nil
			}

			if errors.Is(err, commit.ErrStorageWrite) && p.cfg.FatalOnStorageFailure {
				p.cfg.EvHandler("consensus: round: FATAL: %s", err)
				p.cfg.Fatal(err)
			}
			return err

		case <-p.shut:
			return ErrShutdown

		case cmd := <-p.cmds:
			if c, ok := cmd.(startCmd); ok {
				c.reply <- ErrAlreadyActive
			}
		}
	}
}

// endRound releases the active round regardless of outcome.
func (p *Proposer) endRound(err error) {
	prop := p.proposal.Load()

	p.phase.Store(uint32(PhaseQueued))
	p.proposal.Store(nil)

	if err != nil {
		p.failed.Add(1)
		p.cfg.EvHandler("consensus: round: completed: %s: ERROR: %s", prop, err)
		return
	}

	p.succeeded.Add(1)
	p.cfg.EvHandler("consensus: round: completed: %s: committed", prop)
}

// broadcast signs and sends a message to every peer.
func (p *Proposer) broadcast(typ MessageType, phase Phase, prop Proposal, block *database.Block) error {
	msg, err := p.cfg.Identity.NewMessage(typ, phase, prop, block)
	if err != nil {
		return err
	}

	if p.cfg.Transport != nil {
		p.cfg.Transport.Broadcast(context.Background(), msg)
	}

	return nil
}
