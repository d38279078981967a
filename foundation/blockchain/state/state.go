// Package state is the core API for the node. It wires the storage, the task
// engine, consensus and the peer transport together and owns the background
// workflows.
package state

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/quorumchain/node/foundation/blockchain/commit"
	"github.com/quorumchain/node/foundation/blockchain/consensus"
	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/genesis"
	"github.com/quorumchain/node/foundation/blockchain/mempool"
	"github.com/quorumchain/node/foundation/blockchain/mempool/selector"
	"github.com/quorumchain/node/foundation/blockchain/p2p"
	"github.com/quorumchain/node/foundation/blockchain/peer"
	"github.com/quorumchain/node/foundation/blockchain/scheduler"
	"github.com/quorumchain/node/foundation/blockchain/storage"
)

// ErrNoTransactions is returned when a block is requested and there are no
// transactions in the mempool.
var ErrNoTransactions = errors.New("no transactions in mempool")

// EventHandler defines a function that is called when events
// occur in the processing of blocks.
type EventHandler func(v string, args ...any)

// =============================================================================

// Config represents the configuration required to start the blockchain node.
type Config struct {
	PrivateKey            *ecdsa.PrivateKey
	Host                  string // Address peers reach this node's transport on.
	P2PBind               string // Address the transport listens on.
	DBPath                string // Empty runs the node on an in-memory store.
	Genesis               genesis.Genesis
	SelectStrategy        string
	MaxTxPerBlock         int
	KnownPeers            *peer.Set
	ProposalCycle         time.Duration // Zero turns off the proposal workflow.
	PeerCycle             time.Duration // Zero turns off the peer discovery workflow.
	Workers               int
	QueueCapacity         int
	PhaseTimeout          time.Duration
	FatalOnStorageFailure bool
	Fatal                 func(error)
	EvHandler             EventHandler
}

// State manages the blockchain node.
type State struct {
	identity      consensus.Identity
	host          string
	evHandler     EventHandler
	maxTxPerBlock int

	genesis    genesis.Genesis
	knownPeers *peer.Set
	mempool    *mempool.Mempool
	storage    *storage.Storage
	engine     *scheduler.Engine
	committer  *commit.Committer
	transport  *p2p.Transport
	node       atomic.Pointer[consensus.Node]

	worker *worker
}

// New constructs the node, applies the genesis block on an empty store and
// starts the background workflows.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.PrivateKey == nil {
		return nil, errors.New("state: private key is required")
	}

	if cfg.KnownPeers == nil {
		cfg.KnownPeers = peer.NewSet()
	}

	if cfg.SelectStrategy == "" {
		cfg.SelectStrategy = selector.StrategyOldest
	}

	if cfg.MaxTxPerBlock <= 0 {
		cfg.MaxTxPerBlock = int(cfg.Genesis.TransPerBlock)
	}
	if cfg.MaxTxPerBlock <= 0 {
		cfg.MaxTxPerBlock = -1
	}

	// Construct a mempool with the specified select strategy.
	mp, err := mempool.NewWithStrategy(cfg.SelectStrategy)
	if err != nil {
		return nil, err
	}

	// Access the storage for the blockchain.
	var strg *storage.Storage
	switch cfg.DBPath {
	case "":
		strg, err = storage.OpenMem()
	default:
		strg, err = storage.Open(cfg.DBPath)
	}
	if err != nil {
		return nil, err
	}

	engine, err := scheduler.New(scheduler.Config{
		Workers:       cfg.Workers,
		QueueCapacity: cfg.QueueCapacity,
		EvHandler:     ev,
	})
	if err != nil {
		strg.Close()
		return nil, err
	}

	s := State{
		host:          cfg.Host,
		evHandler:     ev,
		maxTxPerBlock: cfg.MaxTxPerBlock,
		genesis:       cfg.Genesis,
		knownPeers:    cfg.KnownPeers,
		mempool:       mp,
		storage:       strg,
		engine:        engine,
		committer:     commit.New(engine, strg, ev),
	}

	if err := s.applyGenesis(); err != nil {
		engine.Shutdown()
		strg.Close()
		return nil, err
	}

	transport, err := p2p.New(p2p.Config{
		Bind:        cfg.P2PBind,
		Host:        cfg.Host,
		Peers:       cfg.KnownPeers,
		OnConsensus: s.deliver,
		OnTx:        s.receiveTx,
		OnStatus:    s.Status,
		EvHandler:   ev,
	})
	if err != nil {
		engine.Shutdown()
		strg.Close()
		return nil, err
	}

	s.transport = transport
	s.host = transport.Host()
	s.identity = consensus.NewIdentity(cfg.PrivateKey, s.host)

	acceptor := consensus.NewAcceptor(consensus.AcceptorConfig{
		Identity:     s.identity,
		Transport:    transport,
		Chain:        strg,
		Committer:    s.committer,
		PhaseTimeout: cfg.PhaseTimeout,
		OnApplied:    s.onApplied,
		EvHandler:    ev,
		Member:       s.isMember,
	})

	proposer := consensus.NewProposer(consensus.ProposerConfig{
		Identity:              s.identity,
		Transport:             transport,
		Committer:             s.committer,
		Local:                 acceptor,
		Peers:                 func() int { return s.knownPeers.Count(s.host) },
		Voters:                func() []database.NodeID { return s.knownPeers.NodeIDs(s.host) },
		PhaseTimeout:          cfg.PhaseTimeout,
		FatalOnStorageFailure: cfg.FatalOnStorageFailure,
		Fatal:                 cfg.Fatal,
		OnApplied:             s.onApplied,
		EvHandler:             ev,
	})

	// Messages that arrive before this point are dropped by deliver.
	s.node.Store(&consensus.Node{
		Proposer: proposer,
		Acceptor: acceptor,
	})

	// The worker registers itself with the state and starts all the
	// background G's.
	runWorker(&s, cfg.ProposalCycle, cfg.PeerCycle, ev)

	return &s, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the database file is properly closed.
	defer func() {
		s.storage.Close()
	}()

	// Stop proposing before the consensus G's go away.
	s.worker.shutdown()
	s.node.Load().Proposer.Shutdown()
	s.transport.Close()
	s.engine.Shutdown()

	return nil
}

// =============================================================================

// applyGenesis commits the genesis block on an empty store. On a store that
// already holds a chain it checks the chain starts at the same genesis.
func (s *State) applyGenesis() error {
	block, err := s.genesis.Block()
	if err != nil {
		return fmt.Errorf("building genesis block: %w", err)
	}

	first, err := s.storage.GetBlockByHeight(0)
	switch {
	case err == nil:
		if first.Hash() != block.Hash() {
			return fmt.Errorf("stored genesis %s does not match genesis file %s", first.Hash(), block.Hash())
		}
		return nil

	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("reading genesis block: %w", err)
	}

	s.evHandler("state: applyGenesis: committing genesis block: outputs[%d]", len(s.genesis.Outputs))

	if err := s.committer.Apply(context.Background(), block); err != nil {
		return fmt.Errorf("applying genesis block: %w", err)
	}

	return nil
}

// onApplied removes the transactions of an applied block from the mempool.
func (s *State) onApplied(block database.Block) {
	for _, tx := range block.Trans {
		s.mempool.Delete(tx)
	}

	s.evHandler("state: onApplied: blk[%d]: removed %d trans from mempool, remaining %d", block.Header.Height, len(block.Trans), s.mempool.Count())
}

// deliver hands a consensus message from a peer to the local node.
func (s *State) deliver(ctx context.Context, msg consensus.Message) {
	node := s.node.Load()
	if node == nil {
		s.evHandler("state: deliver: %s: dropped: node starting", msg)
		return
	}

	if err := node.Deliver(ctx, msg); err != nil {
		s.evHandler("state: deliver: %s: ERROR: %s", msg, err)
	}
}

// receiveTx adds a transaction shared by a peer to the mempool.
func (s *State) receiveTx(ctx context.Context, tx database.SignedTx) {
	if err := s.UpsertNodeTransaction(tx); err != nil {
		s.evHandler("state: receiveTx: %s: WARNING: %s", tx, err)
	}
}
