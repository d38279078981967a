package consensus_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quorumchain/node/foundation/blockchain/consensus"
	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/storage"
)

// memNetwork connects in process nodes.
type memNetwork struct {
	mu    sync.RWMutex
	nodes map[string]*consensus.Node
}

func (mn *memNetwork) lookup(host string) *consensus.Node {
	mn.mu.RLock()
	defer mn.mu.RUnlock()

	return mn.nodes[host]
}

func (mn *memNetwork) hosts() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()

	hosts := make([]string, 0, len(mn.nodes))
	for host := range mn.nodes {
		hosts = append(hosts, host)
	}
	return hosts
}

// memTransport delivers messages on their own goroutine like a network
// would.
type memTransport struct {
	net  *memNetwork
	host string
}

func (mt memTransport) Broadcast(ctx context.Context, msg consensus.Message) {
	for _, host := range mt.net.hosts() {
		if host != mt.host {
			mt.Send(ctx, host, msg)
		}
	}
}

func (mt memTransport) Send(ctx context.Context, host string, msg consensus.Message) error {
	n := mt.net.lookup(host)
	if n == nil {
		return errors.New("unknown host")
	}

	go n.Deliver(context.Background(), msg)
	return nil
}

type testNode struct {
	id    consensus.Identity
	node  *consensus.Node
	store *recordingStore
}

func newCluster(t *testing.T, hosts ...string) []testNode {
	net := memNetwork{nodes: make(map[string]*consensus.Node)}

	nodes := make([]testNode, len(hosts))
	for i, host := range hosts {
		id := consensus.NewIdentity(keyFor(t), host)
		committer, store := newCommitter(t)
		transport := memTransport{net: &net, host: host}

		acceptor := consensus.NewAcceptor(consensus.AcceptorConfig{
			Identity:  id,
			Transport: transport,
			Chain:     store,
			Committer: committer,
		})

		proposer := consensus.NewProposer(consensus.ProposerConfig{
			Identity:  id,
			Transport: transport,
			Committer: committer,
			Local:     acceptor,
			Peers:     func() int { return len(hosts) - 1 },
		})
		t.Cleanup(proposer.Shutdown)

		nodes[i] = testNode{
			id:    id,
			node:  &consensus.Node{Proposer: proposer, Acceptor: acceptor},
			store: store,
		}

		net.nodes[host] = nodes[i].node
	}

	// Every node starts from the same genesis block.
	genesis, _ := database.NewBlock(nodes[0].id.NodeID, database.BlockHeader{}, "", []database.SignedTx{
		{Tx: database.Tx{Outputs: []database.Output{{User: userA, Product: "apple"}}}},
	})
	for _, n := range nodes {
		wb := storage.NewWriteBatch()
		if err := wb.PutBlock(genesis); err != nil {
			t.Fatalf("\t%s\tShould be able to stage genesis: %v", failed, err)
		}
		wb.SetHead(genesis.Hash())

		if err := n.store.Storage.Commit(wb); err != nil {
			t.Fatalf("\t%s\tShould be able to store genesis: %v", failed, err)
		}
	}

	return nodes
}

// =============================================================================

func Test_Cluster(t *testing.T) {
	t.Log("Given the need to agree on a block across a cluster.")
	{
		nodes := newCluster(t, "a", "b", "c")

		head, err := nodes[0].store.GetBlockByHeight(0)
		if err != nil {
			t.Fatalf("\t%s\tShould find genesis: %v", failed, err)
		}

		tx := database.SignedTx{Tx: database.Tx{Nonce: 1, Outputs: []database.Output{{User: userB, Product: "pear"}, {User: userA, Product: "plum"}}}}
		block, err := database.NewBlock(nodes[0].id.NodeID, head.Header, head.Hash(), []database.SignedTx{tx})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build a block: %v", failed, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := nodes[0].node.Proposer.Propose(ctx, block); err != nil {
			t.Fatalf("\t%s\tShould commit the block: %v", failed, err)
		}
		t.Logf("\t%s\tShould commit the block on the proposer.", success)

		for _, n := range nodes {
			deadline := time.Now().Add(5 * time.Second)
			for {
				h, err := n.store.Head()
				if err == nil && h.Hash() == block.Hash() {
					break
				}
				if time.Now().After(deadline) {
					t.Fatalf("\t%s\tShould apply the block on node %s.", failed, n.id.Host)
				}
				time.Sleep(5 * time.Millisecond)
			}

			recs, err := n.store.QueryUnclaimed(userB)
			if err != nil || len(recs) != 1 {
				t.Fatalf("\t%s\tShould hold the new record on node %s: %v", failed, n.id.Host, err)
			}
		}
		t.Logf("\t%s\tShould apply the block on every node.", success)

		t.Logf("\tTest 0:\tWhen a block doesn't extend the head.")
		{
			stale, _ := database.NewBlock(nodes[1].id.NodeID, head.Header, head.Hash(), []database.SignedTx{tx})

			err := nodes[1].node.Proposer.Propose(ctx, stale)
			if !errors.Is(err, consensus.ErrPhaseRejected) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the stale block, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the stale block.", success)
		}
	}
}

func Test_AcceptorPromise(t *testing.T) {
	t.Log("Given the need to promise a single proposal per height.")
	{
		nodes := newCluster(t, "a", "b", "c")
		acceptor := nodes[2].node.Acceptor

		head, _ := nodes[2].store.GetBlockByHeight(0)
		tx := database.SignedTx{Tx: database.Tx{Nonce: 7, Outputs: []database.Output{{User: userB, Product: "pear"}}}}

		first, _ := database.NewBlock(nodes[0].id.NodeID, head.Header, head.Hash(), []database.SignedTx{tx})
		second, _ := database.NewBlock(nodes[1].id.NodeID, head.Header, head.Hash(), []database.SignedTx{tx})

		if err := acceptor.PromiseLocal(consensus.NewProposal(first), first); err != nil {
			t.Fatalf("\t%s\tShould promise the first proposal: %v", failed, err)
		}
		t.Logf("\t%s\tShould promise the first proposal.", success)

		if err := acceptor.PromiseLocal(consensus.NewProposal(second), second); err == nil {
			t.Fatalf("\t%s\tShould refuse a second proposal at the same height.", failed)
		}
		t.Logf("\t%s\tShould refuse a second proposal at the same height.", success)

		if err := acceptor.AcceptLocal(consensus.NewProposal(second)); err == nil {
			t.Fatalf("\t%s\tShould refuse to accept a proposal it didn't promise.", failed)
		}
		t.Logf("\t%s\tShould refuse to accept a proposal it didn't promise.", success)

		if err := acceptor.AcceptLocal(consensus.NewProposal(first)); err != nil {
			t.Fatalf("\t%s\tShould accept the promised proposal: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept the promised proposal.", success)

		gap := first
		gap.Header.Height = 5
		if err := acceptor.PromiseLocal(consensus.NewProposal(gap), gap); !errors.Is(err, database.ErrChainForked) {
			t.Fatalf("\t%s\tShould refuse a block that doesn't extend the head, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould refuse a block that doesn't extend the head.", success)
	}
}

func Test_AcceptorMembership(t *testing.T) {
	t.Log("Given the need to answer only the known peers.")
	{
		self, known := newIdentity(t, "self"), newIdentity(t, "known")
		stranger := consensus.NewIdentity(keyFor(t), "known")
		committer, store := newCommitter(t)

		acceptor := consensus.NewAcceptor(consensus.AcceptorConfig{
			Identity:  self,
			Transport: newCaptureTransport(),
			Chain:     store,
			Committer: committer,
			Member: func(ctx context.Context, from database.NodeID, host string) bool {
				return from == known.NodeID && host == known.Host
			},
		})

		ctx := context.Background()

		for i, id := range []consensus.Identity{stranger, known} {
			block := candidate(t, id.NodeID)
			msg, err := id.NewMessage(consensus.MsgPrepare, consensus.PhasePrepare, consensus.NewProposal(block), &block)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to sign a prepare: %v", failed, err)
			}

			err = acceptor.OnPrepare(ctx, msg)
			switch i {
			case 0:
				if !errors.Is(err, consensus.ErrUnknownNode) {
					t.Fatalf("\t%s\tShould drop a prepare from an unknown node using a known host, got %v.", failed, err)
				}
				t.Logf("\t%s\tShould drop a prepare from an unknown node using a known host.", success)

			case 1:
				if err != nil {
					t.Fatalf("\t%s\tShould answer a prepare from a known node: %v", failed, err)
				}
				t.Logf("\t%s\tShould answer a prepare from a known node.", success)
			}
		}

		commitMsg := vote(t, stranger, consensus.MsgCommit, consensus.PhaseCommit, consensus.Proposal{Height: 1})
		if err := acceptor.OnCommit(ctx, commitMsg); !errors.Is(err, consensus.ErrUnknownNode) {
			t.Fatalf("\t%s\tShould drop a commit from an unknown node, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould drop a commit from an unknown node.", success)
	}
}
