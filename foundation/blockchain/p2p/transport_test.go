package p2p_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/quorumchain/node/foundation/blockchain/consensus"
	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/p2p"
	"github.com/quorumchain/node/foundation/blockchain/peer"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Transport(t *testing.T) {
	t.Log("Given the need to exchange frames between two nodes.")
	{
		msgs := make(chan consensus.Message, 1)
		txs := make(chan database.SignedTx, 1)

		receiver, err := p2p.New(p2p.Config{
			Bind:        "127.0.0.1:0",
			OnConsensus: func(ctx context.Context, msg consensus.Message) { msgs <- msg },
			OnTx:        func(ctx context.Context, tx database.SignedTx) { txs <- tx },
			OnStatus: func() (peer.Status, error) {
				status := peer.Status{
					NodeID:            "0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8",
					LatestBlockHeight: 9,
					KnownPeers:        []peer.Peer{{Host: "10.0.0.1:9080", NodeID: "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"}},
				}
				return status, nil
			},
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to start the receiver: %v", failed, err)
		}
		defer receiver.Close()

		peers := peer.NewSet()
		peers.Add(peer.New(receiver.Addr()))

		sender, err := p2p.New(p2p.Config{Bind: "127.0.0.1:0", Peers: peers})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to start the sender: %v", failed, err)
		}
		defer sender.Close()

		// The sender knows itself as a peer too and must skip itself.
		peers.Add(peer.New(sender.Host()))
		t.Logf("\t%s\tShould be able to start both transports.", success)

		pk, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}
		id := consensus.NewIdentity(pk, sender.Host())

		tx := database.SignedTx{Tx: database.Tx{Nonce: 3, Outputs: []database.Output{{User: "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32", Product: "apple"}}}}
		block, err := database.NewBlock(id.NodeID, database.BlockHeader{}, "", []database.SignedTx{tx})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build a block: %v", failed, err)
		}

		msg, err := id.NewMessage(consensus.MsgPrepare, consensus.PhasePrepare, consensus.NewProposal(block), &block)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign a message: %v", failed, err)
		}

		sender.Broadcast(context.Background(), msg)

		select {
		case got := <-msgs:
			if got.Proposal != msg.Proposal || got.Signature != msg.Signature {
				t.Fatalf("\t%s\tShould receive the same message, got %s.", failed, got)
			}
			t.Logf("\t%s\tShould receive the same message.", success)

			if err := got.Verify(); err != nil {
				t.Fatalf("\t%s\tShould verify the message after the round trip: %v", failed, err)
			}
			t.Logf("\t%s\tShould verify the message after the round trip.", success)

		case <-time.After(5 * time.Second):
			t.Fatalf("\t%s\tShould receive the message.", failed)
		}

		sender.BroadcastTx(context.Background(), tx)

		select {
		case got := <-txs:
			if got.ID() != tx.ID() {
				t.Fatalf("\t%s\tShould receive the same transaction.", failed)
			}
			t.Logf("\t%s\tShould receive the same transaction.", success)

		case <-time.After(5 * time.Second):
			t.Fatalf("\t%s\tShould receive the transaction.", failed)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for i := range 2 {
			status, err := sender.Status(ctx, receiver.Addr())
			if err != nil {
				t.Fatalf("\t%s\tAttempt %d:\tShould be able to query the status: %v", failed, i, err)
			}

			if status.NodeID != "0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8" || status.LatestBlockHeight != 9 {
				t.Fatalf("\t%s\tAttempt %d:\tShould receive the receiver's status, got %+v.", failed, i, status)
			}

			if len(status.KnownPeers) != 1 || status.KnownPeers[0].NodeID != "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4" {
				t.Fatalf("\t%s\tAttempt %d:\tShould receive the known peers with their node ids, got %+v.", failed, i, status.KnownPeers)
			}
		}
		t.Logf("\t%s\tShould exchange the status on a dedicated connection.", success)

		receiver.Close()
		if err := receiver.Send(context.Background(), sender.Host(), msg); err == nil {
			t.Fatalf("\t%s\tShould refuse to send after close.", failed)
		}
		t.Logf("\t%s\tShould refuse to send after close.", success)
	}
}
