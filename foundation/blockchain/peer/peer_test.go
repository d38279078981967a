package peer_test

import (
	"testing"

	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/peer"
)

const (
	node1 = database.NodeID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")
	node2 = database.NodeID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
)

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
	}

	tt := []table{
		{
			name:  "basic",
			peers: []peer.Peer{{Host: "host3"}, {Host: "host1"}, {Host: "host2"}},
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			ps := peer.NewSet()

			for _, p := range tst.peers {
				if !ps.Add(p) {
					t.Fatalf("Test %s:\tShould add new peer %s.", tst.name, p.Host)
				}
			}

			if ps.Add(tst.peers[0]) {
				t.Fatalf("Test %s:\tShould not add a known peer twice.", tst.name)
			}

			peers := ps.Copy("")
			if len(peers) != len(tst.peers) {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers))
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			if peers[0].Host != "host1" || peers[2].Host != "host3" {
				t.Fatalf("Test %s:\tShould get back the peers sorted by host, got %v.", tst.name, peers)
			}

			peers = ps.Copy("host2")
			if len(peers) != len(tst.peers)-1 {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers)-1)
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			if got := ps.Count("host2"); got != 2 {
				t.Fatalf("Test %s:\tShould not count the local host, got %d.", tst.name, got)
			}

			if got := ps.Count("elsewhere"); got != 3 {
				t.Fatalf("Test %s:\tShould count every peer, got %d.", tst.name, got)
			}

			if ids := ps.NodeIDs(""); len(ids) != 0 {
				t.Fatalf("Test %s:\tShould not know any node id yet, got %v.", tst.name, ids)
			}

			if !ps.SetNodeID("host1", node1) || ps.SetNodeID("elsewhere", node2) {
				t.Fatalf("Test %s:\tShould record node ids for known hosts only.", tst.name)
			}

			if ps.Add(peer.Peer{Host: "host2", NodeID: node2}) {
				t.Fatalf("Test %s:\tShould not add a known host twice.", tst.name)
			}

			ids := ps.NodeIDs("host1")
			if len(ids) != 1 || ids[0] != node2 {
				t.Fatalf("Test %s:\tShould return the learned node ids other than the local one, got %v.", tst.name, ids)
			}

			if !ps.HasNodeID("host1", node1) || ps.HasNodeID("host1", node2) || ps.HasNodeID("host3", node2) {
				t.Fatalf("Test %s:\tShould match node ids to their host.", tst.name)
			}

			if u := ps.Unresolved(""); len(u) != 1 || u[0].Host != "host3" {
				t.Fatalf("Test %s:\tShould report the peers without a node id, got %v.", tst.name, u)
			}

			ps.Remove(peer.New("host1"))
			if got := ps.Count(""); got != 2 {
				t.Fatalf("Test %s:\tShould remove the peer, got %d.", tst.name, got)
			}
		}

		t.Run(tst.name, f)
	}
}
