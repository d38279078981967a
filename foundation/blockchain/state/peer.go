package state

import (
	"context"
	"fmt"
	"time"

	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/peer"
)

// resolveTimeout bounds a status exchange made on a consensus path.
const resolveTimeout = 2 * time.Second

// resolvePeer asks the peer for its status and records the node id the peer
// reports about itself.
func (s *State) resolvePeer(ctx context.Context, p peer.Peer) (peer.Status, error) {
	status, err := s.transport.Status(ctx, p.Host)
	if err != nil {
		return peer.Status{}, err
	}

	id, err := database.ToNodeID(status.NodeID)
	if err != nil {
		return peer.Status{}, fmt.Errorf("peer %s: %w", p.Host, err)
	}

	if p.NodeID != id {
		s.knownPeers.SetNodeID(p.Host, id)
		s.evHandler("state: resolvePeer: %s: node id %s", p.Host, id)
	}

	return status, nil
}

// resolvePeers learns the node id of every known peer that hasn't reported
// one yet. Peers that can't be reached stay unresolved and can't vote.
func (s *State) resolvePeers(ctx context.Context) {
	for _, p := range s.knownPeers.Unresolved(s.host) {
		ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
		_, err := s.resolvePeer(ctx, p)
		cancel()

		if err != nil {
			s.evHandler("state: resolvePeers: %s: WARNING: %s", p.Host, err)
		}
	}
}

// isMember reports whether a consensus message comes from a known peer. A
// known host whose node id doesn't match is asked again, the node may have
// restarted with a new key.
func (s *State) isMember(ctx context.Context, from database.NodeID, host string) bool {
	p, exists := s.knownPeers.Get(host)
	if !exists {
		return false
	}

	if p.NodeID == from {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	if _, err := s.resolvePeer(ctx, p); err != nil {
		s.evHandler("state: isMember: %s: WARNING: %s", host, err)
		return false
	}

	return s.knownPeers.HasNodeID(host, from)
}
