// Package peer maintains the set of nodes this node exchanges consensus
// messages with.
package peer

import (
	"sort"
	"sync"

	"github.com/quorumchain/node/foundation/blockchain/database"
)

// Peer represents a node in the network, addressed by its p2p host. The
// NodeID is empty until the peer reported it in a status exchange.
type Peer struct {
	Host   string          `json:"host"`
	NodeID database.NodeID `json:"node_id,omitempty"`
}

// New constructs a peer for the host.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this peer.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// Status represents what a node reports about itself to its peers and to
// operators.
type Status struct {
	NodeID            string `json:"node_id"`
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockHeight uint64 `json:"latest_block_height"`
	KnownPeers        []Peer `json:"known_peers"`
}

// =============================================================================

// Set maintains the known peers keyed by host. It is safe for concurrent
// use.
type Set struct {
	mu  sync.RWMutex
	set map[string]Peer
}

// NewSet constructs an empty peer set.
func NewSet() *Set {
	return &Set{
		set: make(map[string]Peer),
	}
}

// Add adds a peer to the set. It reports whether the host is new. A known
// host without a node id picks up the one carried by the peer.
func (s *Set) Add(peer Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	known, exists := s.set[peer.Host]
	if !exists {
		s.set[peer.Host] = peer
		return true
	}

	if known.NodeID == "" && peer.NodeID != "" {
		known.NodeID = peer.NodeID
		s.set[peer.Host] = known
	}

	return false
}

// SetNodeID records the node id the peer at host reported about itself. It
// reports false when the host is unknown.
func (s *Set) SetNodeID(host string, id database.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	known, exists := s.set[host]
	if !exists {
		return false
	}

	known.NodeID = id
	s.set[host] = known

	return true
}

// Get returns the peer known at host.
func (s *Set) Get(host string) (Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peer, exists := s.set[host]
	return peer, exists
}

// Remove removes a peer from the set.
func (s *Set) Remove(peer Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.set, peer.Host)
}

// Copy returns the known peers other than the specified host, sorted by
// host so every node sees the same order.
func (s *Set) Copy(host string) []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peers := make([]Peer, 0, len(s.set))
	for _, peer := range s.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Host < peers[j].Host
	})

	return peers
}

// Count returns the number of known peers other than the specified host.
func (s *Set) Count(host string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.set)
	if _, exists := s.set[host]; exists {
		n--
	}
	return n
}

// NodeIDs returns the node ids learned for the peers other than the
// specified host. Peers that never reported an id are left out.
func (s *Set) NodeIDs(host string) []database.NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]database.NodeID, 0, len(s.set))
	for _, peer := range s.set {
		if !peer.Match(host) && peer.NodeID != "" {
			ids = append(ids, peer.NodeID)
		}
	}

	return ids
}

// Unresolved returns the peers other than the specified host that haven't
// reported their node id yet.
func (s *Set) Unresolved(host string) []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var peers []Peer
	for _, peer := range s.set {
		if !peer.Match(host) && peer.NodeID == "" {
			peers = append(peers, peer)
		}
	}

	return peers
}

// HasNodeID reports whether a known peer at host reported the node id.
func (s *Set) HasNodeID(host string, id database.NodeID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	known, exists := s.set[host]
	return exists && known.NodeID != "" && known.NodeID == id
}
