package state

import (
	"context"
	"time"

	"github.com/quorumchain/node/foundation/blockchain/peer"
)

// peerOperations handles finding new peers and learning their node ids.
func (w *worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	// A zero cycle leaves resolving peers to the consensus paths.
	var tick <-chan time.Time
	if w.peerCycle > 0 {
		ticker := time.NewTicker(w.peerCycle)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation asks every known peer for its status, records the node
// id it reports and adds the peers it knows about.
func (w *worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-w.shut:
			cancel()
		case <-ctx.Done():
		}
	}()

	for _, p := range w.state.KnownPeers() {
		status, err := w.state.resolvePeer(ctx, p)
		if err != nil {
			w.evHandler("worker: runPeersOperation: queryPeerStatus: %s: ERROR: %s", p.Host, err)
			continue
		}

		w.addNewPeers(status.KnownPeers)
	}
}

// addNewPeers takes the list of known peers and makes sure they are included
// in the nodes list of know peers. Only the host is taken, a node id is
// trusted only when the node reports it about itself.
func (w *worker) addNewPeers(knownPeers []peer.Peer) {
	for _, p := range knownPeers {

		// Don't add this running node to the known peer list.
		if p.Match(w.state.Host()) {
			continue
		}

		if w.state.AddKnownPeer(peer.New(p.Host)) {
			w.evHandler("worker: runPeersOperation: addNewPeers: adding peer-node %s", p.Host)
		}
	}
}
