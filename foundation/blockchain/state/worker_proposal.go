package state

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/quorumchain/node/foundation/blockchain/consensus"
)

// CORE NOTE: The proposal operation is managed by this function which runs on
// it's own goroutine. The node starts a loop on the configured cycle. At the
// beginning of each cycle the selection algorithm is executed which
// determines if this node proposes the next block. If this node is not
// selected, it waits for the next cycle to check the selection again. Every
// node runs the same selection over the same head block, so at most one node
// proposes per height while the network agrees on the head.

// proposalOperations handles proposing blocks.
func (w *worker) proposalOperations() {
	w.evHandler("worker: proposalOperations: G started")
	defer w.evHandler("worker: proposalOperations: G completed")

	// A zero cycle leaves proposing to explicit requests.
	var tick <-chan time.Time
	if w.cycle > 0 {
		ticker := time.NewTicker(w.cycle)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			if !w.isShutdown() {
				w.runProposalOperation()
			}
		case <-w.shut:
			w.evHandler("worker: proposalOperations: received shut signal")
			return
		}
	}
}

// runProposalOperation builds a block from the mempool and runs a consensus
// round for it when the selection picks this node.
func (w *worker) runProposalOperation() {
	round := uuid.NewString()

	w.evHandler("worker: runProposalOperation: round[%s]: started", round)
	defer w.evHandler("worker: runProposalOperation: round[%s]: completed", round)

	host, err := w.selection()
	if err != nil {
		w.evHandler("worker: runProposalOperation: round[%s]: selection: ERROR: %s", round, err)
		return
	}

	w.evHandler("worker: runProposalOperation: round[%s]: SELECTED: %s", round, host)

	// If we are not selected, return and wait for the new block.
	if host != w.state.Host() {
		return
	}

	// Make sure there are transactions in the mempool.
	if length := w.state.QueryMempoolLength(); length == 0 {
		w.evHandler("worker: runProposalOperation: round[%s]: no transactions to propose: Txs[%d]", round, length)
		return
	}

	// Create a context so the round can be aborted on shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-w.shut:
			w.evHandler("worker: runProposalOperation: round[%s]: CANCEL: requested", round)
			cancel()
		case <-ctx.Done():
		}
	}()

	t := time.Now()
	block, err := w.state.ProposeBlock(ctx)
	duration := time.Since(t)

	w.evHandler("worker: runProposalOperation: round[%s]: duration[%v]", round, duration)

	if err != nil {
		switch {
		case errors.Is(err, ErrNoTransactions):
			w.evHandler("worker: runProposalOperation: round[%s]: WARNING: no transactions in mempool", round)
		case errors.Is(err, consensus.ErrAlreadyActive):
			w.evHandler("worker: runProposalOperation: round[%s]: WARNING: round already active", round)
		case ctx.Err() != nil:
			w.evHandler("worker: runProposalOperation: round[%s]: CANCEL: complete", round)
		default:
			w.evHandler("worker: runProposalOperation: round[%s]: ERROR: %s", round, err)
		}
		return
	}

	w.evHandler("worker: runProposalOperation: round[%s]: blk[%d] committed: %s", round, block.Header.Height, block.Hash())
}

// selection selects the node that proposes the next block.
func (w *worker) selection() (string, error) {

	// The known peers list does not include this node.
	peers := w.state.KnownPeers()

	// Sort the current list of hosts.
	names := make([]string, 0, len(peers)+1)
	names = append(names, w.state.Host())
	for _, peer := range peers {
		names = append(names, peer.Host)
	}
	sort.Strings(names)

	// Just log information so we are clear what the list looks like.
	w.evHandler("worker: runProposalOperation: selection: Host %s, List %v", w.state.Host(), names)

	head, err := w.state.LatestBlock()
	if err != nil {
		return "", err
	}

	// Based on the latest block, pick an index number from the registry.
	h := fnv.New32a()
	h.Write([]byte(head.Hash()))
	integerHash := h.Sum32()
	i := integerHash % uint32(len(names))

	// Return the name of the node selected.
	return names[i], nil
}
