package state

import (
	"sync"
	"time"

	"github.com/quorumchain/node/foundation/blockchain/database"
)

// maxTxShareRequests represents the max number of pending tx network share
// requests that can be outstanding before share requests are dropped. To keep
// this simple, a buffered channel of this arbitrary number is being used. If
// the channel does become full, requests for new transactions to be shared
// will not be accepted.
const maxTxShareRequests = 100

// =============================================================================

// worker manages the proposal and transaction sharing workflows for the node.
type worker struct {
	state     *State
	wg        sync.WaitGroup
	cycle     time.Duration
	peerCycle time.Duration
	shut      chan struct{}
	txSharing chan database.SignedTx
	evHandler EventHandler
}

// runWorker creates a worker for starting the background workflows.
func runWorker(state *State, cycle time.Duration, peerCycle time.Duration, evHandler EventHandler) {

	// Construct and register this worker to the state. During initialization
	// this worker needs access to the state.
	state.worker = &worker{
		state:     state,
		cycle:     cycle,
		peerCycle: peerCycle,
		shut:      make(chan struct{}),
		txSharing: make(chan database.SignedTx, maxTxShareRequests),
		evHandler: evHandler,
	}

	// Load the set of operations we need to run.
	operations := []func(){
		state.worker.peerOperations,
		state.worker.proposalOperations,
		state.worker.shareTxOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	state.worker.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer state.worker.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// shutdown terminates the goroutines performing work. A proposal in flight
// is aborted.
func (w *worker) shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// =============================================================================

// signalShareTx signals a share transaction operation. If
// maxTxShareRequests signals exist in the channel, we won't send these.
func (w *worker) signalShareTx(tx database.SignedTx) {
	select {
	case w.txSharing <- tx:
		w.evHandler("worker: signalShareTx: share Tx signaled")
	default:
		w.evHandler("worker: signalShareTx: queue full, transactions won't be shared.")
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
