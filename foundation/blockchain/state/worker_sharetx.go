package state

import (
	"context"

	"github.com/quorumchain/node/foundation/blockchain/database"
)

// shareTxOperations handles sharing new user transactions.
func (w *worker) shareTxOperations() {
	w.evHandler("worker: shareTxOperations: G started")
	defer w.evHandler("worker: shareTxOperations: G completed")

	for {
		select {
		case tx := <-w.txSharing:
			if !w.isShutdown() {
				w.runShareTxOperation(tx)
			}
		case <-w.shut:
			w.evHandler("worker: shareTxOperations: received shut signal")
			return
		}
	}
}

// runShareTxOperation shares a new user transaction with the known peers.
func (w *worker) runShareTxOperation(tx database.SignedTx) {
	w.evHandler("worker: runShareTxOperation: started: %s", tx)
	defer w.evHandler("worker: runShareTxOperation: completed")

	w.state.transport.BroadcastTx(context.Background(), tx)
}
