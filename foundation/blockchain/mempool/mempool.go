// Package mempool maintains the transactions waiting to be proposed in a
// block.
package mempool

import (
	"sync"

	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/mempool/selector"
)

// Mempool represents a cache of transactions keyed by transaction id.
type Mempool struct {
	pool     map[string]database.SignedTx
	mu       sync.RWMutex
	selectFn selector.Func
}

// New constructs a new mempool using the default select strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyOldest)
}

// NewWithStrategy constructs a new mempool with specified select strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]database.SignedTx),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool. It reports whether
// the transaction was new so the caller only shares it once.
func (mp *Mempool) Upsert(tx database.SignedTx) (int, bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := tx.ID()
	_, exists := mp.pool[key]
	mp.pool[key] = tx

	return len(mp.pool), !exists
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.SignedTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, tx.ID())
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.SignedTx)
}

// PickBest uses the configured select strategy to return the next set
// of transactions for the next block. Pass -1 for all the transactions.
func (mp *Mempool) PickBest(howMany int) []database.SignedTx {
	var txs []database.SignedTx
	mp.mu.RLock()
	{
		txs = make([]database.SignedTx, 0, len(mp.pool))
		for _, tx := range mp.pool {
			txs = append(txs, tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(txs, howMany)
}
