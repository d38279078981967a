// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"
	"sort"

	"github.com/quorumchain/node/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyOldest = "oldest"
	StrategyNonce  = "nonce"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyOldest: oldestSelect,
	StrategyNonce:  nonceSelect,
}

// Func defines a function that takes the transactions in the mempool and
// selects howMany of them in an order based on the functions strategy. All
// selector functions MUST skip a transaction that spends an unclaimed record
// already spent by an earlier selection. Receiving -1 for howMany must return
// all the transactions in the strategies ordering.
type Func func(transactions []database.SignedTx, howMany int) []database.SignedTx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// oldestSelect returns the transactions that have waited the longest.
var oldestSelect = func(txs []database.SignedTx, howMany int) []database.SignedTx {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].TimeStamp != txs[j].TimeStamp {
			return txs[i].TimeStamp < txs[j].TimeStamp
		}
		return txs[i].ID() < txs[j].ID()
	})

	return pick(txs, howMany)
}

// nonceSelect returns the transactions with the lowest nonce first.
var nonceSelect = func(txs []database.SignedTx, howMany int) []database.SignedTx {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Nonce != txs[j].Nonce {
			return txs[i].Nonce < txs[j].Nonce
		}
		return txs[i].TimeStamp < txs[j].TimeStamp
	})

	return pick(txs, howMany)
}

// pick walks the ordered transactions and keeps the first howMany that do
// not spend a record an earlier pick already spends.
func pick(txs []database.SignedTx, howMany int) []database.SignedTx {
	if howMany < 0 {
		howMany = len(txs)
	}

	spent := make(map[string]struct{})
	final := []database.SignedTx{}

next:
	for _, tx := range txs {
		if len(final) == howMany {
			break
		}

		for _, in := range tx.Inputs {
			if _, exists := spent[in.UnclaimedHash]; exists {
				continue next
			}
		}

		for _, in := range tx.Inputs {
			spent[in.UnclaimedHash] = struct{}{}
		}
		final = append(final, tx)
	}

	return final
}
