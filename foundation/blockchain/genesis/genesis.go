// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
	"time"

	"github.com/quorumchain/node/foundation/blockchain/database"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time         `json:"date"`
	ChainID       uint16            `json:"chain_id"`        // The chain id represents an unique id for this running instance.
	TransPerBlock uint16            `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
	Outputs       []database.Output `json:"outputs"`         // Products handed out before the first block.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Block constructs the genesis block. Every node loading the same genesis
// file builds a block with the same hash.
func (g Genesis) Block() (database.Block, error) {
	var trans []database.SignedTx
	if len(g.Outputs) > 0 {
		tx := database.Tx{
			Outputs:   g.Outputs,
			TimeStamp: uint64(g.Date.UTC().UnixMilli()),
		}
		trans = []database.SignedTx{{Tx: tx}}
	}

	block, err := database.NewBlock("", database.BlockHeader{}, "", trans)
	if err != nil {
		return database.Block{}, err
	}
	block.Header.TimeStamp = uint64(g.Date.UTC().UnixMilli())

	return block, nil
}
