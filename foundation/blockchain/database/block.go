package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/quorumchain/node/foundation/blockchain/merkle"
	"github.com/quorumchain/node/foundation/blockchain/signature"
)

// ErrChainForked is returned when a block does not extend the local head.
var ErrChainForked = errors.New("block does not extend the local chain")

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	PrevBlockHash string `json:"prev_block_hash"` // Hash of the previous block in the chain.
	Height        uint64 `json:"height"`          // Block number in the chain, genesis is 0.
	TimeStamp     uint64 `json:"timestamp"`       // Time the block was proposed in milliseconds.
	ProposerID    NodeID `json:"proposer"`        // The node that proposed the block.
	TransRoot     string `json:"trans_root"`      // Merkle root of the transactions in this block.
}

// Block represents a group of transactions batched together.
type Block struct {
	Header BlockHeader `json:"header"`
	Trans  []SignedTx  `json:"trans"`
}

// NewBlock constructs the block that extends the specified parent with the
// set of transactions. A parent with an empty hash produces a genesis block.
func NewBlock(proposerID NodeID, parent BlockHeader, parentHash string, trans []SignedTx) (Block, error) {
	root, err := merkle.RootHex(trans)
	if err != nil {
		return Block{}, err
	}

	header := BlockHeader{
		PrevBlockHash: signature.ZeroHash,
		Height:        0,
		TimeStamp:     uint64(time.Now().UTC().UnixMilli()),
		ProposerID:    proposerID,
		TransRoot:     root,
	}

	if parentHash != "" {
		header.PrevBlockHash = parentHash
		header.Height = parent.Height + 1

		// The timestamp must move forward even when blocks are produced
		// within the same millisecond.
		if header.TimeStamp <= parent.TimeStamp {
			header.TimeStamp = parent.TimeStamp + 1
		}
	}

	return Block{Header: header, Trans: trans}, nil
}

// Hash returns the unique hash for the Block.
func (b Block) Hash() string {

	// Only the header is hashed. The merkle root ties the transactions to
	// the header so the chain can be checked with headers alone.
	return signature.Hash(b.Header)
}

// ValidateNext takes a block and validates it extends the specified parent.
func (b Block) ValidateNext(parent Block) error {
	nextHeight := parent.Header.Height + 1
	if b.Header.Height != nextHeight {
		return fmt.Errorf("%w: height, got %d, exp %d", ErrChainForked, b.Header.Height, nextHeight)
	}

	if b.Header.PrevBlockHash != parent.Hash() {
		return fmt.Errorf("%w: parent hash, got %s, exp %s", ErrChainForked, b.Header.PrevBlockHash, parent.Hash())
	}

	if b.Header.TimeStamp <= parent.Header.TimeStamp {
		return fmt.Errorf("block timestamp is not after parent, parent %d, block %d", parent.Header.TimeStamp, b.Header.TimeStamp)
	}

	return b.ValidateContent()
}

// ValidateContent checks the transactions and the merkle root.
func (b Block) ValidateContent() error {
	root, err := merkle.RootHex(b.Trans)
	if err != nil {
		return err
	}

	if root != b.Header.TransRoot {
		return fmt.Errorf("merkle root does not match transactions, got %s, exp %s", root, b.Header.TransRoot)
	}

	spent := make(map[string]struct{})
	for _, tx := range b.Trans {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("tx %s: %w", tx.ID(), err)
		}

		for _, in := range tx.Inputs {
			if _, exists := spent[in.UnclaimedHash]; exists {
				return fmt.Errorf("unclaimed record %s spent twice in block", in.UnclaimedHash)
			}
			spent[in.UnclaimedHash] = struct{}{}
		}
	}

	return nil
}
