package public

import (
	"github.com/quorumchain/node/foundation/blockchain/consensus"
	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/peer"
	"github.com/quorumchain/node/foundation/blockchain/scheduler"
)

type output struct {
	User     database.AccountID `json:"user"`
	UserName string             `json:"user_name"`
	Product  string             `json:"product"`
}

type tx struct {
	ID        string             `json:"id"`
	From      database.AccountID `json:"from,omitempty"`
	FromName  string             `json:"from_name,omitempty"`
	Nonce     uint64             `json:"nonce"`
	Inputs    []database.Input   `json:"inputs"`
	Outputs   []output           `json:"outputs"`
	TimeStamp uint64             `json:"timestamp"`
	Signature string             `json:"signature,omitempty"`
}

type block struct {
	Hash          string          `json:"hash"`
	PrevBlockHash string          `json:"prev_block_hash"`
	Height        uint64          `json:"height"`
	TimeStamp     uint64          `json:"timestamp"`
	ProposerID    database.NodeID `json:"proposer"`
	ProposerName  string          `json:"proposer_name"`
	TransRoot     string          `json:"trans_root"`
	Transactions  []tx            `json:"txs"`
}

type unclaimed struct {
	Key        string             `json:"key"`
	SourceHash string             `json:"source_hash"`
	Index      uint32             `json:"index"`
	User       database.AccountID `json:"user"`
	UserName   string             `json:"user_name"`
	Product    string             `json:"product"`
}

type nodeStatus struct {
	peer.Status
	NodeName    string                   `json:"node_name"`
	Host        string                   `json:"host"`
	Uncommitted int                      `json:"uncommitted"`
	Proposer    consensus.ProposerStatus `json:"proposer"`
}

type engineStats struct {
	Workers []scheduler.Stats `json:"workers"`
}
