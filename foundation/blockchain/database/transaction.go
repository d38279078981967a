// Package database defines the blockchain data model: transactions, the
// unclaimed records they produce and consume, and the blocks that carry them.
package database

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/quorumchain/node/foundation/blockchain/signature"
)

// ErrUnsigned is returned when a transaction that needs a signature has none.
var ErrUnsigned = errors.New("transaction is not signed")

// Input consumes an unclaimed transaction record by referencing the record's
// content hash.
type Input struct {
	UnclaimedHash string `json:"unclaimed_hash" validate:"required"`
}

// Output pays a product to a user. Committing the transaction turns every
// output into a new unclaimed transaction record.
type Output struct {
	User    AccountID `json:"user" validate:"required"`
	Product string    `json:"product" validate:"required"`
}

// =============================================================================

// Tx moves products between users by consuming unclaimed records and
// producing new ones.
type Tx struct {
	Nonce     uint64   `json:"nonce"`
	Inputs    []Input  `json:"inputs" validate:"dive"`
	Outputs   []Output `json:"outputs" validate:"required,min=1,dive"`
	TimeStamp uint64   `json:"timestamp"`
}

// NewTx constructs a new transaction stamped with the current time.
func NewTx(nonce uint64, inputs []Input, outputs []Output) (Tx, error) {
	tx := Tx{
		Nonce:     nonce,
		Inputs:    inputs,
		Outputs:   outputs,
		TimeStamp: uint64(time.Now().UTC().UnixMilli()),
	}

	if err := tx.Validate(); err != nil {
		return Tx{}, err
	}

	return tx, nil
}

// Validate performs the structural checks a transaction must pass before it
// can be placed in the mempool or a block.
func (tx Tx) Validate() error {
	if len(tx.Outputs) == 0 {
		return errors.New("transaction has no outputs")
	}

	seen := make(map[string]struct{}, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if in.UnclaimedHash == "" {
			return fmt.Errorf("input %d has no unclaimed hash", i)
		}

		if _, exists := seen[in.UnclaimedHash]; exists {
			return fmt.Errorf("input %d spends %s twice", i, in.UnclaimedHash)
		}
		seen[in.UnclaimedHash] = struct{}{}
	}

	for i, out := range tx.Outputs {
		if !out.User.IsAccountID() {
			return fmt.Errorf("output %d user is not properly formatted", i)
		}

		if out.Product == "" {
			return fmt.Errorf("output %d has no product", i)
		}
	}

	return nil
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	if err := tx.Validate(); err != nil {
		return SignedTx{}, err
	}

	sig, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx:        tx,
		Signature: sig,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// the admin tool provide transactions for inclusion into the blockchain. The
// signer must own every unclaimed record the inputs consume.
type SignedTx struct {
	Tx
	Signature string `json:"signature,omitempty"` // Hex encoded signature in the [R|S|V] format.
}

// Validate verifies the transaction is well formed. A transaction that
// spends records must carry a signature the signer can be recovered from.
// Transactions with no inputs only create records and may be unsigned, the
// genesis transaction is one of them.
func (tx SignedTx) Validate() error {
	if err := tx.Tx.Validate(); err != nil {
		return err
	}

	if tx.Signature == "" {
		if len(tx.Inputs) > 0 {
			return ErrUnsigned
		}
		return nil
	}

	if _, err := tx.FromAccount(); err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	return nil
}

// FromAccount extracts the account id that signed the transaction.
func (tx SignedTx) FromAccount() (AccountID, error) {
	if tx.Signature == "" {
		return "", ErrUnsigned
	}

	address, err := signature.FromAddress(tx.Tx, tx.Signature)
	return AccountID(address), err
}

// ID returns the hex encoded hash that identifies the transaction.
func (tx SignedTx) ID() string {
	return signature.Hash(tx)
}

// Hash implements the merkle Hashable interface for providing a hash
// of a transaction.
func (tx SignedTx) Hash() ([]byte, error) {
	return signature.HashBytes(tx)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	from, err := tx.FromAccount()
	if err != nil {
		from = "unsigned"
	}

	return fmt.Sprintf("%s:%s:in[%d]:out[%d]", tx.ID()[:10], from, len(tx.Inputs), len(tx.Outputs))
}

// =============================================================================

// UnclaimedTx is a spendable record created by a transaction output. It
// stays in the object pool until an input of a later transaction consumes it.
type UnclaimedTx struct {
	SourceHash string    `json:"source_hash"`
	Index      uint32    `json:"index"`
	User       AccountID `json:"user"`
	Product    string    `json:"product"`
}

// NewUnclaimedTx constructs the record produced by the output at the
// specified index of the source transaction.
func NewUnclaimedTx(sourceHash string, index uint32, out Output) UnclaimedTx {
	return UnclaimedTx{
		SourceHash: sourceHash,
		Index:      index,
		User:       out.User,
		Product:    out.Product,
	}
}

// Key returns the content hash the record is stored under.
func (u UnclaimedTx) Key() string {
	return signature.Hash(u)
}
