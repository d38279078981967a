// Package signature provides helper functions for hashing values and for
// signing and verifying the messages nodes exchange during consensus.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// stampPrefix is mixed into every signed digest so signatures produced by a
// node can't be replayed as signatures over some other chain's data.
const stampPrefix = "\x19Quorum Signed Message:\n32"

// =============================================================================

// Hash returns a unique string for the value. The value is marshaled to JSON
// and hashed with sha256.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// HashBytes returns the sha256 hash of the value as raw bytes.
func HashBytes(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(data)
	return hash[:], nil
}

// Sign uses the specified private key to sign the value. The signature is
// returned hex encoded in the 65 byte [R|S|V] format.
func Sign(value any, privateKey *ecdsa.PrivateKey) (string, error) {

	// Prepare the data for signing.
	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return "", err
	}

	// Check the public key extracted from the data and signature.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return "", err
	}

	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return "", errors.New("invalid signature")
	}

	return hexutil.Encode(sig), nil
}

// FromAddress extracts the address of the key that signed the value.
func FromAddress(value any, sigHex string) (string, error) {

	// NOTE: If the exact data that was signed is not provided, a different
	// address is recovered. Callers compare the recovered address against
	// the node id claimed in the message.

	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return "", fmt.Errorf("decoding signature: %w", err)
	}

	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("invalid signature length %d", len(sig))
	}

	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return "", err
	}

	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// Verify checks the signature was produced over the value by the key
// belonging to the specified address.
func Verify(value any, sigHex string, address string) error {
	from, err := FromAddress(value, sigHex)
	if err != nil {
		return err
	}

	if from != address {
		return fmt.Errorf("signature address mismatch, got %s, exp %s", from, address)
	}

	return nil
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this data with
// the stamp embedded into the final hash.
func stamp(value any) ([]byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	// Hash the data into a 32 byte array so all data has a consistent length.
	txHash := crypto.Keccak256(v)

	return crypto.Keccak256([]byte(stampPrefix), txHash), nil
}
