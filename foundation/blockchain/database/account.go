package database

import (
	"crypto/ecdsa"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// AccountID represents the user an output is paid to. It uses the same
// address format as Ethereum so user keys can be managed with standard tools.
type AccountID string

// ToAccountID converts a hex-encoded string to an account and validates the
// hex-encoded string is formatted correctly.
func ToAccountID(hex string) (AccountID, error) {
	a := AccountID(hex)
	if !a.IsAccountID() {
		return "", errors.New("invalid account format")
	}

	return a, nil
}

// PublicKeyToAccountID converts the public key to an account value.
func PublicKeyToAccountID(pk ecdsa.PublicKey) AccountID {
	return AccountID(crypto.PubkeyToAddress(pk).String())
}

// IsAccountID verifies whether the underlying data represents a valid
// hex-encoded account.
func (a AccountID) IsAccountID() bool {
	return isAddress(string(a))
}

// Equal compares two accounts. Addresses are case insensitive, the mixed case
// form only carries a checksum.
func (a AccountID) Equal(b AccountID) bool {
	return strings.EqualFold(string(a), string(b))
}

// =============================================================================

// NodeID identifies a node taking part in consensus. It is the address of
// the node's signing key.
type NodeID string

// ToNodeID converts a hex-encoded string to a node id and validates the
// hex-encoded string is formatted correctly.
func ToNodeID(hex string) (NodeID, error) {
	n := NodeID(hex)
	if !isAddress(hex) {
		return "", errors.New("invalid node id format")
	}

	return n, nil
}

// PublicKeyToNodeID converts the public key to a node id.
func PublicKeyToNodeID(pk ecdsa.PublicKey) NodeID {
	return NodeID(crypto.PubkeyToAddress(pk).String())
}

// =============================================================================

// isAddress validates the string is a 0x prefixed, 20 byte hex value.
func isAddress(a string) bool {
	const addressLength = 20

	if has0xPrefix(a) {
		a = a[2:]
	}

	return len(a) == 2*addressLength && isHex(a)
}

// has0xPrefix validates the value starts with a 0x.
func has0xPrefix(a string) bool {
	return len(a) >= 2 && a[0] == '0' && (a[1] == 'x' || a[1] == 'X')
}

// isHex validates whether each byte is valid hexadecimal string.
func isHex(a string) bool {
	if len(a)%2 != 0 {
		return false
	}

	for _, c := range []byte(a) {
		if !isHexCharacter(c) {
			return false
		}
	}

	return true
}

// isHexCharacter returns bool of c being a valid hexadecimal.
func isHexCharacter(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
