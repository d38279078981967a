// Package nameservice reads the zblock/accounts folder and creates a name
// service lookup for the node and user keys kept there.
package nameservice

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/quorumchain/node/foundation/blockchain/database"
)

// NameService maintains a map of addresses for name lookup. Node ids and
// user accounts share the address space, so one key file names both.
type NameService struct {
	names map[string]string
}

// New constructs a name service with the keys from the specified folder.
func New(root string) (*NameService, error) {
	ns := NameService{
		names: make(map[string]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return err
		}

		address := crypto.PubkeyToAddress(privateKey.PublicKey).String()
		ns.names[address] = strings.TrimSuffix(path.Base(fileName), ".ecdsa")

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified account.
func (ns *NameService) Lookup(account database.AccountID) string {
	return ns.lookup(string(account))
}

// LookupNode returns the name for the specified node.
func (ns *NameService) LookupNode(id database.NodeID) string {
	return ns.lookup(string(id))
}

// Copy returns a copy of the map of addresses and names.
func (ns *NameService) Copy() map[string]string {
	cpy := make(map[string]string, len(ns.names))
	for address, name := range ns.names {
		cpy[address] = name
	}
	return cpy
}

func (ns *NameService) lookup(address string) string {
	name, exists := ns.names[address]
	if !exists {
		return address
	}
	return name
}
