// Package cmd contains the admin commands for operating a node.
package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	keyName string
	keyPath string
	url     string
	private string
)

const (
	keyExtension = ".ecdsa"
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&keyName, "key", "k", "node1", "Name of the private key.")
	rootCmd.PersistentFlags().StringVarP(&keyPath, "key-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node public api.")
	rootCmd.PersistentFlags().StringVarP(&private, "private-url", "r", "http://localhost:9080", "Url of the node private api.")
}

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operate a quorum chain node",
}

// Execute runs the command specified on the command line.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func getPrivateKeyPath() string {
	name := keyName
	if !strings.HasSuffix(name, keyExtension) {
		name += keyExtension
	}

	return filepath.Join(keyPath, name)
}
