package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var (
	nonce   uint64
	inputs  []string
	outputs []string
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		signedTx, err := buildSignedTx(privateKey)
		if err != nil {
			log.Fatal(err)
		}

		if err := call(http.MethodPost, fmt.Sprintf("%s/v1/tx/submit", url), signedTx); err != nil {
			log.Fatal(err)
		}
	},
}

// buildSignedTx builds the transaction from the flags and signs it with the
// private key. The key must own every record the inputs spend.
func buildSignedTx(privateKey *ecdsa.PrivateKey) (database.SignedTx, error) {
	tx, err := buildTx()
	if err != nil {
		return database.SignedTx{}, err
	}

	return tx.Sign(privateKey)
}

func buildTx() (database.Tx, error) {
	ins := make([]database.Input, len(inputs))
	for i, in := range inputs {
		ins[i] = database.Input{UnclaimedHash: in}
	}

	outs := make([]database.Output, len(outputs))
	for i, out := range outputs {
		user, product, found := strings.Cut(out, ":")
		if !found {
			return database.Tx{}, fmt.Errorf("output %q is not user:product", out)
		}

		account, err := database.ToAccountID(user)
		if err != nil {
			return database.Tx{}, err
		}

		outs[i] = database.Output{User: account, Product: product}
	}

	return database.NewTx(nonce, ins, outs)
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce for the transaction.")
	sendCmd.Flags().StringSliceVarP(&inputs, "in", "i", nil, "Unclaimed record hashes to spend.")
	sendCmd.Flags().StringSliceVarP(&outputs, "out", "o", nil, "Outputs to create as user:product.")
}
