package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of the node",
	Run: func(cmd *cobra.Command, args []string) {
		if err := call(http.MethodGet, fmt.Sprintf("%s/v1/node/status", url), nil); err != nil {
			log.Fatal(err)
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the task engine counters of the node",
	Run: func(cmd *cobra.Command, args []string) {
		if err := call(http.MethodGet, fmt.Sprintf("%s/v1/engine/stats", url), nil); err != nil {
			log.Fatal(err)
		}
	},
}

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Ask the node to propose a block from its mempool",
	Run: func(cmd *cobra.Command, args []string) {
		if err := call(http.MethodPost, fmt.Sprintf("%s/v1/node/propose", private), nil); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(proposeCmd)
}
