// This program performs administrative tasks for the node.
package main

import "github.com/quorumchain/node/app/tooling/admin/cmd"

func main() {
	cmd.Execute()
}
