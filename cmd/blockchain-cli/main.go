// Command blockchain-cli is the single entrypoint binary: a thin shell
// around cli.Run.
package main

import (
	"fmt"
	"os"

	"github.com/utxochain/ledger/cli"
)

func main() {
	if err := cli.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
