// Command flashctl computes order identities, signatures, event hashes and
// dev proofs for the Flash settlement protocol.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
