// Command tracectl runs engine operations against the configured database
// without going through the HTTP API.
package main

import (
	"fmt"
	"os"

	"traceability/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
