// Command gundog is the CLI entrypoint for the local semantic retrieval
// engine: it wires the scanner/chunk/embed/ingest pipeline, the hybrid
// query engine, the index registry, and the daemon into a set of cobra
// subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/gundog/gundog/cmd/gundog/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
