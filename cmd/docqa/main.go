// Command docqa answers questions about documents in any language. It offers
// a one-shot CLI, an HTTP API, a directory watcher and an MCP stdio server
// over the same retrieval pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
