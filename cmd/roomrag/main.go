// Command roomrag serves room-scoped question answering over uploaded
// documents. It provides a CLI (via Cobra) for administration and one-off
// questions, and an HTTP API started with `roomrag serve`.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/roomrag-go/cmd/roomrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
