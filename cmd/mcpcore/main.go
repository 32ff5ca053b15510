package main

import (
	"os"

	"github.com/opencode-ai/mcpcore/cmd/mcpcore/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
