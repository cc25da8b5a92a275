package main

import (
	"os"

	"github.com/okian/blindbox/cmd/revealctl/commands"
)

func main() {
	// Errors are printed by the commands with color formatting
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
