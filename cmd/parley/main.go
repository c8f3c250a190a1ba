package main

import (
	"os"

	"github.com/parleylabs/parley/cmd/parley/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
