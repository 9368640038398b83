package main

import (
	"os"

	"github.com/fincast-dev/fincast/internal/commands"
	"github.com/fincast-dev/fincast/internal/logging"
)

func main() {
	logging.Setup()
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
