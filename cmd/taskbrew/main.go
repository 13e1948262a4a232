package main

import (
	"os"

	"github.com/dotcommander/taskbrew/internal/commands"
)

// version is set via -ldflags "-X main.version=..." at build time.
var version = "dev"

func main() {
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
