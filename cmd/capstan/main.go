package main

import (
	"os"

	"github.com/capstan/capstan/pkg/cli"
)

// set by the release build via -ldflags
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
