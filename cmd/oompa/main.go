package main

import (
	"os"

	"github.com/oompa-dev/oompa/cmd/oompa/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
