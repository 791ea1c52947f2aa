package main

import (
	"os"

	"github.com/quantfold/sigpack/cmd/sigpack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
