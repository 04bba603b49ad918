package main

import (
	"os"

	"github.com/maintai/abtest/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
