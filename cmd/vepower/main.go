package main

import (
	"os"

	"github.com/OlympusDAO/olympus-v3-sub011/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
