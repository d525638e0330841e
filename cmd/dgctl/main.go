package main

import (
	"os"

	"github.com/meridian-data/governance-gateway/internal/dgcli"
)

func main() {
	if err := dgcli.Execute(); err != nil {
		os.Exit(1)
	}
}
