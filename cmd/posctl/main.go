package main

import (
	"os"

	"optikpos/backend/internal/cli"
)

func main() {
	if err := cli.NewRootCommand(cli.OpenPostgres).Execute(); err != nil {
		os.Exit(1)
	}
}
