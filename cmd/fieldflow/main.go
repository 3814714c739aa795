package main

import (
	"os"

	"github.com/solatis/fieldflow/cmd/fieldflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
