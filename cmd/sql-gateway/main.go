// Package main provides the entry point for the sql-gateway.
package main

import (
	"fmt"
	"os"

	"github.com/txn2/sql-gateway/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
