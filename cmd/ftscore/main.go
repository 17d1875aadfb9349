// Package main provides the entry point for the ftscore CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/ftscore/cmd/ftscore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
