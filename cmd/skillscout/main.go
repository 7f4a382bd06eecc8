// Package main provides the entry point for the skillscout CLI.
package main

import (
	"os"

	"github.com/skillscout/skillscout/cmd/skillscout/cmd"
	"github.com/skillscout/skillscout/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// Configuration problems exit 1, unrecoverable runtime failures
		// exit 2, so wrappers can tell "fix the config" from "it crashed".
		if errors.HasCode(err, errors.CodeConfigInvalid) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
