// SPDX-License-Identifier: MIT

// Package main is the entry point for the credential provider CLI.
package main

import (
	"os"

	"github.com/azdo-tools/artifacts-credprovider/cmd/credprovider/app"
	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
