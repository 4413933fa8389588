// SPDX-License-Identifier: MIT

// Package app provides the entry point for the credential provider
// command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "credprovider",
	DisableAutoGenTag: true,
	Short:             "Credential provider for Azure Artifacts package feeds",
	Long: `credprovider resolves credentials for Azure Artifacts package feeds on
behalf of package-manager tooling. It acquires a bearer token from the
enterprise identity provider using whichever strategy the environment
supports, exchanges it for a feed session token, and caches the result
for subsequent restores.

Diagnostics go to stderr; stdout carries only the credential response.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Re-initialize so the --debug flag takes effect.
		logger.Initialize()
	},
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the credential provider CLI.
func NewRootCmd() *cobra.Command {
	// Add persistent flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	// Add subcommands
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
