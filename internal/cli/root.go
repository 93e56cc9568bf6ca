// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// configFile is the path to the YAML configuration file.
	configFile string

	// verbose enables debug output.
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "passkey",
	Short: "go-passkey - passwordless public-key authentication server",
	Long: `go-passkey runs the server side of WebAuthn-style passkey
ceremonies: credential registration, one-time challenge issuance, and
assertion verification with replay, cross-origin and cloned
authenticator rejection.

Credentials are stored in memory or in a file-backed store depending
on configuration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is built-in development configuration)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(versionCmd)
}

// handleError prints an error and exits with code 1
func handleError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}
