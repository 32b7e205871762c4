package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "API gateway with credential validation, rate limiting, and usage metering",
	Long: `Gateway fronts a versioned API with authentication, per-tier
rate limiting, and usage metering with overage billing.

Quick start:
  gateway serve     # Start the gateway server

Management:
  gateway keys      # Manage API keys
  gateway version   # Print version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gateway.yaml", "config file path")
}
