package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/linkside/gateway/bootstrap"
	"github.com/linkside/gateway/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the gateway server.

The server will:
  - Load configuration from gateway.yaml (or --config)
  - Or load configuration from GATEWAY_* environment variables
  - Connect to the configured document store
  - Serve versioned API requests with authentication, rate limiting,
    and usage metering

Environment variables (for Docker deployments):
  GATEWAY_STORE_DRIVER   - Store driver: memory, sqlite, or mongo
  GATEWAY_STORE_DSN      - Store DSN (default: gateway.db)
  GATEWAY_SERVER_PORT    - Server port (default: 8080)
  GATEWAY_LOG_LEVEL      - Log level: debug, info, warn, error

Examples:
  gateway serve
  gateway serve --config /etc/gateway/config.yaml
  gateway serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	if !hasConfigFile && !config.HasEnvConfig() {
		fmt.Println("No configuration found.")
		fmt.Println()
		fmt.Printf("Option 1: Create %s\n", cfgFile)
		fmt.Println("Option 2: Set GATEWAY_* environment variables")
		fmt.Println()
		fmt.Println("Example (env vars):")
		fmt.Println("  GATEWAY_STORE_DRIVER=memory gateway serve")
		return nil
	}

	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with a config file.
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}

		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}

		app, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	return app.Run()
}
