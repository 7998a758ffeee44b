package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ideamans/keywrapper/pkg/config"
)

var (
	cfgFile string
	envFile string
	host    string
	port    int
	version = "dev" // Set by build
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "keywrapper",
	Short: "keywrapper - dummy-key shim in front of an AI gateway",
	Long: `keywrapper is an OpenAI-compatible reverse proxy for tools that insist on
holding an API key.

Clients authenticate with a dummy key. keywrapper checks it, replaces it
with the real key, and forwards every /v1/... request to the configured
AI gateway, so the real key never leaves the server.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvFile,
	// Default to serve command when no subcommand is specified
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "keywrapper.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file loaded before the configuration")
	rootCmd.PersistentFlags().StringVar(&host, "host", config.DefaultHost, "Server host address")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", config.DefaultPort, "Server port number")
}

// loadEnvFile loads the .env file without overriding variables that are
// already set. A missing file is only an error when --env-file was given.
func loadEnvFile(cmd *cobra.Command, args []string) error {
	if envFile == "" {
		return nil
	}
	err := godotenv.Load(envFile)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", envFile, err)
}
