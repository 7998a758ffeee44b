package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ideamans/keywrapper/cmd/keywrapper/cmd/server"
	"github.com/ideamans/keywrapper/pkg/config"
	"github.com/ideamans/keywrapper/pkg/shared/logging"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	Long: `Start the keywrapper server.

The server will:
- Load the configuration file (or use defaults reading credentials from
  AI_GATEWAY_ENDPOINT_URL, DUMMY_WRAPPER_KEY and REAL_OPENAI_KEY)
- Resolve credentials on every request from env, Vault or the KVS store
- Forward /v1/... requests to the gateway with the real key
- Reload the configuration when the file changes
- Handle graceful shutdown on SIGTERM/SIGINT`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Logging settings are read once; they are not hot reloaded
	appConfig, _, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return err
	}

	logger, err := newLogger("main", appConfig.Logging)
	if err != nil {
		return err
	}

	return server.Run(context.Background(), server.Config{
		ConfigPath: cfgFile,
		Host:       host,
		Port:       port,
		HostSet:    cmd.Flags().Changed("host"),
		PortSet:    cmd.Flags().Changed("port"),
		Logger:     logger,
		Version:    version,
	})
}

// newLogger builds the logger described by the logging section
func newLogger(module string, cfg config.LoggingConfig) (logging.Logger, error) {
	level := logging.ParseLevel(cfg.Level)

	var fileRotationConfig *logging.FileRotationConfig
	if cfg.File != nil && cfg.File.Path != "" {
		fileRotationConfig = &logging.FileRotationConfig{
			Path:       cfg.File.Path,
			MaxSizeMB:  cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
	}

	logger, err := logging.NewLoggerWithFile(module, level, cfg.Color, fileRotationConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
