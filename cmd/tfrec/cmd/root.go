/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ssargent/tfrecord/pkg/config"
	"github.com/ssargent/tfrecord/pkg/di"
	"github.com/ssargent/tfrecord/pkg/logging"
)

var (
	container *di.Container
	cfg       = config.DefaultConfig()
	logger    = logging.Nop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tfrec",
	Short: "tfrec - checksummed record streams",
	Long: `tfrec reads and writes TFRecord-style record streams: length-prefixed
payloads protected by masked CRC32C checksums.

It can frame files into a stream, list and extract records, verify a stream,
repair a torn tail, stage payloads before framing them and serve a stream
over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		logLevel, _ := cmd.Flags().GetString("log-level")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		loaded, err := loadConfig(configPath, logLevel, dataDir)
		if err != nil {
			return err
		}
		cfg = loaded

		logCfg := cfg.LoggingConfig()
		logCfg.Output = cmd.ErrOrStderr()
		logger = logging.New(logCfg)
		return nil
	},
}

// SetContainer injects the dependency container used by the commands
func SetContainer(c *di.Container) {
	container = c
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file (default: ~/.config/tfrec/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory override")
	rootCmd.PersistentFlags().String("format", "table", "Output format (table or json)")
}

// loadConfig reads the config file, falling back to defaults when it does not
// exist, and applies command line overrides
func loadConfig(configPath, logLevel, dataDir string) (*config.Config, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = config.GetDefaultConfigPath()
	}

	var loaded *config.Config
	var err error
	if explicit {
		loaded, err = config.LoadConfig(configPath)
	} else {
		loaded, err = config.LoadOrDefault(configPath)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}

	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if dataDir != "" {
		loaded.DataDir = dataDir
	}

	if err := loaded.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return loaded, nil
}

// requireContainer returns the injected container
func requireContainer() (*di.Container, error) {
	if container == nil {
		return nil, errors.New("dependency container not initialized")
	}
	return container, nil
}

// commandLogger returns the logger tagged with the running command
func commandLogger(cmd *cobra.Command) zerolog.Logger {
	return logger.With().Str("cmd", cmd.Name()).Logger()
}
