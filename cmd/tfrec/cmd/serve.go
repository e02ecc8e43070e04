/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/tfrecord/pkg/api"
	"github.com/ssargent/tfrecord/pkg/config"
	"github.com/ssargent/tfrecord/pkg/store"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured stream over HTTP",
	Long: `Open the configured stream, repairing a torn tail, and serve it through the
REST API until interrupted.

Requests must carry the configured API key in the X-API-Key header unless the
key is empty. Prometheus metrics are served unauthenticated at /metrics.

Examples:
  tfrec serve
  tfrec serve --port 9000 --bind 0.0.0.0 --api-key mysecretkey`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("bind") {
			cfg.Server.Bind, _ = cmd.Flags().GetString("bind")
		}
		if cmd.Flags().Changed("api-key") {
			cfg.Security.APIKey, _ = cmd.Flags().GetString("api-key")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServe(ctx, cmd, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind server to")
	serveCmd.Flags().String("api-key", "", "API key required from clients (empty disables authentication)")
}

func runServe(ctx context.Context, cmd *cobra.Command, c *config.Config) error {
	deps, err := requireContainer()
	if err != nil {
		return err
	}
	log := commandLogger(cmd)

	stream, recovery, err := deps.GetStreamOpener()(store.StreamConfig{
		FilePath:      c.StreamPath(),
		FsyncInterval: time.Duration(c.Writer.FsyncInterval),
		BufferSize:    c.Writer.BufferSize,
		MaxRecordSize: c.Codec.MaxRecordSize,
		SkipVerify:    !c.Codec.Verify,
		Logger:        &log,
	})
	if err != nil {
		return errors.Wrap(err, "failed to open stream")
	}
	defer stream.Close()

	if recovery.Truncated {
		cmd.PrintErrf("Recovered %s: %d bytes truncated after %d records\n",
			c.StreamPath(), recovery.BytesTruncated, recovery.RecordsValidated)
	}

	if c.Security.APIKey == "" {
		log.Warn().Msg("API key is empty; authentication is disabled")
	}

	starter := deps.GetServerFactory().CreateServerStarter()
	return starter.StartServer(ctx, stream, api.ServerConfig{
		Port:          c.Server.Port,
		Bind:          c.Server.Bind,
		APIKey:        c.Security.APIKey,
		MaxRecordSize: c.Codec.MaxRecordSize,
	}, log)
}
