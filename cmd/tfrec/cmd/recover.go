package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ssargent/tfrecord/pkg/codec"
	"github.com/ssargent/tfrecord/pkg/config"
	"github.com/ssargent/tfrecord/pkg/store"
)

// recoverReport is the outcome of a repair
type recoverReport struct {
	*store.RecoveryResult
	Path   string `json:"path"`
	DryRun bool   `json:"dry_run"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// recoverCmd represents the recover command
var recoverCmd = &cobra.Command{
	Use:   "recover <stream>",
	Short: "Truncate a stream to its last intact record",
	Long: `Scan a stream file and cut it back to the end of the last record that
verifies. A torn write at the tail, or any corrupt record and everything after
it, is removed. The stream writer lock is held while the file is repaired.

Examples:
  tfrec recover events.tfrecord
  tfrec recover events.tfrecord --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		report, err := runRecover(cfg, args[0], dryRun, commandLogger(cmd))
		if err != nil {
			return err
		}
		return printRecoverReport(cmd.OutOrStdout(), format, report)
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
	recoverCmd.Flags().Bool("dry-run", false, "Report what would be truncated without changing the file")
}

func runRecover(c *config.Config, path string, dryRun bool, log zerolog.Logger) (*recoverReport, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "failed to open stream")
	}

	readerConfig := store.LogReaderConfig{
		FilePath:      path,
		SkipVerify:    !c.Codec.Verify,
		MaxRecordSize: c.Codec.MaxRecordSize,
		Logger:        &log,
	}

	var result *store.RecoveryResult
	var err error
	if dryRun {
		result, err = store.Check(readerConfig)
		if err == nil && !result.Clean() {
			result.BytesTruncated = result.FileSizeBefore - result.ValidSize
			result.FileSizeAfter = result.ValidSize
		}
	} else {
		result, err = store.Recover(readerConfig)
	}
	if err != nil {
		return nil, err
	}

	report := &recoverReport{RecoveryResult: result, Path: path, DryRun: dryRun}
	if result.Cause != nil {
		report.Error = result.Cause.Error()
		report.Kind = codec.ErrorKind(result.Cause)
	}
	return report, nil
}

func printRecoverReport(w io.Writer, format string, r *recoverReport) error {
	if format == formatJSON {
		return writeJSON(w, r)
	}

	if r.Clean() {
		_, err := fmt.Fprintf(w, "%s is clean: %d records, %d bytes\n", r.Path, r.RecordsValidated, r.ValidSize)
		return err
	}

	verb := "Truncated"
	if r.DryRun {
		verb = "Would truncate"
	}

	table := newTable(w)
	fmt.Fprintf(table, "Stream:\t%s\n", r.Path)
	fmt.Fprintf(table, "Records kept:\t%d\n", r.RecordsValidated)
	fmt.Fprintf(table, "%s:\t%d bytes (%d -> %d)\n", verb, r.BytesTruncated, r.FileSizeBefore, r.FileSizeAfter)
	fmt.Fprintf(table, "Cause:\t%s\n", r.Kind)
	fmt.Fprintf(table, "Error:\t%s\n", r.Error)
	return table.Flush()
}
