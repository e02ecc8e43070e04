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

// ErrInvalidStream is returned when a stream does not verify
var ErrInvalidStream = errors.New("stream failed verification")

// verifyReport is the outcome of a strict scan
type verifyReport struct {
	Path         string `json:"path"`
	Valid        bool   `json:"valid"`
	Records      int64  `json:"records"`
	PayloadBytes int64  `json:"payload_bytes"`
	ValidSize    int64  `json:"valid_size"`
	TotalSize    int64  `json:"total_size"`
	Error        string `json:"error,omitempty"`
	Kind         string `json:"kind,omitempty"`
}

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <stream>",
	Short: "Strictly check a stream",
	Long: `Verify every record of a stream and report where it stops being valid.

The command exits non-zero when the stream has a torn tail, a checksum mismatch
or an implausible length. Use "-" to read the stream from stdin.

Examples:
  tfrec verify events.tfrecord
  cat events.tfrecord | tfrec verify - --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		noVerify, _ := cmd.Flags().GetBool("no-verify")

		report, err := runVerify(cfg, args[0], !noVerify, cmd.InOrStdin(), commandLogger(cmd))
		if err != nil {
			return err
		}

		if err := printVerifyReport(cmd.OutOrStdout(), format, report); err != nil {
			return err
		}
		if !report.Valid {
			return errors.Wrapf(ErrInvalidStream, "%s: %s", report.Path, report.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Bool("no-verify", false, "Only check framing, not checksums")
}

// runVerify scans the stream at path, or stdin when path is "-". Decode
// failures end up in the report; only I/O problems return an error.
func runVerify(c *config.Config, path string, verify bool, stdin io.Reader, log zerolog.Logger) (*verifyReport, error) {
	report := &verifyReport{Path: path}

	if path == stdioPath {
		buf, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read stdin")
		}
		scanner := codec.NewScanner(buf,
			codec.WithVerify(verify),
			codec.WithMaxRecordSize(c.Codec.MaxRecordSize),
		)
		for scanner.Next() {
			report.PayloadBytes += int64(len(scanner.Payload()))
		}
		report.Records = int64(scanner.Count())
		report.ValidSize = int64(scanner.Consumed())
		report.TotalSize = int64(len(buf))
		report.setCause(scanner.Err())
		return report, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "failed to open stream")
	}

	result, err := store.Check(store.LogReaderConfig{
		FilePath:      path,
		SkipVerify:    !verify,
		MaxRecordSize: c.Codec.MaxRecordSize,
		Logger:        &log,
	})
	if err != nil {
		return nil, err
	}

	report.Records = result.RecordsValidated
	report.PayloadBytes = result.PayloadBytes
	report.ValidSize = result.ValidSize
	report.TotalSize = result.FileSizeBefore
	report.setCause(result.Cause)
	return report, nil
}

func (r *verifyReport) setCause(err error) {
	r.Valid = err == nil
	if err != nil {
		r.Error = err.Error()
		r.Kind = codec.ErrorKind(err)
	}
}

func printVerifyReport(w io.Writer, format string, r *verifyReport) error {
	if format == formatJSON {
		return writeJSON(w, r)
	}

	table := newTable(w)
	status := "OK"
	if !r.Valid {
		status = "INVALID"
	}
	fmt.Fprintf(table, "Stream:\t%s\n", r.Path)
	fmt.Fprintf(table, "Status:\t%s\n", status)
	fmt.Fprintf(table, "Records:\t%d\n", r.Records)
	fmt.Fprintf(table, "Payload:\t%s\n", humanBytes(r.PayloadBytes))
	fmt.Fprintf(table, "Valid size:\t%d of %d bytes\n", r.ValidSize, r.TotalSize)
	if !r.Valid {
		fmt.Fprintf(table, "Failure:\t%s\n", r.Kind)
		fmt.Fprintf(table, "Error:\t%s\n", r.Error)
	}
	return table.Flush()
}
