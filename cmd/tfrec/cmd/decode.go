package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ssargent/tfrecord/pkg/codec"
	"github.com/ssargent/tfrecord/pkg/config"
	"github.com/ssargent/tfrecord/pkg/store"
)

type decodeOptions struct {
	NoVerify   bool
	ExtractDir string
}

// recordInfo describes one decoded record
type recordInfo struct {
	Ordinal  int64  `json:"ordinal"`
	Offset   int64  `json:"offset"`
	Length   uint64 `json:"length"`
	Checksum string `json:"checksum"`
	Preview  string `json:"preview"`
	File     string `json:"file,omitempty"`
}

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <stream>",
	Short: "List the records in a stream",
	Long: `Decode a record stream and list its records in file order.

Checksums are verified unless --no-verify is given. With --extract-dir every
payload is written to its own file. Use "-" to read the stream from stdin.

Examples:
  tfrec decode events.tfrecord
  tfrec decode events.tfrecord --extract-dir ./payloads --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}

		var opts decodeOptions
		opts.NoVerify, _ = cmd.Flags().GetBool("no-verify")
		opts.ExtractDir, _ = cmd.Flags().GetString("extract-dir")

		records, decodeErr := runDecode(cfg, args[0], opts, cmd.InOrStdin(), commandLogger(cmd))

		if err := printRecords(cmd.OutOrStdout(), format, records); err != nil {
			return err
		}
		return decodeErr
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().Bool("no-verify", false, "Do not verify checksums")
	decodeCmd.Flags().String("extract-dir", "", "Write each payload to a file in this directory")
}

// walkRecords calls fn for every record of the stream at path, or of stdin
// when path is "-". It stops at the first decode error.
func walkRecords(c *config.Config, path string, verify bool, stdin io.Reader, log zerolog.Logger,
	fn func(ordinal, offset int64, rec *codec.Record) error) error {
	if path == stdioPath {
		buf, err := io.ReadAll(stdin)
		if err != nil {
			return errors.Wrap(err, "failed to read stdin")
		}
		scanner := codec.NewScanner(buf,
			codec.WithVerify(verify),
			codec.WithMaxRecordSize(c.Codec.MaxRecordSize),
		)
		for scanner.Next() {
			if err := fn(int64(scanner.Count()-1), int64(scanner.Offset()), scanner.Record()); err != nil {
				return err
			}
		}
		return scanner.Err()
	}

	if _, err := os.Stat(path); err != nil {
		return errors.Wrap(err, "failed to open stream")
	}

	reader, err := store.NewLogReader(store.LogReaderConfig{
		FilePath:      path,
		SkipVerify:    !verify,
		MaxRecordSize: c.Codec.MaxRecordSize,
		Logger:        &log,
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	iterator := reader.Iterator()
	defer iterator.Close()

	var ordinal int64
	for iterator.Next() {
		if err := fn(ordinal, iterator.Offset(), iterator.Record()); err != nil {
			return err
		}
		ordinal++
	}
	return iterator.Err()
}

// runDecode decodes the stream and returns what it decoded before any error
func runDecode(c *config.Config, path string, opts decodeOptions, stdin io.Reader, log zerolog.Logger) ([]recordInfo, error) {
	if opts.ExtractDir != "" {
		if err := os.MkdirAll(opts.ExtractDir, 0750); err != nil {
			return nil, errors.Wrap(err, "failed to create extract directory")
		}
	}

	verify := c.Codec.Verify && !opts.NoVerify
	records := make([]recordInfo, 0)

	err := walkRecords(c, path, verify, stdin, log, func(ordinal, offset int64, rec *codec.Record) error {
		info := recordInfo{
			Ordinal:  ordinal,
			Offset:   offset,
			Length:   rec.Length,
			Checksum: fmt.Sprintf("%08x", rec.PayloadCRC),
			Preview:  preview(rec.Payload),
		}

		if opts.ExtractDir != "" {
			info.File = filepath.Join(opts.ExtractDir, fmt.Sprintf("record-%06d.bin", ordinal))
			if err := os.WriteFile(info.File, rec.Payload, 0600); err != nil {
				return errors.Wrapf(err, "failed to extract record %d", ordinal)
			}
		}

		records = append(records, info)
		return nil
	})

	return records, err
}

func printRecords(w io.Writer, format string, records []recordInfo) error {
	if format == formatJSON {
		return writeJSON(w, records)
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No records found")
		return err
	}

	table := newTable(w)
	fmt.Fprintln(table, "ORDINAL\tOFFSET\tLENGTH\tCHECKSUM\tPAYLOAD")
	for _, r := range records {
		payload := r.Preview
		if r.File != "" {
			payload = r.File
		}
		fmt.Fprintf(table, "%d\t%d\t%d\t%s\t%s\n", r.Ordinal, r.Offset, r.Length, r.Checksum, payload)
	}
	return table.Flush()
}
