package cmd

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ssargent/tfrecord/pkg/codec"
	"github.com/ssargent/tfrecord/pkg/config"
	"github.com/ssargent/tfrecord/pkg/store"
)

const stdioPath = "-"

type encodeOptions struct {
	Output string // Stream file, or "-" for stdout
	Append bool   // Append to an existing stream file
	Force  bool   // Overwrite an existing stream file
	Lines  bool   // One record per input line instead of per input
}

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:   "encode [files...]",
	Short: "Frame files or stdin as records",
	Long: `Frame each input as one record and write the resulting record stream.

With no files, or with "-", the payload is read from stdin. With --lines every
input line becomes its own record. Records go to stdout unless --output names a
stream file, which is written under the stream writer lock.

Examples:
  tfrec encode a.json b.json > out.tfrecord
  tfrec encode --lines --output events.tfrecord --append < events.ndjson`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts encodeOptions
		opts.Output, _ = cmd.Flags().GetString("output")
		opts.Append, _ = cmd.Flags().GetBool("append")
		opts.Force, _ = cmd.Flags().GetBool("force")
		opts.Lines, _ = cmd.Flags().GetBool("lines")

		count, err := runEncode(cfg, args, opts, cmd.InOrStdin(), cmd.OutOrStdout(), commandLogger(cmd))
		if err != nil {
			return err
		}
		if opts.Output != stdioPath {
			cmd.PrintErrf("Encoded %d records into %s\n", count, opts.Output)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().StringP("output", "o", stdioPath, "Stream file to write (\"-\" for stdout)")
	encodeCmd.Flags().Bool("append", false, "Append to an existing stream file")
	encodeCmd.Flags().Bool("force", false, "Overwrite an existing stream file")
	encodeCmd.Flags().Bool("lines", false, "Encode every input line as its own record")
}

// recordSink receives payloads to frame
type recordSink interface {
	Append(payload []byte) error
	Close() error
}

// writerSink frames payloads onto an io.Writer
type writerSink struct {
	out   *bufio.Writer
	codec *codec.RecordCodec
}

func (s *writerSink) Append(payload []byte) error {
	record, err := s.codec.Encode(payload)
	if err != nil {
		return err
	}
	_, err = s.out.Write(record)
	return err
}

func (s *writerSink) Close() error {
	return s.out.Flush()
}

// fileSink appends payloads to a locked stream file
type fileSink struct {
	writer *store.LogWriter
}

func (s *fileSink) Append(payload []byte) error {
	_, err := s.writer.Append(payload)
	return err
}

func (s *fileSink) Close() error {
	return s.writer.Close()
}

func openSink(c *config.Config, opts encodeOptions, stdout io.Writer, log zerolog.Logger) (recordSink, error) {
	if opts.Output == stdioPath {
		return &writerSink{
			out:   bufio.NewWriter(stdout),
			codec: codec.NewRecordCodec(c.CodecOptions()...),
		}, nil
	}

	overwrite := false
	if info, err := os.Stat(opts.Output); err == nil && info.Size() > 0 && !opts.Append {
		if !opts.Force {
			return nil, errors.Newf("%s already exists (use --append or --force)", opts.Output)
		}
		overwrite = true
	}

	// The writer takes the file lock, so an existing file is only truncated
	// once no other writer can be appending to it.
	writer, err := store.NewLogWriter(store.LogWriterConfig{
		FilePath:      opts.Output,
		FsyncInterval: time.Duration(c.Writer.FsyncInterval),
		BufferSize:    c.Writer.BufferSize,
		MaxRecordSize: c.Codec.MaxRecordSize,
		Logger:        &log,
	})
	if err != nil {
		return nil, err
	}

	if overwrite {
		if err := writer.Truncate(); err != nil {
			return nil, errors.CombineErrors(errors.Wrap(err, "failed to truncate output"), writer.Close())
		}
	}
	return &fileSink{writer: writer}, nil
}

// runEncode frames every input into the sink selected by opts and returns
// the number of records written
func runEncode(c *config.Config, inputs []string, opts encodeOptions, stdin io.Reader, stdout io.Writer, log zerolog.Logger) (int, error) {
	if len(inputs) == 0 {
		inputs = []string{stdioPath}
	}

	sink, err := openSink(c, opts, stdout, log)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, input := range inputs {
		n, err := encodeInput(c, input, opts.Lines, stdin, sink)
		count += n
		if err != nil {
			_ = sink.Close()
			return count, errors.Wrapf(err, "failed to encode %s", input)
		}
	}

	if err := sink.Close(); err != nil {
		return count, errors.Wrap(err, "failed to finish output")
	}

	log.Debug().Int("records", count).Str("output", opts.Output).Msg("encode finished")
	return count, nil
}

func encodeInput(c *config.Config, input string, lines bool, stdin io.Reader, sink recordSink) (int, error) {
	var src io.Reader = stdin
	if input != stdioPath {
		file, err := os.Open(input)
		if err != nil {
			return 0, err
		}
		defer file.Close()
		src = file
	}

	if !lines {
		payload, err := io.ReadAll(src)
		if err != nil {
			return 0, err
		}
		if err := sink.Append(payload); err != nil {
			return 0, err
		}
		return 1, nil
	}

	count := 0
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), int(c.Codec.MaxRecordSize)+1)
	for scanner.Scan() {
		if err := sink.Append(scanner.Bytes()); err != nil {
			return count, err
		}
		count++
	}
	return count, scanner.Err()
}
