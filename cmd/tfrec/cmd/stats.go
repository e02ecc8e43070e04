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

// streamStats summarises a stream file
type streamStats struct {
	Path         string  `json:"path"`
	Records      int     `json:"records"`
	FileSize     int64   `json:"file_size"`
	ValidSize    int64   `json:"valid_size"`
	PayloadBytes int64   `json:"payload_bytes"`
	MinPayload   int64   `json:"min_payload"`
	MaxPayload   int64   `json:"max_payload"`
	AvgPayload   float64 `json:"avg_payload"`
	Overhead     int64   `json:"overhead_bytes"`
	Clean        bool    `json:"clean"`
	Kind         string  `json:"kind,omitempty"`
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats <stream>",
	Short: "Show record statistics for a stream",
	Long: `Index a stream file and report record counts and payload sizes.

Examples:
  tfrec stats events.tfrecord
  tfrec stats events.tfrecord --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}

		stats, err := runStats(cfg, args[0], commandLogger(cmd))
		if err != nil {
			return err
		}
		return printStats(cmd.OutOrStdout(), format, stats)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(c *config.Config, path string, log zerolog.Logger) (*streamStats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open stream")
	}

	reader, err := store.NewLogReader(store.LogReaderConfig{
		FilePath:      path,
		SkipVerify:    !c.Codec.Verify,
		MaxRecordSize: c.Codec.MaxRecordSize,
		Logger:        &log,
	})
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	index := store.NewOffsetIndex()
	buildErr := index.BuildFromLog(reader)
	if buildErr != nil && codec.ErrorKind(buildErr) == "" {
		return nil, buildErr
	}

	stats := &streamStats{
		Path:     path,
		Records:  index.Len(),
		FileSize: info.Size(),
		Clean:    buildErr == nil,
		Kind:     codec.ErrorKind(buildErr),
	}

	first := true
	index.Ascend(0, func(entry store.IndexEntry) bool {
		payload := entry.Size - codec.Overhead
		stats.PayloadBytes += payload
		stats.Overhead += codec.Overhead
		if first || payload < stats.MinPayload {
			stats.MinPayload = payload
		}
		if first || payload > stats.MaxPayload {
			stats.MaxPayload = payload
		}
		first = false
		return true
	})

	if last, ok := index.Last(); ok {
		stats.ValidSize = last.End()
	}
	if stats.Records > 0 {
		stats.AvgPayload = float64(stats.PayloadBytes) / float64(stats.Records)
	}
	return stats, nil
}

func printStats(w io.Writer, format string, s *streamStats) error {
	if format == formatJSON {
		return writeJSON(w, s)
	}

	table := newTable(w)
	fmt.Fprintf(table, "Stream:\t%s\n", s.Path)
	fmt.Fprintf(table, "Records:\t%d\n", s.Records)
	fmt.Fprintf(table, "File size:\t%s (%d bytes)\n", humanBytes(s.FileSize), s.FileSize)
	fmt.Fprintf(table, "Payload:\t%s (%d bytes)\n", humanBytes(s.PayloadBytes), s.PayloadBytes)
	fmt.Fprintf(table, "Framing:\t%d bytes\n", s.Overhead)
	if s.Records > 0 {
		fmt.Fprintf(table, "Payload size:\tmin %d, max %d, avg %.1f\n", s.MinPayload, s.MaxPayload, s.AvgPayload)
	}
	if s.Clean {
		fmt.Fprintf(table, "Tail:\tclean\n")
	} else {
		fmt.Fprintf(table, "Tail:\t%s after %d bytes (run tfrec recover)\n", s.Kind, s.ValidSize)
	}
	return table.Flush()
}
