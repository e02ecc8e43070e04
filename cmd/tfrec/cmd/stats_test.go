package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/tfrecord/pkg/config"
	"github.com/ssargent/tfrecord/pkg/logging"
)

func TestRunStats(t *testing.T) {
	tests := []struct {
		name     string
		payloads []string
		tail     []byte
		expected streamStats
	}{
		{
			name:     "three records",
			payloads: []string{"ABC", "", "hello"},
			expected: streamStats{
				Records: 3, FileSize: 56, ValidSize: 56, PayloadBytes: 8,
				MinPayload: 0, MaxPayload: 5, AvgPayload: 8.0 / 3, Overhead: 48, Clean: true,
			},
		},
		{
			name:     "empty stream",
			expected: streamStats{Clean: true},
		},
		{
			name:     "torn tail",
			payloads: []string{"ABCD", "AB"},
			tail:     []byte{0x02, 0x00},
			expected: streamStats{
				Records: 2, FileSize: 40, ValidSize: 38, PayloadBytes: 6,
				MinPayload: 2, MaxPayload: 4, AvgPayload: 3, Overhead: 32, Kind: "truncated_stream",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeStream(t, t.TempDir(), tt.tail, tt.payloads...)

			stats, err := runStats(config.DefaultConfig(), path, logging.Nop())
			require.NoError(t, err)

			tt.expected.Path = path
			assert.InDelta(t, tt.expected.AvgPayload, stats.AvgPayload, 1e-9)
			stats.AvgPayload = tt.expected.AvgPayload
			assert.Equal(t, &tt.expected, stats)
		})
	}
}

func TestRunStats_MissingFile(t *testing.T) {
	_, err := runStats(config.DefaultConfig(), filepath.Join(t.TempDir(), "missing.tfrecord"), logging.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open stream")
}

func TestPrintStats(t *testing.T) {
	stats := &streamStats{
		Path: "x.tfrecord", Records: 2, FileSize: 40, ValidSize: 38, PayloadBytes: 6,
		MinPayload: 2, MaxPayload: 4, AvgPayload: 3, Overhead: 32, Kind: "truncated_stream",
	}

	var out bytes.Buffer
	require.NoError(t, printStats(&out, formatTable, stats))
	assert.Contains(t, out.String(), "min 2, max 4, avg 3.0")
	assert.Contains(t, out.String(), "truncated_stream after 38 bytes")

	stats.Clean = true
	out.Reset()
	require.NoError(t, printStats(&out, formatTable, stats))
	assert.Contains(t, out.String(), "clean")
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, humanBytes(tt.in))
		})
	}
}
