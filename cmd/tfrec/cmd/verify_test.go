package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/tfrecord/pkg/codec"
	"github.com/ssargent/tfrecord/pkg/config"
	"github.com/ssargent/tfrecord/pkg/logging"
)

func TestRunVerify(t *testing.T) {
	tests := []struct {
		name     string
		tail     []byte
		payloads []string
		expected verifyReport
	}{
		{
			name:     "clean stream",
			payloads: []string{"ABC", "", "hello"},
			expected: verifyReport{Valid: true, Records: 3, PayloadBytes: 8, ValidSize: 56, TotalSize: 56},
		},
		{
			name:     "empty file",
			expected: verifyReport{Valid: true},
		},
		{
			name:     "torn header",
			payloads: []string{"ABC"},
			tail:     []byte{0x01, 0x02},
			expected: verifyReport{Records: 1, PayloadBytes: 3, ValidSize: 19, TotalSize: 21, Kind: "truncated_stream"},
		},
		{
			name:     "implausible length",
			payloads: []string{"ABC"},
			tail:     bytes.Repeat([]byte{0xFF}, codec.HeaderSize),
			expected: verifyReport{Records: 1, PayloadBytes: 3, ValidSize: 19, TotalSize: 31, Kind: "checksum_mismatch"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeStream(t, t.TempDir(), tt.tail, tt.payloads...)

			report, err := runVerify(config.DefaultConfig(), path, true, nil, logging.Nop())
			require.NoError(t, err)

			if !tt.expected.Valid {
				assert.NotEmpty(t, report.Error)
				report.Error = ""
			}
			tt.expected.Path = path
			assert.Equal(t, &tt.expected, report)
		})
	}
}

func TestRunVerify_Stdin(t *testing.T) {
	stream := codec.AppendRecord(codec.Encode([]byte("one")), []byte("two"))

	report, err := runVerify(config.DefaultConfig(), stdioPath, true, bytes.NewReader(stream), logging.Nop())
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, int64(2), report.Records)

	stream[len(stream)-1] ^= 0x01
	report, err = runVerify(config.DefaultConfig(), stdioPath, true, bytes.NewReader(stream), logging.Nop())
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, int64(1), report.Records)
	assert.Equal(t, int64(19), report.ValidSize)
	assert.Equal(t, "checksum_mismatch", report.Kind)

	report, err = runVerify(config.DefaultConfig(), stdioPath, false, bytes.NewReader(stream), logging.Nop())
	require.NoError(t, err)
	assert.True(t, report.Valid)
}

func TestRunVerify_MissingFile(t *testing.T) {
	_, err := runVerify(config.DefaultConfig(), filepath.Join(t.TempDir(), "missing.tfrecord"), true, nil, logging.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPrintVerifyReport(t *testing.T) {
	report := &verifyReport{
		Path: "x.tfrecord", Records: 1, ValidSize: 19, TotalSize: 21,
		Error: "truncated record stream", Kind: "truncated_stream",
	}

	var out bytes.Buffer
	require.NoError(t, printVerifyReport(&out, formatTable, report))
	assert.Contains(t, out.String(), "INVALID")
	assert.Contains(t, out.String(), "truncated_stream")
	assert.Contains(t, out.String(), "19 of 21 bytes")

	out.Reset()
	require.NoError(t, printVerifyReport(&out, formatJSON, report))
	var decoded verifyReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, *report, decoded)
}
