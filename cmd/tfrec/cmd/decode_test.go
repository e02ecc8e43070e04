package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/tfrecord/pkg/codec"
	"github.com/ssargent/tfrecord/pkg/config"
	"github.com/ssargent/tfrecord/pkg/logging"
)

func TestRunDecode(t *testing.T) {
	dir := t.TempDir()
	path := writeStream(t, dir, nil, "ABC", "", "hello")

	records, err := runDecode(config.DefaultConfig(), path, decodeOptions{}, nil, logging.Nop())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, recordInfo{Ordinal: 0, Offset: 0, Length: 3, Checksum: "f581fb4b", Preview: `"ABC"`}, records[0])
	assert.Equal(t, int64(19), records[1].Offset)
	assert.Equal(t, `""`, records[1].Preview)
	assert.Equal(t, int64(35), records[2].Offset)
	assert.Equal(t, uint64(5), records[2].Length)
}

func TestRunDecode_Stdin(t *testing.T) {
	stream := codec.AppendRecord(codec.Encode([]byte("one")), []byte("two"))

	records, err := runDecode(config.DefaultConfig(), stdioPath, decodeOptions{},
		bytes.NewReader(stream), logging.Nop())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[1].Ordinal)
	assert.Equal(t, int64(19), records[1].Offset)
	assert.Equal(t, `"two"`, records[1].Preview)
}

func TestRunDecode_Extract(t *testing.T) {
	dir := t.TempDir()
	path := writeStream(t, dir, nil, "first", "second")
	extractDir := filepath.Join(dir, "payloads")

	records, err := runDecode(config.DefaultConfig(), path, decodeOptions{ExtractDir: extractDir}, nil, logging.Nop())
	require.NoError(t, err)
	require.Len(t, records, 2)

	for i, want := range []string{"first", "second"} {
		require.NotEmpty(t, records[i].File)
		data, err := os.ReadFile(records[i].File)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
	assert.Equal(t, filepath.Join(extractDir, "record-000001.bin"), records[1].File)
}

func TestRunDecode_Corruption(t *testing.T) {
	dir := t.TempDir()
	path := writeStream(t, dir, nil, "good", "flip")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[20+codec.HeaderSize] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0600))

	t.Run("verified", func(t *testing.T) {
		records, err := runDecode(config.DefaultConfig(), path, decodeOptions{}, nil, logging.Nop())
		require.Error(t, err)
		assert.True(t, errors.Is(err, codec.ErrChecksumMismatch), "got %v", err)
		require.Len(t, records, 1)
		assert.Equal(t, `"good"`, records[0].Preview)
	})

	t.Run("no verify", func(t *testing.T) {
		records, err := runDecode(config.DefaultConfig(), path, decodeOptions{NoVerify: true}, nil, logging.Nop())
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("verification disabled in config", func(t *testing.T) {
		c := config.DefaultConfig()
		c.Codec.Verify = false
		records, err := runDecode(c, path, decodeOptions{}, nil, logging.Nop())
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})
}

func TestRunDecode_TornTail(t *testing.T) {
	dir := t.TempDir()
	path := writeStream(t, dir, []byte{0x05, 0x00, 0x00}, "kept")

	records, err := runDecode(config.DefaultConfig(), path, decodeOptions{}, nil, logging.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrTruncatedStream), "got %v", err)
	assert.Len(t, records, 1)
}

func TestRunDecode_MissingFile(t *testing.T) {
	_, err := runDecode(config.DefaultConfig(), filepath.Join(t.TempDir(), "missing.tfrecord"),
		decodeOptions{}, nil, logging.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open stream")
}

func TestPrintRecords(t *testing.T) {
	records := []recordInfo{
		{Ordinal: 0, Offset: 0, Length: 3, Checksum: "f581fb4b", Preview: `"ABC"`},
	}

	t.Run("table", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printRecords(&out, formatTable, records))
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "ORDINAL")
		assert.Contains(t, lines[1], "f581fb4b")
		assert.Contains(t, lines[1], `"ABC"`)
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printRecords(&out, formatJSON, records))
		var decoded []recordInfo
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		assert.Equal(t, records, decoded)
	})

	t.Run("empty", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printRecords(&out, formatTable, nil))
		assert.Equal(t, "No records found\n", out.String())
	})
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    string
	}{
		{"empty", nil, `""`},
		{"text", []byte("hello world"), `"hello world"`},
		{"binary", []byte{0x00, 0xFF, 0x10}, "0x00ff10"},
		{"long text", []byte(strings.Repeat("a", 40)), `"` + strings.Repeat("a", 32) + `"...`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, preview(tt.payload))
		})
	}
}
