package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/tfrecord/pkg/codec"
	"github.com/ssargent/tfrecord/pkg/config"
	"github.com/ssargent/tfrecord/pkg/di"
	"github.com/ssargent/tfrecord/pkg/storage"
)

func newTestStaging(t *testing.T) *storage.DefaultStorage {
	t.Helper()
	staging, err := storage.NewDefaultStorage(filepath.Join(t.TempDir(), "staging"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = staging.Close() })
	return staging
}

func TestRunStagePut(t *testing.T) {
	tests := []struct {
		name     string
		inputs   func(dir string) []string
		stdin    string
		lines    bool
		expected []string
	}{
		{
			name:     "stdin",
			inputs:   func(string) []string { return nil },
			stdin:    "whole payload\n",
			expected: []string{"whole payload\n"},
		},
		{
			name:     "stdin lines",
			inputs:   func(string) []string { return nil },
			stdin:    "a\nb\nc",
			lines:    true,
			expected: []string{"a", "b", "c"},
		},
		{
			name: "files",
			inputs: func(dir string) []string {
				return []string{writeInput(t, dir, "x.bin", "x"), writeInput(t, dir, "y.bin", "yy")}
			},
			expected: []string{"x", "yy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			staging := newTestStaging(t)

			ids, err := runStagePut(config.DefaultConfig(), staging, tt.inputs(t.TempDir()), tt.lines, strings.NewReader(tt.stdin))
			require.NoError(t, err)
			require.Len(t, ids, len(tt.expected))

			for i, want := range tt.expected {
				data, err := staging.Read(&ids[i])
				require.NoError(t, err)
				assert.Equal(t, want, string(data))
			}
		})
	}
}

func TestRunStagePut_TooLarge(t *testing.T) {
	staging := newTestStaging(t)
	c := config.DefaultConfig()
	c.Codec.MaxRecordSize = 2

	ids, err := runStagePut(c, staging, nil, true, strings.NewReader("ok\ntoo long\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max_record_size")
	assert.Len(t, ids, 1)
}

func TestRunStageList(t *testing.T) {
	staging := newTestStaging(t)
	_, err := runStagePut(config.DefaultConfig(), staging, nil, true, strings.NewReader("first\nsecond\nthird\n"))
	require.NoError(t, err)

	payloads, err := runStageList(staging, 0)
	require.NoError(t, err)
	require.Len(t, payloads, 3)
	assert.Equal(t, `"first"`, payloads[0].Preview)
	assert.Equal(t, 6, payloads[1].Size)
	assert.Equal(t, `"third"`, payloads[2].Preview)

	limited, err := runStageList(staging, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	var out bytes.Buffer
	require.NoError(t, printStaged(&out, formatTable, payloads))
	assert.Contains(t, out.String(), payloads[0].ID)

	out.Reset()
	require.NoError(t, printStaged(&out, formatTable, nil))
	assert.Equal(t, "No staged payloads\n", out.String())
}

func TestRunStageExport(t *testing.T) {
	staging := newTestStaging(t)
	_, err := runStagePut(config.DefaultConfig(), staging, nil, true, strings.NewReader("a\nbb\n"))
	require.NoError(t, err)

	t.Run("stdout", func(t *testing.T) {
		var out bytes.Buffer
		count, err := runStageExport(staging, stdioPath, false, &out)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		payloads, err := codec.DecodeAllStrict(out.Bytes())
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("a"), []byte("bb")}, payloads)
	})

	t.Run("file and clear", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "batch.tfrecord")
		count, err := runStageExport(staging, path, true, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		payloads, err := codec.DecodeAllStrict(data)
		require.NoError(t, err)
		assert.Len(t, payloads, 2)

		remaining, err := staging.Count()
		require.NoError(t, err)
		assert.Zero(t, remaining)
	})
}

func TestRunStageImport(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		staging := newTestStaging(t)
		path := writeStream(t, t.TempDir(), nil, "one", "two", "three")

		count, err := runStageImport(config.DefaultConfig(), staging, path, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		payloads, err := runStageList(staging, 0)
		require.NoError(t, err)
		require.Len(t, payloads, 3)
		assert.Equal(t, `"three"`, payloads[2].Preview)
	})

	t.Run("stdin with torn tail", func(t *testing.T) {
		staging := newTestStaging(t)
		stream := append(codec.Encode([]byte("kept")), 0x03, 0x00)

		count, err := runStageImport(config.DefaultConfig(), staging, stdioPath, bytes.NewReader(stream))
		require.Error(t, err)
		assert.True(t, errors.Is(err, codec.ErrTruncatedStream), "got %v", err)
		assert.Equal(t, 1, count)

		staged, err := staging.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, staged)
	})

	t.Run("missing file", func(t *testing.T) {
		staging := newTestStaging(t)
		_, err := runStageImport(config.DefaultConfig(), staging, filepath.Join(t.TempDir(), "nope"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open stream")
	})
}

func TestWithStaging(t *testing.T) {
	previous := cfg
	cfg = config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	t.Cleanup(func() { cfg = previous })
	useContainer(t, di.NewContainer())

	require.NoError(t, withStaging(func(staging storage.Storage) error {
		_, err := staging.Create([]byte("persisted"))
		return err
	}))

	// The staging area is closed between calls and reopened from disk.
	require.NoError(t, withStaging(func(staging storage.Storage) error {
		count, err := staging.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		return nil
	}))

	err := withStaging(func(storage.Storage) error {
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
