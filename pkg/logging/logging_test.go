package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw    string
		want   zerolog.Level
		wantOK bool
	}{
		{"", zerolog.InfoLevel, true},
		{"debug", zerolog.DebugLevel, true},
		{" WARNING ", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"off", zerolog.Disabled, true},
		{"trace", zerolog.TraceLevel, true},
		{"verbose", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseLevel(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: FormatJSON, Output: &buf})

	log.Info().Msg("hidden")
	log.Warn().Int64("offset", 19).Msg("corrupt record")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "corrupt record", entry["message"])
	assert.Equal(t, float64(19), entry["offset"])
	assert.NotContains(t, entry, "time")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: FormatConsole, NoColor: true, Output: &buf})

	log.Debug().Str("file", "a.tfrecord").Msg("opened")
	assert.Contains(t, buf.String(), "opened")
	assert.Contains(t, buf.String(), "file=a.tfrecord")
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogTimestamp, "true")

	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: FormatConsole, Output: &buf})

	log.Warn().Msg("hidden")
	log.Error().Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_InvalidEnvIsIgnored(t *testing.T) {
	t.Setenv(EnvLogLevel, "chatty")
	t.Setenv(EnvLogNoColor, "maybe")

	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: FormatJSON, Output: &buf})
	log.Info().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNop(t *testing.T) {
	log := Nop()
	assert.Equal(t, zerolog.Disabled, log.GetLevel())
}
