package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/tfrecord/pkg/codec"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "./data", config.DataDir)
	assert.Equal(t, "records.tfrecord", config.Stream)
	assert.True(t, config.Codec.Verify)
	assert.Equal(t, codec.DefaultMaxRecordSize, config.Codec.MaxRecordSize)
	assert.Equal(t, Duration(0), config.Writer.FsyncInterval)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Bind)
	assert.Empty(t, config.Security.APIKey)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "console", config.Logging.Format)
	assert.NoError(t, config.Validate())
}

func TestGenerateSecureKey(t *testing.T) {
	t.Run("generate 32 byte key", func(t *testing.T) {
		key, err := GenerateSecureKey(32)
		require.NoError(t, err)
		assert.Len(t, key, 64)

		_, err = hex.DecodeString(key)
		assert.NoError(t, err)
	})

	t.Run("generate different keys", func(t *testing.T) {
		key1, err := GenerateSecureKey(16)
		require.NoError(t, err)
		key2, err := GenerateSecureKey(16)
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
	})

	t.Run("zero length", func(t *testing.T) {
		key, err := GenerateSecureKey(0)
		require.NoError(t, err)
		assert.Empty(t, key)
	})
}

func customConfig() *Config {
	return &Config{
		DataDir: "/custom/data",
		Stream:  "events.tfrecord",
		Staging: "/var/lib/tfrec/staging",
		Codec: Codec{
			Verify:        false,
			MaxRecordSize: 4096,
		},
		Writer: Writer{
			FsyncInterval: Duration(250 * time.Millisecond),
			BufferSize:    8192,
		},
		Server: Server{
			Port: 9000,
			Bind: "0.0.0.0",
		},
		Security: Security{
			APIKey: "test-api-key",
		},
		Logging: Logging{
			Level:  "debug",
			Format: "json",
		},
	}
}

func TestLoadConfig(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run("round trip "+name, func(t *testing.T) {
			tmpDir, err := os.MkdirTemp("", "tfrec_config_test")
			require.NoError(t, err)
			defer os.RemoveAll(tmpDir)

			configPath := filepath.Join(tmpDir, name)
			expectedConfig := customConfig()

			require.NoError(t, SaveConfig(expectedConfig, configPath))

			loadedConfig, err := LoadConfig(configPath)
			require.NoError(t, err)
			assert.Equal(t, expectedConfig, loadedConfig)
		})
	}

	t.Run("load non-existent config", func(t *testing.T) {
		_, err := LoadConfig("/non/existent/config.yaml")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "config file does not exist")
	})

	t.Run("load invalid yaml", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "tfrec_config_test")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		configPath := filepath.Join(tmpDir, "invalid.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644))

		_, err = LoadConfig(configPath)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("load invalid toml", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "tfrec_config_test")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		configPath := filepath.Join(tmpDir, "invalid.toml")
		require.NoError(t, os.WriteFile(configPath, []byte("[server\nport = "), 0644))

		_, err = LoadConfig(configPath)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "tfrec_config_test")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		configPath := filepath.Join(tmpDir, "partial.toml")
		content := "stream = \"audit.tfrecord\"\n\n[writer]\nfsync_interval = \"1s\"\n"
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		config, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, "audit.tfrecord", config.Stream)
		assert.Equal(t, Duration(time.Second), config.Writer.FsyncInterval)
		assert.Equal(t, 8080, config.Server.Port)
		assert.True(t, config.Codec.Verify)
	})

	t.Run("bad duration", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "tfrec_config_test")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		configPath := filepath.Join(tmpDir, "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("writer:\n  fsync_interval: soon\n"), 0644))

		_, err = LoadConfig(configPath)
		assert.Error(t, err)
	})
}

func TestLoadOrDefault(t *testing.T) {
	config, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)

	config, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}

func TestSaveConfig(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "tfrec_config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	config := DefaultConfig()

	require.NoError(t, SaveConfig(config, configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestBootstrapConfig(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "tfrec_config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	dataDir := "/custom/data/dir"

	config, err := BootstrapConfig(configPath, dataDir)
	require.NoError(t, err)

	assert.Equal(t, dataDir, config.DataDir)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "info", config.Logging.Level)

	assert.Len(t, config.Security.APIKey, 64)
	_, err = hex.DecodeString(config.Security.APIKey)
	assert.NoError(t, err)

	assert.True(t, ConfigExists(configPath))

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"missing stream", func(c *Config) { c.Stream = "" }, "stream file name"},
		{"zero record size", func(c *Config) { c.Codec.MaxRecordSize = 0 }, "max_record_size"},
		{"negative fsync", func(c *Config) { c.Writer.FsyncInterval = Duration(-time.Second) }, "fsync_interval"},
		{"negative buffer", func(c *Config) { c.Writer.BufferSize = -1 }, "buffer_size"},
		{"port range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPaths(t *testing.T) {
	config := DefaultConfig()
	config.DataDir = "/srv/tfrec"

	assert.Equal(t, "/srv/tfrec/records.tfrecord", config.StreamPath())
	assert.Equal(t, "/srv/tfrec/staging", config.StagingPath())

	config.Stream = "/mnt/other.tfrecord"
	assert.Equal(t, "/mnt/other.tfrecord", config.StreamPath())
}

func TestCodecOptions(t *testing.T) {
	config := DefaultConfig()
	config.Codec.Verify = false
	config.Codec.MaxRecordSize = 128

	c := codec.NewRecordCodec(config.CodecOptions()...)
	assert.False(t, c.Verify())
	assert.Equal(t, uint64(128), c.MaxRecordSize())
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, "tfrec")
	assert.Contains(t, path, "config.yaml")
}

func TestConfigExists(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "tfrec_config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	existingPath := filepath.Join(tmpDir, "exists.yaml")
	nonExistentPath := filepath.Join(tmpDir, "does-not-exist.yaml")

	require.NoError(t, os.WriteFile(existingPath, []byte("test"), 0644))

	assert.True(t, ConfigExists(existingPath))
	assert.False(t, ConfigExists(nonExistentPath))
}

func TestConfigYAMLMarshalling(t *testing.T) {
	config := customConfig()

	data, err := yaml.Marshal(config)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fsync_interval: 250ms")

	var unmarshalled Config
	require.NoError(t, yaml.Unmarshal(data, &unmarshalled))

	assert.Equal(t, config, &unmarshalled)
}

func TestSaveConfigErrorHandling(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "tfrec_config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	blocker := filepath.Join(tmpDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	err = SaveConfig(DefaultConfig(), filepath.Join(blocker, "config.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}

func TestLoggingConfig(t *testing.T) {
	config := DefaultConfig()
	config.Logging.Level = "debug"
	config.Logging.Format = "json"

	cfg := config.LoggingConfig()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.Timestamp)
}
