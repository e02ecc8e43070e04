/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/tfrecord/pkg/codec"
	"github.com/ssargent/tfrecord/pkg/logging"
)

// Config represents the tfrec configuration
type Config struct {
	DataDir  string   `yaml:"data_dir" toml:"data_dir"`
	Stream   string   `yaml:"stream" toml:"stream"`
	Staging  string   `yaml:"staging" toml:"staging"`
	Codec    Codec    `yaml:"codec" toml:"codec"`
	Writer   Writer   `yaml:"writer" toml:"writer"`
	Server   Server   `yaml:"server" toml:"server"`
	Security Security `yaml:"security" toml:"security"`
	Logging  Logging  `yaml:"logging" toml:"logging"`
}

// Codec controls record decoding
type Codec struct {
	Verify        bool   `yaml:"verify" toml:"verify"`
	MaxRecordSize uint64 `yaml:"max_record_size" toml:"max_record_size"`
}

// Writer controls how records are appended to the stream file
type Writer struct {
	FsyncInterval Duration `yaml:"fsync_interval" toml:"fsync_interval"`
	BufferSize    int      `yaml:"buffer_size" toml:"buffer_size"`
}

// Server contains HTTP server configuration
type Server struct {
	Port int    `yaml:"port" toml:"port"`
	Bind string `yaml:"bind" toml:"bind"`
}

// Security contains security-related configuration
type Security struct {
	APIKey string `yaml:"api_key" toml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Duration is a time.Duration written as a string such as "250ms"
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", text)
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Stream:  "records.tfrecord",
		Staging: "staging",
		Codec: Codec{
			Verify:        true,
			MaxRecordSize: codec.DefaultMaxRecordSize,
		},
		Writer: Writer{
			FsyncInterval: 0,
			BufferSize:    64 * 1024,
		},
		Server: Server{
			Port: 8080,
			Bind: "127.0.0.1",
		},
		Security: Security{
			APIKey: "",
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from the specified path. Files ending in
// .toml are read as TOML, anything else as YAML. Fields missing from the file
// keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.Newf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "invalid config path")
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := DefaultConfig()
	if isTOML(configPath) {
		err = toml.Unmarshal(data, config)
	} else {
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// LoadOrDefault loads the config at configPath when it exists and returns the
// defaults otherwise.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath == "" || !ConfigExists(configPath) {
		return DefaultConfig(), nil
	}
	return LoadConfig(configPath)
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(config); err != nil {
			return errors.Wrap(err, "failed to marshal config")
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(config); err != nil {
			return errors.Wrap(err, "failed to marshal config")
		}
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// Validate checks the configuration for values the rest of the program cannot
// work with.
func (c *Config) Validate() error {
	var errs error
	if c.Stream == "" {
		errs = errors.CombineErrors(errs, errors.New("stream file name is required"))
	}
	if c.Codec.MaxRecordSize == 0 {
		errs = errors.CombineErrors(errs, errors.New("codec.max_record_size must be positive"))
	}
	if c.Writer.FsyncInterval < 0 {
		errs = errors.CombineErrors(errs, errors.New("writer.fsync_interval cannot be negative"))
	}
	if c.Writer.BufferSize < 0 {
		errs = errors.CombineErrors(errs, errors.New("writer.buffer_size cannot be negative"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = errors.CombineErrors(errs, errors.Newf("server.port %d out of range", c.Server.Port))
	}
	if _, ok := logging.ParseLevel(c.Logging.Level); !ok {
		errs = errors.CombineErrors(errs, errors.Newf("logging.level %q is not a level", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = errors.CombineErrors(errs, errors.Newf("logging.format %q must be console or json", c.Logging.Format))
	}
	return errs
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// StreamPath returns the record file path
func (c *Config) StreamPath() string {
	return c.resolve(c.Stream)
}

// StagingPath returns the staging database directory
func (c *Config) StagingPath() string {
	return c.resolve(c.Staging)
}

// CodecOptions returns the codec options the configuration selects
func (c *Config) CodecOptions() []codec.Option {
	return []codec.Option{
		codec.WithVerify(c.Codec.Verify),
		codec.WithMaxRecordSize(c.Codec.MaxRecordSize),
	}
}

// LoggingConfig returns the logger settings the configuration selects
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	if c.Logging.Format != "" {
		cfg.Format = c.Logging.Format
	}
	return cfg
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return "", errors.Wrap(err, "failed to generate secure key")
	}
	return hex.EncodeToString(key), nil
}

// BootstrapConfig writes a new configuration with a generated API key
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	apiKey, err := GenerateSecureKey(32)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate API key")
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, errors.Wrap(err, "failed to save bootstrap config")
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./tfrec.yaml"
	}

	// ~/.config/tfrec/config.yaml on Linux and macOS
	return filepath.Join(homeDir, ".config", "tfrec", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
