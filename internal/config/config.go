// Package config provides the configuration structure for the voice console.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// EnvConfigDir overrides paths.config_dir when set.
const EnvConfigDir = "VOICE_UI_CONFIG_DIR"

// Defaults applied to zero-valued fields.
const (
	DefaultListenAddr          = "127.0.0.1:7860"
	DefaultReadTimeoutSeconds  = 30
	DefaultWriteTimeoutSeconds = 60
	DefaultMaxUploadBytes      = 25 << 20
	DefaultConfigDirName       = ".voice-ui"
	DefaultLogsDirName         = "logs"
	DefaultAudioBucket         = "REFERENCE_AUDIO"
	DefaultActiveConfigSubject = "voice.config.active"
	DefaultAudioStoredSubject  = "voice.reference_audio.stored"
	DefaultModelsTimeout       = 10
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr          string `toml:"listen_addr"`
	ReadTimeoutSeconds  int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
	MaxUploadBytes      int64  `toml:"max_upload_bytes"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	ConfigDir   string `toml:"config_dir"`
	BaseLogsDir string `toml:"base_logs_dir"`
}

// NATSConfig holds the configuration for NATS. An empty URL disables the
// reference-audio mirror and the active-config responder.
type NATSConfig struct {
	URL                         string `toml:"url"`
	ReferenceAudioBucket        string `toml:"reference_audio_bucket"`
	ActiveConfigSubject         string `toml:"active_config_subject"`
	ReferenceAudioStoredSubject string `toml:"reference_audio_stored_subject"`
}

// ModelsConfig holds the model-listing proxy settings.
type ModelsConfig struct {
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Config is the root configuration structure.
type Config struct {
	Server ServerConfig `toml:"server"`
	Paths  PathsConfig  `toml:"paths"`
	NATS   NATSConfig   `toml:"nats"`
	Models ModelsConfig `toml:"models"`
}

// Load loads the configuration for the voice console.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults(os.Getenv(EnvConfigDir))

	return &cfg, nil
}

// ApplyDefaults fills zero values. A non-empty configDirOverride replaces
// paths.config_dir.
func (c *Config) ApplyDefaults(configDirOverride string) {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}

	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = DefaultReadTimeoutSeconds
	}

	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = DefaultWriteTimeoutSeconds
	}

	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}

	if configDirOverride != "" {
		c.Paths.ConfigDir = configDirOverride
	}

	if c.Paths.ConfigDir == "" {
		c.Paths.ConfigDir = defaultConfigDir()
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = filepath.Join(c.Paths.ConfigDir, DefaultLogsDirName)
	}

	if c.NATS.ReferenceAudioBucket == "" {
		c.NATS.ReferenceAudioBucket = DefaultAudioBucket
	}

	if c.NATS.ActiveConfigSubject == "" {
		c.NATS.ActiveConfigSubject = DefaultActiveConfigSubject
	}

	if c.NATS.ReferenceAudioStoredSubject == "" {
		c.NATS.ReferenceAudioStoredSubject = DefaultAudioStoredSubject
	}

	if c.Models.TimeoutSeconds <= 0 {
		c.Models.TimeoutSeconds = DefaultModelsTimeout
	}
}

// ReadTimeout returns the HTTP read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the HTTP write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

// ModelsTimeout returns the upstream model-listing timeout.
func (c *Config) ModelsTimeout() time.Duration {
	return time.Duration(c.Models.TimeoutSeconds) * time.Second
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigDirName
	}

	return filepath.Join(home, DefaultConfigDirName)
}
