package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Sync     SyncConfig     `toml:"sync"`
	Upload   UploadConfig   `toml:"upload"`
	Download DownloadConfig `toml:"download"`
	Database DatabaseConfig `toml:"database"`
	Mock     MockConfig     `toml:"mock"`
}

// ServerConfig describes the remote report processor.
type ServerConfig struct {
	BaseURL   string  `toml:"base_url"`
	RateLimit float64 `toml:"rate_limit"`
}

// SyncConfig contains the status synchronization timings.
type SyncConfig struct {
	PreferPush     bool     `toml:"prefer_push"`
	PollInterval   Duration `toml:"poll_interval"`
	BackoffDelay   Duration `toml:"backoff_delay"`
	ReconnectDelay Duration `toml:"reconnect_delay"`
	PingInterval   Duration `toml:"ping_interval"`
}

// UploadConfig contains client-side upload validation settings.
type UploadConfig struct {
	MaxBytes int64 `toml:"max_bytes"`
}

// DownloadConfig contains artifact download settings.
type DownloadConfig struct {
	Dir       string  `toml:"dir"`
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// MockConfig contains settings for the local mock processor started by `mrx serve`.
type MockConfig struct {
	Host      string   `toml:"host"`
	Port      int      `toml:"port"`
	StepDelay Duration `toml:"step_delay"`
	TTL       Duration `toml:"ttl"`
}

// Duration is a [time.Duration] that decodes from TOML strings such as "2s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: bad duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks that timings are positive and the server URL is set.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("%w: server.base_url is required", ErrInvalidConfig)
	}
	for name, d := range map[string]Duration{
		"sync.poll_interval":   c.Sync.PollInterval,
		"sync.backoff_delay":   c.Sync.BackoffDelay,
		"sync.reconnect_delay": c.Sync.ReconnectDelay,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("%w: upload.max_bytes must be positive", ErrInvalidConfig)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
