// Package config holds the embarcadero client configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkType represents the Sia network the swap service is bound to.
type NetworkType string

const (
	NetworkMainnet NetworkType = "mainnet"
	NetworkZen     NetworkType = "zen"
)

// FileName is the default config file name.
const FileName = "config.yaml"

// Config errors.
var (
	ErrInvalidNetwork  = errors.New("invalid network type")
	ErrMissingURL      = errors.New("remote url is required")
	ErrInvalidInterval = errors.New("interval must be positive")
)

// Config holds all configuration for the swap client.
type Config struct {
	// NetworkType is the network the remote swap service runs against.
	NetworkType NetworkType `yaml:"network_type"`

	// Remote is the swap service that summarizes, signs and creates swaps.
	Remote RemoteConfig `yaml:"remote"`

	Polling   PollingConfig   `yaml:"polling"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	RPC       RPCConfig       `yaml:"rpc"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Inbox     InboxConfig     `yaml:"inbox"`
	Export    ExportConfig    `yaml:"export"`
}

// RemoteConfig holds swap service settings.
type RemoteConfig struct {
	// URL is the base URL of the swap service API.
	URL string `yaml:"url"`

	// Timeout bounds every request.
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit is the maximum number of requests per second (0 = unlimited).
	RateLimit int `yaml:"rate_limit"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker around the swap service.
type BreakerConfig struct {
	// MinRequests is the number of requests in a window before the breaker may trip.
	MinRequests uint32 `yaml:"min_requests"`

	// FailureRatio trips the breaker once reached.
	FailureRatio float64 `yaml:"failure_ratio"`

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// PollingConfig holds the pending-swap reconciliation settings.
type PollingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ConsensusConfig holds the chain height monitor settings.
type ConsensusConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for the swap journal and config.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// File is the log file path (empty for stderr).
	File string `yaml:"file"`
}

// RPCConfig holds the JSON-RPC server settings.
type RPCConfig struct {
	Addr string `yaml:"addr"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// InboxConfig holds the transaction inbox watcher settings.
type InboxConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir is watched for transaction files dropped by the user.
	Dir string `yaml:"dir"`
}

// ExportConfig controls where exported transaction files are written.
type ExportConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NetworkType: NetworkMainnet,
		Remote: RemoteConfig{
			URL:       "http://localhost:8080",
			Timeout:   30 * time.Second,
			RateLimit: 10,
			Breaker: BreakerConfig{
				MinRequests:  10,
				FailureRatio: 0.6,
				OpenTimeout:  30 * time.Second,
			},
		},
		Polling: PollingConfig{
			Interval: 5 * time.Second,
		},
		Consensus: ConsensusConfig{
			Enabled:  true,
			Interval: 10 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: "~/.embarcadero",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		RPC: RPCConfig{
			Addr: "127.0.0.1:9595",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9596",
		},
		Inbox: InboxConfig{
			Enabled: false,
			Dir:     "~/.embarcadero/inbox",
		},
		Export: ExportConfig{
			Dir:    ".",
			Prefix: "embc_txn",
		},
	}
}

// Validate checks the values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.NetworkType {
	case NetworkMainnet, NetworkZen:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidNetwork, c.NetworkType)
	}
	if c.Remote.URL == "" {
		return ErrMissingURL
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("%w: polling.interval", ErrInvalidInterval)
	}
	if c.Consensus.Enabled && c.Consensus.Interval <= 0 {
		return fmt.Errorf("%w: consensus.interval", ErrInvalidInterval)
	}
	return nil
}

// Load loads configuration from <dataDir>/config.yaml.
// If the file doesn't exist, it creates one with default values.
func Load(dataDir string) (*Config, error) {
	configPath := Path(dataDir)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	return LoadFile(configPath)
}

// LoadFile reads an existing config file. Missing keys keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Embarcadero Swap Client Configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Path returns the full path to the config file for the given data directory.
func Path(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), FileName)
}

// ExpandPath expands ~ to the home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
