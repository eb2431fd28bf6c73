package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"callrec/internal/paths"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = 1

// EnvPrefix prefixes environment overrides, e.g. CALLREC_POOL_CAPACITY.
const EnvPrefix = "CALLREC"

// Config represents the complete callrec configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Pool       PoolConfig       `json:"pool" mapstructure:"pool"`
	Store      StoreConfig      `json:"store" mapstructure:"store"`
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Index      IndexConfig      `json:"index" mapstructure:"index"`
	Recommend  RecommendConfig  `json:"recommend" mapstructure:"recommend"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// PoolConfig bounds the models borrowed from one archive
type PoolConfig struct {
	Capacity int `json:"capacity" mapstructure:"capacity"`
}

// StoreConfig tunes the resolution cache
type StoreConfig struct {
	MaxResolutions       int `json:"maxResolutions" mapstructure:"maxResolutions"`
	ResolutionTtlSeconds int `json:"resolutionTtlSeconds" mapstructure:"resolutionTtlSeconds"`
}

// RepositoryConfig locates model archives
type RepositoryConfig struct {
	Root string `json:"root" mapstructure:"root"`
}

// IndexConfig locates the artifact index database
type IndexConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// RecommendConfig filters proposals
type RecommendConfig struct {
	MinProbability float64 `json:"minProbability" mapstructure:"minProbability"`
	MaxProposals   int     `json:"maxProposals" mapstructure:"maxProposals"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize" mapstructure:"maxSize"` // e.g. "10MB"; empty disables rotation
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
}

// DefaultConfig returns the default configuration. Empty paths are filled
// from the callrec home directory by LoadConfig.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Pool: PoolConfig{
			Capacity: 100,
		},
		Store: StoreConfig{
			MaxResolutions:       1024,
			ResolutionTtlSeconds: 3600,
		},
		Recommend: RecommendConfig{
			MinProbability: 0.1,
			MaxProposals:   10,
		},
		Logging: LoggingConfig{
			Level:      "warn",
			MaxBackups: 3,
		},
	}
}

// LoadConfig reads the JSON config at path, or the default location when
// path is empty. A missing file yields the defaults. CALLREC_* environment
// variables override file values.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		p, err := paths.GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("pool.capacity", d.Pool.Capacity)
	v.SetDefault("store.maxResolutions", d.Store.MaxResolutions)
	v.SetDefault("store.resolutionTtlSeconds", d.Store.ResolutionTtlSeconds)
	v.SetDefault("repository.root", d.Repository.Root)
	v.SetDefault("index.path", d.Index.Path)
	v.SetDefault("recommend.minProbability", d.Recommend.MinProbability)
	v.SetDefault("recommend.maxProposals", d.Recommend.MaxProposals)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
}

func (c *Config) resolvePaths() error {
	if c.Repository.Root == "" {
		dir, err := paths.GetRepositoryDir()
		if err != nil {
			return err
		}
		c.Repository.Root = dir
	}
	if c.Index.Path == "" {
		p, err := paths.GetIndexPath()
		if err != nil {
			return err
		}
		c.Index.Path = p
	}
	c.Repository.Root = paths.ExpandHome(c.Repository.Root)
	c.Index.Path = paths.ExpandHome(c.Index.Path)
	c.Logging.File = paths.ExpandHome(c.Logging.File)
	return nil
}

// ResolutionTTL returns the resolution cache expiry.
func (c *Config) ResolutionTTL() time.Duration {
	return time.Duration(c.Store.ResolutionTtlSeconds) * time.Second
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported config version %d", c.Version)}
	}
	if c.Pool.Capacity <= 0 {
		return &ConfigError{Field: "pool.capacity", Message: "must be positive"}
	}
	if c.Store.MaxResolutions <= 0 {
		return &ConfigError{Field: "store.maxResolutions", Message: "must be positive"}
	}
	if c.Store.ResolutionTtlSeconds <= 0 {
		return &ConfigError{Field: "store.resolutionTtlSeconds", Message: "must be positive"}
	}
	if c.Recommend.MinProbability < 0 || c.Recommend.MinProbability >= 1 {
		return &ConfigError{Field: "recommend.minProbability", Message: "must be in [0, 1)"}
	}
	if c.Recommend.MaxProposals <= 0 {
		return &ConfigError{Field: "recommend.maxProposals", Message: "must be positive"}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
