package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"lifestory/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	API        APIConfig        `yaml:"api"`
	Timeline   TimelineConfig   `yaml:"timeline"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	MockAPI    MockAPIConfig    `yaml:"mock_api"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	DataDir     string `yaml:"data_dir"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

const (
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

type StorageConfig struct {
	Backend   string `yaml:"backend"`
	KeyPrefix string `yaml:"key_prefix"`
	// Failover serves from memory while the redis backend is unreachable.
	Failover bool `yaml:"failover"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type APIConfig struct {
	BaseURL      string          `yaml:"base_url"`
	APIKey       string          `yaml:"api_key"`
	APIExtra     string          `yaml:"api_extra"`
	HeaderAPIKey string          `yaml:"header_api_key"`
	HeaderExtra  string          `yaml:"header_extra"`
	Timeout      time.Duration   `yaml:"timeout"`
	Source       string          `yaml:"source"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type TimelineConfig struct {
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BaseBackoff       time.Duration `yaml:"base_backoff"`
	MaxRetries        int           `yaml:"max_retries"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	PollErrorInterval time.Duration `yaml:"poll_error_interval"`
	// PollTimeout bounds transcription polling; zero polls until a terminal status.
	PollTimeout *time.Duration `yaml:"poll_timeout"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type MockAPIConfig struct {
	Port int `yaml:"port"`
	// TranscriptionPolls is how many status polls a voice memo stays processing.
	TranscriptionPolls int             `yaml:"transcription_polls"`
	Auth               MockAuthConfig  `yaml:"auth"`
	RateLimit          RateLimitConfig `yaml:"rate_limit"`
}

type MockAuthConfig struct {
	Enabled      bool        `yaml:"enabled"`
	HeaderAPIKey string      `yaml:"header_api_key"`
	HeaderExtra  string      `yaml:"header_extra"`
	APIKeys      []ClientKey `yaml:"api_keys"`
}

type ClientKey struct {
	Key   string `yaml:"key"`
	Extra string `yaml:"extra"`
	Name  string `yaml:"name"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads configPath, expanding ${VAR} references from the environment
// and an optional .env file in the working directory.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageRedis:
		if c.Redis.Address == "" {
			return errors.New("redis address is required for redis storage")
		}
	case StorageSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("invalid api base_url: %w", err)
	}

	return ValidateTimeline(c.Timeline)
}

func ValidateTimeline(t TimelineConfig) error {
	if t.RetryInterval <= 0 {
		return errors.New("timeline retry_interval must be positive")
	}
	if t.BaseBackoff <= 0 {
		return errors.New("timeline base_backoff must be positive")
	}
	if t.MaxRetries < 0 {
		return errors.New("timeline max_retries must not be negative")
	}
	if t.PollInterval <= 0 || t.PollErrorInterval <= 0 {
		return errors.New("timeline poll intervals must be positive")
	}
	if t.PollTimeout != nil && *t.PollTimeout < 0 {
		return errors.New("timeline poll_timeout must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "lifestory"
	}
	if c.App.DataDir == "" {
		c.App.DataDir = "data"
	}

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageSQLite
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "lifestory:"
	}
	if c.Database.Path == "" {
		c.Database.Path = c.App.DataDir + "/timeline.db"
	}

	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:3000"
	}
	if c.API.HeaderAPIKey == "" {
		c.API.HeaderAPIKey = "x-api-key"
	}
	if c.API.HeaderExtra == "" {
		c.API.HeaderExtra = "x-api-extra"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.Source == "" {
		c.API.Source = models.DefaultSource
	}

	if c.Timeline.RetryInterval == 0 {
		c.Timeline.RetryInterval = models.DefaultRetryInterval
	}
	if c.Timeline.BaseBackoff == 0 {
		c.Timeline.BaseBackoff = models.DefaultBaseBackoff
	}
	if c.Timeline.MaxRetries == 0 {
		c.Timeline.MaxRetries = models.DefaultMaxRetries
	}
	if c.Timeline.PollInterval == 0 {
		c.Timeline.PollInterval = models.DefaultPollInterval
	}
	if c.Timeline.PollErrorInterval == 0 {
		c.Timeline.PollErrorInterval = models.DefaultPollErrorInterval
	}
	if c.Timeline.PollTimeout == nil {
		timeout := models.DefaultPollTimeout
		c.Timeline.PollTimeout = &timeout
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.MockAPI.Port == 0 {
		c.MockAPI.Port = 3000
	}
	if c.MockAPI.TranscriptionPolls == 0 {
		c.MockAPI.TranscriptionPolls = 2
	}
	if c.MockAPI.Auth.HeaderAPIKey == "" {
		c.MockAPI.Auth.HeaderAPIKey = c.API.HeaderAPIKey
	}
	if c.MockAPI.Auth.HeaderExtra == "" {
		c.MockAPI.Auth.HeaderExtra = c.API.HeaderExtra
	}

	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = c.App.DataDir + "/backups"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = c.App.DataDir + "/exports"
	}
}
