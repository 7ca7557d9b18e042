// Package config loads and validates the service configuration from a YAML
// file, with secrets taken from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const configFileName = "fleet_maintenance.yaml"

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"readTimeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"writeTimeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout,omitempty"`
}

// StoreConfig configures the DynamoDB-backed store.
type StoreConfig struct {
	TableName            string `yaml:"tableName" validate:"required"`
	Region               string `yaml:"region" validate:"required"`
	DefaultQueryLimit    int32  `yaml:"defaultQueryLimit,omitempty" validate:"omitempty,min=1"`
	SkipSchemaValidation bool   `yaml:"skipSchemaValidation,omitempty"`
}

// DirectoryConfig configures the upstream fleet-directory gateway.
type DirectoryConfig struct {
	BaseURL  string        `yaml:"baseURL" validate:"required,url"`
	TokenURL string        `yaml:"tokenURL" validate:"required,url"`
	ClientID string        `yaml:"clientID" validate:"required"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// ReportingConfig tunes the fleet overview fan-out.
type ReportingConfig struct {
	ChunkSize      int   `yaml:"chunkSize,omitempty" validate:"omitempty,min=1"`
	MaxConcurrency int64 `yaml:"maxConcurrency,omitempty" validate:"omitempty,min=1"`
}

// Config is the full service configuration. Secrets (the JWT signing key and
// the directory client secret) come from the environment, not the file.
type Config struct {
	Server    ServerConfig    `yaml:"server" validate:"required"`
	Store     StoreConfig     `yaml:"store" validate:"required"`
	Directory DirectoryConfig `yaml:"directory" validate:"required"`
	Reporting ReportingConfig `yaml:"reporting,omitempty"`

	JWTSecret             string `yaml:"-"`
	DirectoryClientSecret string `yaml:"-"`
}

var validate = validator.New()

// Load finds, loads, and validates the configuration. The file is looked up
// in the current directory first, then in the user's home directory.
func Load() (*Config, error) {
	path, err := findConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(path)
}

// LoadFromPath loads and validates the configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.readSecrets()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 20 * time.Second
	}
	if c.Directory.Timeout == 0 {
		c.Directory.Timeout = 15 * time.Second
	}
}

func (c *Config) readSecrets() {
	c.JWTSecret = os.Getenv("FLEET_JWT_SECRET")
	c.DirectoryClientSecret = os.Getenv("FLEET_DIRECTORY_CLIENT_SECRET")
}

// Validate validates the configuration struct and the secrets pulled from
// the environment.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.JWTSecret == "" {
		return fmt.Errorf("FLEET_JWT_SECRET is not set")
	}

	if cfg.DirectoryClientSecret == "" {
		return fmt.Errorf("FLEET_DIRECTORY_CLIENT_SECRET is not set")
	}

	return nil
}

func findConfigFile() (string, error) {
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homePath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homePath); err == nil {
		return homePath, nil
	}

	return "", fmt.Errorf("config file not found in current directory or home directory")
}
