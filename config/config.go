package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// StorageConfig holds the locations of the database files managed by the
// lifecycle manager and the metadata store.
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	MetadataDB string `mapstructure:"metadata_db"`
}

// ExecutorConfig holds query execution limits
type ExecutorConfig struct {
	ReadOnlyTimeoutSec int `mapstructure:"readonly_timeout_sec"`
	LabTimeoutSec      int `mapstructure:"lab_timeout_sec"`
}

// CleanupConfig holds session teardown and orphan sweep settings
type CleanupConfig struct {
	MaxDeleteRetries int `mapstructure:"max_delete_retries"`
	RetryDelayMS     int `mapstructure:"retry_delay_ms"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("storage.data_dir", "./data")
	viper.SetDefault("storage.metadata_db", "./data/metadata.db")
	viper.SetDefault("executor.readonly_timeout_sec", 5)
	viper.SetDefault("executor.lab_timeout_sec", 15)
	viper.SetDefault("cleanup.max_delete_retries", 5)
	viper.SetDefault("cleanup.retry_delay_ms", 100)
	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}

	if c.Storage.MetadataDB == "" {
		return fmt.Errorf("storage.metadata_db must not be empty")
	}

	if c.Executor.ReadOnlyTimeoutSec <= 0 {
		return fmt.Errorf("executor.readonly_timeout_sec must be positive, got: %d", c.Executor.ReadOnlyTimeoutSec)
	}

	if c.Executor.LabTimeoutSec <= 0 {
		return fmt.Errorf("executor.lab_timeout_sec must be positive, got: %d", c.Executor.LabTimeoutSec)
	}

	if c.Cleanup.MaxDeleteRetries <= 0 {
		return fmt.Errorf("cleanup.max_delete_retries must be positive, got: %d", c.Cleanup.MaxDeleteRetries)
	}

	if c.Cleanup.RetryDelayMS <= 0 {
		return fmt.Errorf("cleanup.retry_delay_ms must be positive, got: %d", c.Cleanup.RetryDelayMS)
	}

	return nil
}

// GetReadOnlyTimeout returns the read-only sandbox timeout as a duration
func (c *Config) GetReadOnlyTimeout() time.Duration {
	return time.Duration(c.Executor.ReadOnlyTimeoutSec) * time.Second
}

// GetLabTimeout returns the lab executor timeout as a duration
func (c *Config) GetLabTimeout() time.Duration {
	return time.Duration(c.Executor.LabTimeoutSec) * time.Second
}

// GetDeleteRetryDelay returns the delay between session file delete attempts
func (c *Config) GetDeleteRetryDelay() time.Duration {
	return time.Duration(c.Cleanup.RetryDelayMS) * time.Millisecond
}

// QuestionDir returns the directory holding question reference databases
func (c *Config) QuestionDir() string {
	return filepath.Join(c.Storage.DataDir, "questions")
}

// TemplateDir returns the directory holding lab template databases
func (c *Config) TemplateDir() string {
	return filepath.Join(c.Storage.DataDir, "labs", "templates")
}

// SessionDir returns the directory holding per-student session databases
func (c *Config) SessionDir() string {
	return filepath.Join(c.Storage.DataDir, "labs", "sessions")
}
