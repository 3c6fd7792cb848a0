// Package config loads library configuration from file and environment.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/soundprediction/relato/pkg/store"
)

// Config holds all configuration for the library and CLI.
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Store configuration
	Store store.Config `mapstructure:"store"`

	// Dedupe configuration
	Dedupe DedupeConfig `mapstructure:"dedupe"`

	// Conflict configuration
	Conflict ConflictConfig `mapstructure:"conflict"`

	// Audit configuration
	Audit AuditConfig `mapstructure:"audit"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DedupeConfig holds duplicate-detection thresholds
type DedupeConfig struct {
	PersonThreshold       float64 `mapstructure:"person_threshold"`
	OrganizationThreshold float64 `mapstructure:"organization_threshold"`
}

// ConflictConfig holds conflict-resolution configuration
type ConflictConfig struct {
	// DefaultStrategy applies to fact types without an explicit entry.
	DefaultStrategy string `mapstructure:"default_strategy"`

	// Strategies maps fact types to resolution strategies.
	Strategies map[string]string `mapstructure:"strategies"`
}

// AuditConfig holds audit-export configuration
type AuditConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Store defaults
	viper.SetDefault("store.type", store.BackendMemory)
	viper.SetDefault("store.dsn", "")
	viper.SetDefault("store.uri", "")
	viper.SetDefault("store.username", "")
	viper.SetDefault("store.password", "")
	viper.SetDefault("store.database", "")

	// Dedupe defaults
	viper.SetDefault("dedupe.person_threshold", 0.85)
	viper.SetDefault("dedupe.organization_threshold", 0.80)

	// Conflict defaults
	viper.SetDefault("conflict.default_strategy", "latest_wins")

	// Audit defaults
	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("audit.parquet_path", fmt.Sprintf("%s/.relato/audit", home))
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if storeType := os.Getenv("RELATO_STORE_TYPE"); storeType != "" {
		config.Store.Type = storeType
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		config.Store.DSN = dsn
	}
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Store.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Store.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Store.Password = pass
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		config.Store.Database = db
	}
	if level := os.Getenv("RELATO_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
