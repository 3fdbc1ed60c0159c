// Package config loads the service configuration from contentd.yml with
// environment overrides
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the service configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Files    FilesConfig    `mapstructure:"files"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	// Driver selects the backing store: postgres or sqlite
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// CacheConfig represents response cache configuration
type CacheConfig struct {
	// Backend selects the cache store: memory or redis
	Backend   string        `mapstructure:"backend"`
	TTL       time.Duration `mapstructure:"ttl"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
}

// FilesConfig represents file URL derivation configuration
type FilesConfig struct {
	RootURL          string `mapstructure:"root_url"`
	ThumbnailRootURL string `mapstructure:"thumbnail_root_url"`
}

// Load loads the configuration from contentd.yml or contentd.yaml
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("server.port", 8055)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("files.root_url", "/storage/uploads")
	v.SetDefault("files.thumbnail_root_url", "/storage/thumbnails")

	// Set config name and paths
	v.SetConfigName("contentd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Enable environment variable support
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got: %s", cfg.Database.Driver)
	}

	switch cfg.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got: %s", cfg.Cache.Backend)
	}

	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	return nil
}
