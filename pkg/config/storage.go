package config

import (
	"fmt"

	"github.com/docker/go-units"
)

// StorageConfig selects and configures the key-value persistence backend.
type StorageConfig struct {
	Driver       string            `yaml:"driver" mapstructure:"driver"`
	Mode         string            `yaml:"mode" mapstructure:"mode"`
	MaxValueSize string            `yaml:"max_value_size" mapstructure:"max_value_size"`
	SQLite       SQLiteConfig      `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres     PostgresConfig    `yaml:"postgres,omitempty" mapstructure:"postgres"`
	File         FileStorageConfig `yaml:"file,omitempty" mapstructure:"file"`
	S3           *S3StorageConfig  `yaml:"s3,omitempty" mapstructure:"s3"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// FileStorageConfig stores one file per key under Dir.
type FileStorageConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// S3StorageConfig stores one object per key under Prefix in Bucket.
type S3StorageConfig struct {
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

var validDrivers = map[string]struct{}{
	"sqlite":   {},
	"postgres": {},
	"file":     {},
	"s3":       {},
	"memory":   {},
}

func (c *StorageConfig) applyDefaults() {
	if c.Driver == "" {
		c.Driver = DefaultStorageDriver
	}

	if c.Mode == "" {
		c.Mode = DefaultStorageMode
	}

	if c.MaxValueSize == "" {
		c.MaxValueSize = DefaultMaxValueSize
	}

	if c.SQLite.Path == "" {
		c.SQLite.Path = DefaultSQLitePath
	}

	if c.File.Dir == "" {
		c.File.Dir = DefaultFileDir
	}

	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}

	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
}

// Validate checks the storage configuration for errors.
func (c *StorageConfig) Validate() error {
	if _, ok := validDrivers[c.Driver]; !ok {
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}

	if c.Mode != ModeDevelopment && c.Mode != ModeProduction {
		return fmt.Errorf("mode must be %q or %q, got %q",
			ModeDevelopment, ModeProduction, c.Mode)
	}

	if c.MaxValueSize != "" {
		if _, err := units.FromHumanSize(c.MaxValueSize); err != nil {
			return fmt.Errorf("max_value_size: %w", err)
		}
	}

	switch c.Driver {
	case "postgres":
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return fmt.Errorf("postgres.host and postgres.database are required")
		}
	case "s3":
		if c.S3 == nil || c.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required")
		}
	}

	return nil
}
