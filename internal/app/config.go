// Package app loads configuration and wires the catalogd components.
package app

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/bnema/catalogd/internal/domain"
	"github.com/bnema/catalogd/pkg/bytesize"
)

// ScanRoot is a named library directory.
type ScanRoot struct {
	Name string `mapstructure:"name" yaml:"name"`
	Path string `mapstructure:"path" yaml:"path"`
}

// Config holds the application configuration.
type Config struct {
	Server struct {
		Addr            string        `mapstructure:"addr" yaml:"addr"`
		DataDir         string        `mapstructure:"data_dir" yaml:"data_dir"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	} `mapstructure:"server" yaml:"server"`

	Storage struct {
		Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite" or "memory"
		Path   string `mapstructure:"path" yaml:"path"`     // defaults to {data_dir}/catalogd.db
	} `mapstructure:"storage" yaml:"storage"`

	Roots struct {
		Upload string     `mapstructure:"upload" yaml:"upload"`
		Scan   []ScanRoot `mapstructure:"scan" yaml:"scan"`
	} `mapstructure:"roots" yaml:"roots"`

	Files struct {
		Extensions    []string `mapstructure:"extensions" yaml:"extensions"`
		MaxUploadSize string   `mapstructure:"max_upload_size" yaml:"max_upload_size"` // e.g. "64GB", "0" for unlimited
	} `mapstructure:"files" yaml:"files"`

	Hashing struct {
		Workers    int    `mapstructure:"workers" yaml:"workers"`
		QueueDepth int    `mapstructure:"queue_depth" yaml:"queue_depth"`
		BufferSize string `mapstructure:"buffer_size" yaml:"buffer_size"`
	} `mapstructure:"hashing" yaml:"hashing"`

	API struct {
		RateLimit struct {
			Enabled  bool    `mapstructure:"enabled" yaml:"enabled"`
			PerIPRPS float64 `mapstructure:"per_ip_rps" yaml:"per_ip_rps"`
			Burst    int     `mapstructure:"burst" yaml:"burst"`
		} `mapstructure:"rate_limit" yaml:"rate_limit"`
	} `mapstructure:"api" yaml:"api"`

	Auth struct {
		UploadTokenHashes []string `mapstructure:"upload_token_hashes" yaml:"upload_token_hashes"` // bcrypt
	} `mapstructure:"auth" yaml:"auth"`

	Logging struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
		File   struct {
			Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
			Path       string `mapstructure:"path" yaml:"path"`
			MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
			MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
			MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
		} `mapstructure:"file" yaml:"file"`
	} `mapstructure:"logging" yaml:"logging"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	} `mapstructure:"metrics" yaml:"metrics"`
}

// MaxUploadBytes returns the parsed upload limit. Zero means unlimited.
func (c Config) MaxUploadBytes() int64 {
	n, _ := bytesize.Parse(c.Files.MaxUploadSize)
	return n
}

// BufferBytes returns the parsed hashing buffer size.
func (c Config) BufferBytes() int {
	n, _ := bytesize.Parse(c.Hashing.BufferSize)
	return int(n)
}

// StoragePath returns the database file, defaulting into the data dir.
func (c Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.Server.DataDir, "catalogd.db")
}

// Validate checks the settings that cannot be fixed by defaults.
func (c Config) Validate() error {
	var errs []error

	if c.Roots.Upload == "" || !filepath.IsAbs(c.Roots.Upload) {
		errs = append(errs, fmt.Errorf("roots.upload must be an absolute path"))
	}
	seen := map[string]bool{"upload": true}
	for i, r := range c.Roots.Scan {
		if r.Name == "" || seen[r.Name] {
			errs = append(errs, fmt.Errorf("roots.scan[%d]: name %q is empty, reserved or duplicated", i, r.Name))
		}
		seen[r.Name] = true
		if !filepath.IsAbs(r.Path) {
			errs = append(errs, fmt.Errorf("roots.scan[%d]: path must be absolute", i))
		}
	}
	if len(c.Files.Extensions) == 0 {
		errs = append(errs, fmt.Errorf("files.extensions must list at least one extension"))
	}
	if _, err := bytesize.Parse(c.Files.MaxUploadSize); err != nil {
		errs = append(errs, fmt.Errorf("files.max_upload_size: %w", err))
	}
	if _, err := bytesize.Parse(c.Hashing.BufferSize); err != nil {
		errs = append(errs, fmt.Errorf("hashing.buffer_size: %w", err))
	}
	if c.Hashing.Workers < 1 {
		errs = append(errs, fmt.Errorf("hashing.workers must be at least 1"))
	}
	if c.Hashing.QueueDepth < 1 {
		errs = append(errs, fmt.Errorf("hashing.queue_depth must be at least 1"))
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of sqlite, memory", c.Storage.Driver))
	}
	if c.API.RateLimit.Enabled && c.API.RateLimit.PerIPRPS <= 0 {
		errs = append(errs, fmt.Errorf("api.rate_limit.per_ip_rps must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoadConfig reads the config file, the .env file and CATALOGD_* variables,
// then validates the result.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	if err := loadConfig(v, configPath); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for i, ext := range cfg.Files.Extensions {
		cfg.Files.Extensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.data_dir", DefaultDataDir())
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "")
	v.SetDefault("roots.upload", "")
	v.SetDefault("auth.upload_token_hashes", []string{})
	v.SetDefault("files.extensions", []string{"nsp", "nsz", "xci"})
	v.SetDefault("files.max_upload_size", "64GB")
	v.SetDefault("hashing.workers", 2)
	v.SetDefault("hashing.queue_depth", 256)
	v.SetDefault("hashing.buffer_size", "1MB")
	v.SetDefault("api.rate_limit.enabled", true)
	v.SetDefault("api.rate_limit.per_ip_rps", 2)
	v.SetDefault("api.rate_limit.burst", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)
	v.SetDefault("metrics.enabled", true)
}

// loadConfig loads configuration from file and sets defaults.
func loadConfig(v *viper.Viper, configPath string) error {
	setDefaults(v)

	// A missing .env is fine; a broken one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	ConfigureViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CATALOGD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return nil
}
