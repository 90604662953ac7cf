package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the built-in defaults with the upload root placed
// under the data directory.
func DefaultConfig() (Config, error) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal defaults: %w", err)
	}
	cfg.Roots.Upload = filepath.Join(cfg.Server.DataDir, "uploads")
	cfg.Roots.Scan = []ScanRoot{}
	cfg.Auth.UploadTokenHashes = []string{}
	return cfg, nil
}

// DefaultConfigYAML renders DefaultConfig as a catalogd.yml document.
func DefaultConfigYAML() ([]byte, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	header := []byte("# catalogd configuration\n" +
		"# Environment variables override any key, e.g. CATALOGD_SERVER_ADDR=:9090\n" +
		"# Generate upload token hashes with: catalogd token hash\n\n")
	return append(header, out...), nil
}
