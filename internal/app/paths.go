package app

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const configName = "catalogd"

// DefaultDataDir is where the catalog database and uploads live unless
// server.data_dir says otherwise. Without a home directory (system users
// under systemd) it falls back to /var/lib/catalogd.
func DefaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".catalogd")
	}
	return "/var/lib/catalogd"
}

// configSearchDirs lists where catalogd.yml is looked up, first match wins.
// The user directory follows XDG_CONFIG_HOME when it is set.
func configSearchDirs() []string {
	dirs := []string{filepath.Join("/etc", configName)}
	if userDir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(userDir, configName))
	}
	return append(dirs, ".")
}

// ConfigureViper points v at an explicit config file, or at catalogd.yml in
// the search directories when configPath is empty.
func ConfigureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	for _, dir := range configSearchDirs() {
		v.AddConfigPath(dir)
	}
}
