package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override the default locations.
const (
	EnvConfigPath = "GITPUB_CONFIG_PATH"
	EnvHome       = "GITPUB_HOME"
)

// Defaults are the locations gitpub falls back to before a config file exists.
// Log and history paths derive from BaseDir, see config.NewConfig.
type Defaults struct {
	ConfigPath string // ~/.config/gitpub.toml
	BaseDir    string // ~/.local/share/gitpub
}

// GetDefaults resolves Defaults from the environment, then the home directory.
func GetDefaults() (Defaults, error) {
	configPath, err := envOrHome(EnvConfigPath, ".config", "gitpub.toml")
	if err != nil {
		return Defaults{}, err
	}
	baseDir, err := envOrHome(EnvHome, ".local", "share", "gitpub")
	if err != nil {
		return Defaults{}, err
	}
	return Defaults{ConfigPath: configPath, BaseDir: baseDir}, nil
}

func envOrHome(key string, elem ...string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%s is unset and the home directory is unknown: %w", key, err)
	}
	return filepath.Join(append([]string{home}, elem...)...), nil
}
