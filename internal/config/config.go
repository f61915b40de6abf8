package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for gitpub.
type Config struct {
	LogDir    string         `toml:"log_dir"`
	LogLevel  string         `toml:"log_level,omitempty"` // debug, info (default), warn or error
	HistoryDB string         `toml:"history_db"`
	VCS       VCSConfig      `toml:"vcs"`
	Ignore    []string       `toml:"ignore,omitempty"` // patterns added to .gitpubignore
	Remotes   []RemoteConfig `toml:"remotes"`
}

// VCSConfig selects the repository backend and the commit identity.
type VCSConfig struct {
	Backend     string `toml:"backend"` // "go-git" (default) or "git"
	AuthorName  string `toml:"author_name,omitempty"`
	AuthorEmail string `toml:"author_email,omitempty"`
}

// RemoteConfig represents one publishing target.
// Type selects the adapter; Options is handed to it unchanged.
type RemoteConfig struct {
	Name      string            `toml:"name"`
	Type      string            `toml:"type"`
	Branch    string            `toml:"branch,omitempty"`     // default gitpub/<name>/master
	ImportDir string            `toml:"import_dir,omitempty"` // default <name>-import
	Options   map[string]string `toml:"options,omitempty"`
}

// NewConfig creates a new Config rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		LogDir:    filepath.Join(baseDir, "log"),
		HistoryDB: filepath.Join(baseDir, "history.db"),
		VCS:       VCSConfig{Backend: "go-git"},
	}
}

// Remote returns the configuration of the remote called name.
func (c *Config) Remote(name string) (RemoteConfig, bool) {
	for _, r := range c.Remotes {
		if r.Name == name {
			return r, true
		}
	}
	return RemoteConfig{}, false
}

// Validate checks that every remote has a unique name and a type.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Remotes))
	for i, r := range c.Remotes {
		if r.Name == "" {
			return fmt.Errorf("remote #%d has no name", i+1)
		}
		if seen[r.Name] {
			return fmt.Errorf("remote %q is configured more than once", r.Name)
		}
		seen[r.Name] = true
		if r.Type == "" {
			return fmt.Errorf("remote %q has no type", r.Name)
		}
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
