// Package config loads the recipebook YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the data directory when no path
// is given.
const FileName = "recipebook.yaml"

// Default values applied when fields are absent from the config file.
const (
	DefaultDataDir       = "./data"
	DefaultBackend       = BackendFile
	DefaultLogLevel      = "info"
	DefaultWatchInterval = 200 * time.Millisecond
	DefaultJournal       = "journal.jsonl"
	DefaultAuthorName    = "recipebook"
	DefaultAuthorEmail   = "recipebook@localhost"
)

// Blob store backends.
const (
	BackendFile = "file"
	BackendGit  = "git"
)

// Config is the recipebook configuration.
type Config struct {
	// DataDir holds the blob files, the journal and, for the git backend, the
	// repository.
	DataDir string `yaml:"data_dir"`

	// Key overrides the blob key the collection is stored under.
	Key string `yaml:"key"`

	// Backend is one of: file | git.
	Backend string `yaml:"backend"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Journal is the path of the operation journal, relative to DataDir
	// unless absolute. "-" disables it.
	Journal string `yaml:"journal"`

	// WatchInterval is the minimum delay between two reloads in watch mode.
	WatchInterval time.Duration `yaml:"watch_interval"`

	// Git holds the commit author for the git backend.
	Git GitConfig `yaml:"git"`
}

// GitConfig configures the git backend.
type GitConfig struct {
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// JournalPath returns the resolved journal path, or "" when disabled.
func (c *Config) JournalPath() string {
	switch {
	case c.Journal == "-":
		return ""
	case filepath.IsAbs(c.Journal):
		return c.Journal
	default:
		return filepath.Join(c.DataDir, c.Journal)
	}
}

// Load reads the config file at path. A missing file yields the defaults.
//
// Load does not validate: callers apply their overrides first, then call
// Validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the -config flag
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		DataDir:       DefaultDataDir,
		Backend:       DefaultBackend,
		LogLevel:      DefaultLogLevel,
		Journal:       DefaultJournal,
		WatchInterval: DefaultWatchInterval,
		Git: GitConfig{
			AuthorName:  DefaultAuthorName,
			AuthorEmail: DefaultAuthorEmail,
		},
	}
}

// Validate checks field values and reports the first invalid one.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	switch c.Backend {
	case BackendFile, BackendGit:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("config: watch_interval must be positive")
	}
	if c.Backend == BackendGit && (c.Git.AuthorName == "" || c.Git.AuthorEmail == "") {
		return fmt.Errorf("config: git.author_name and git.author_email are required for the git backend")
	}
	return nil
}
