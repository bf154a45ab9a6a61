package chronicle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/deepnoodle-ai/chronicle/slogging"
)

// Journal backend names accepted in configuration.
const (
	JournalFile   = "file"
	JournalSQLite = "sqlite"
	JournalNone   = "none"
)

// Config holds recorder settings loadable from YAML.
type Config struct {
	// StorageRoot is the directory holding per-workflow record
	// directories.
	StorageRoot string `yaml:"storage_root"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// Journal selects the unified-index mirror: file, sqlite, or none.
	Journal string `yaml:"journal,omitempty"`

	// JournalPath is the SQLite database path; defaults to
	// journal.db under StorageRoot.
	JournalPath string `yaml:"journal_path,omitempty"`
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig(storageRoot string) *Config {
	return &Config{
		StorageRoot: storageRoot,
		LogLevel:    "info",
		Journal:     JournalFile,
	}
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config Config
	if err := yaml.UnmarshalWithOptions(data, &config, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if config.Journal == "" {
		config.Journal = JournalFile
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.StorageRoot == "" {
		return validationErrorf("storage_root is required")
	}
	switch c.Journal {
	case JournalFile, JournalSQLite, JournalNone:
	default:
		return validationErrorf("unknown journal backend %q", c.Journal)
	}
	return nil
}

// NewRecorder builds a Recorder for the workflow using the configured
// storage root, journal backend, and log level.
func (c *Config) NewRecorder(workflowID string) (*Recorder, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var journal EventJournal
	switch c.Journal {
	case JournalSQLite:
		dbPath := c.JournalPath
		if dbPath == "" {
			dbPath = filepath.Join(c.StorageRoot, "journal.db")
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, &PersistenceError{Path: dbPath, Err: err}
		}
		sqliteJournal, err := NewSQLiteJournal(dbPath, DefaultSQLiteJournalOptions())
		if err != nil {
			return nil, err
		}
		journal = sqliteJournal
	case JournalNone:
		journal = NewNullJournal()
	default:
		journal = NewFileJournal(c.StorageRoot)
	}
	return NewRecorder(RecorderOptions{
		WorkflowID:  workflowID,
		StorageRoot: c.StorageRoot,
		Journal:     journal,
		Logger:      slogging.New(slogging.ParseLevel(c.LogLevel)),
	})
}
