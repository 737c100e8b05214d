// Package config reads and writes diskuto's TOML configuration file and
// resolves the handful of operationally-hot settings that may also be
// overridden by environment variables.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level diskuto configuration.
type Config struct {
	DataDir string `toml:"data_dir"`
	Bind    string `toml:"bind"`
	LogDir  string `toml:"log_dir"`

	ItemMaxBytes       int64 `toml:"item_max_bytes"`
	AttachmentMaxBytes int64 `toml:"attachment_max_bytes"`
	DefaultQuotaBytes  int64 `toml:"default_quota_bytes"` // 0 means unlimited
	FutureSkewMinutes  int   `toml:"future_skew_minutes"`
	PageLimit          int   `toml:"page_limit"`

	Database   DatabaseConfig   `toml:"database"`
	BlobStore  BlobStoreConfig  `toml:"blob_store"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// DatabaseConfig configures the relational store's connection pool.
type DatabaseConfig struct {
	Path        string `toml:"path"`
	ReaderConns int    `toml:"reader_conns"`
}

// BlobStoreConfig is a tagged union: Type selects which other fields apply.
type BlobStoreConfig struct {
	Type string `toml:"type"` // "filesystem" or "s3"

	// filesystem
	Root string `toml:"root,omitempty"`

	// s3
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for `db backup
// --encrypt`.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// Default values applied by NewConfig.
const (
	DefaultItemMaxBytes       = 1 << 20   // 1 MiB
	DefaultAttachmentMaxBytes = 50 << 20  // 50 MiB
	DefaultFutureSkewMinutes  = 5
	DefaultPageLimit          = 100
	DefaultReaderConns        = 4
)

// NewConfig creates a Config with diskuto's defaults rooted at dataDir.
func NewConfig(dataDir string) *Config {
	return &Config{
		DataDir:            dataDir,
		Bind:               "127.0.0.1:8080",
		LogDir:             filepath.Join(dataDir, "log"),
		ItemMaxBytes:       DefaultItemMaxBytes,
		AttachmentMaxBytes: DefaultAttachmentMaxBytes,
		FutureSkewMinutes:  DefaultFutureSkewMinutes,
		PageLimit:          DefaultPageLimit,
		Database: DatabaseConfig{
			Path:        filepath.Join(dataDir, "diskuto.sqlite3"),
			ReaderConns: DefaultReaderConns,
		},
		BlobStore: BlobStoreConfig{
			Type: "filesystem",
			Root: dataDir,
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(dataDir, "keys", "backup.pub"),
			PrivateKeyPath: filepath.Join(dataDir, "keys", "backup.key"),
		},
	}
}

// applyEnvOverrides overrides the operationally-hot knobs from DISKUTO_*
// environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DISKUTO_BIND"); v != "" {
		c.Bind = v
	}
	if v := os.Getenv("DISKUTO_DATA_DIR"); v != "" {
		c.DataDir = v
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and applies environment
// overrides.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyEnvOverrides()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
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

// Init initializes a new config file at the specified path with the
// provided Config. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
