// Package config handles reading and writing the chronicle configuration
// file (TOML).
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for chronicle.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Engine     EngineConfig     `toml:"engine"`
	Index      IndexConfig      `toml:"index"`
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// EngineConfig holds the storage engine's repair and migration settings.
type EngineConfig struct {
	AutoRepair           bool `toml:"auto_repair"`
	BackupBeforeRepair   bool `toml:"backup_before_repair"`
	MigrateOnRead        bool `toml:"migrate_on_read"`
	SetDefaults          bool `toml:"repair_set_defaults"`
	RecalculateChecksums bool `toml:"repair_recalculate_checksums"`
	FixReferences        bool `toml:"repair_fix_references"`
	RemoveCorruptedItems bool `toml:"repair_remove_corrupted_items"`
}

// IndexConfig represents configuration for the search index.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type IndexConfig struct {
	Type string `toml:"type"`           // "sqlite", "memory", or "none"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// VaultConfig represents configuration for the off-store backup vault.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "filesystem", "memory", "s3", or "none"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3"). When the access key
	// fields are empty the default AWS credential chain is used.
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for export
// encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NewConfig creates a new Config with the provided base directory and
// sensible defaults.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Engine: EngineConfig{
			AutoRepair:           true,
			BackupBeforeRepair:   true,
			MigrateOnRead:        true,
			SetDefaults:          true,
			RecalculateChecksums: true,
			FixReferences:        true,
		},
		Index: IndexConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "store", "indexes", "search.db"),
		},
		Vault: VaultConfig{
			Type: "none",
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "chronicle.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "chronicle.key"),
		},
	}
}

// StoreDir returns the directory holding the store tree.
func (c *Config) StoreDir() string {
	return filepath.Join(c.BaseDir, "store")
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
// provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
