package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for cx.
type Config struct {
	BaseDir         string                     `toml:"base_dir"`
	OutputDir       string                     `toml:"output_dir"`
	LogDir          string                     `toml:"log_dir,omitempty"` // empty = the run's output directory
	Project         string                     `toml:"project,omitempty"` // default project to export
	Formats         []string                   `toml:"formats"`
	SourceExtension string                     `toml:"source_extension"`
	SkipExisting    bool                       `toml:"skip_existing"`
	Library         LibraryConfig              `toml:"library"`
	Converters      map[string]ConverterConfig `toml:"converters"`
	Encryption      EncryptionConfig           `toml:"encryption"`
	Database        DatabaseConfig             `toml:"database"`
}

// LibraryConfig selects where projects are read from.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type LibraryConfig struct {
	Type   string   `toml:"type"` // "filesystem", "s3" or "memory"
	Ignore []string `toml:"ignore,omitempty"`

	// Filesystem-specific fields (only used when Type == "filesystem")
	Root string `toml:"root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// ConverterConfig describes how to produce one export format.
// Command is an argv template; "{input}" and "{output}" are replaced by the
// source and destination paths. An empty Command means "copy the source",
// which only makes sense for the native archive format.
type ConverterConfig struct {
	Command []string `toml:"command"`
	Timeout string   `toml:"timeout,omitempty"` // Go duration; empty = no timeout
}

// EncryptionConfig controls sealing of exported files.
type EncryptionConfig struct {
	Enabled        bool   `toml:"enabled"`
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DatabaseConfig represents configuration for the export history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a new Config with the provided values and defaults.
func NewConfig(baseDir, outputDir string) *Config {
	return &Config{
		BaseDir:         baseDir,
		OutputDir:       outputDir,
		Formats:         []string{"f3d", "step"},
		SourceExtension: "f3d",
		Library: LibraryConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "library"),
		},
		Converters: map[string]ConverterConfig{
			"f3d": {},
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "cx.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "cx.key"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
	}
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
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
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
