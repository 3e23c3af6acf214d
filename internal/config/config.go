// Package config provides YAML-based configuration for the model server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration document.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Processing ProcessingConfig `yaml:"processing"`
	Advanced   AdvancedConfig   `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bindAddress"`
	EnableCORS   bool   `yaml:"enableCors"`
	AllowOrigins string `yaml:"allowOrigins"`
	ReadTimeout  int    `yaml:"readTimeoutSeconds"`
	WriteTimeout int    `yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `yaml:"idleTimeoutSeconds"`
	BodyLimit    string `yaml:"bodyLimit"`
}

// StorageConfig contains file storage settings.
type StorageConfig struct {
	DataDirectory    string `yaml:"dataDirectory"`
	UploadsDirectory string `yaml:"uploadsDirectory"`
	CatalogDirectory string `yaml:"catalogDirectory"`
	WatchUploads     bool   `yaml:"watchUploads"`
	AllowDeletion    bool   `yaml:"allowDeletion"`
	// AllowedFileTypes is informational for clients; uploads are not
	// filtered by extension.
	AllowedFileTypes string `yaml:"allowedFileTypes"`
}

// ProcessingConfig contains indexing and response settings.
type ProcessingConfig struct {
	JobRetentionMinutes    int  `yaml:"jobRetentionMinutes"`
	CleanupIntervalMinutes int  `yaml:"cleanupIntervalMinutes"`
	EnableCompression      bool `yaml:"enableCompression"`
	CompressionLevel       int  `yaml:"compressionLevel"`
	PreviewWidth           int  `yaml:"previewWidth"`
	PreviewHeight          int  `yaml:"previewHeight"`
}

// AdvancedConfig contains tuning options.
type AdvancedConfig struct {
	LogLevel             string `yaml:"logLevel"`
	LogFormat            string `yaml:"logFormat"` // "json" or "console"
	EnableRequestLogging bool   `yaml:"enableRequestLogging"`
	DuckDBThreads        int    `yaml:"duckdbThreads"`
	DuckDBMemoryLimit    string `yaml:"duckdbMemoryLimit"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         5000,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 60,
			IdleTimeout:  120,
			BodyLimit:    "512M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			CatalogDirectory: "./data/catalog",
			WatchUploads:     true,
			AllowDeletion:    true,
			AllowedFileTypes: ".stl,.obj",
		},
		Processing: ProcessingConfig{
			JobRetentionMinutes:    30,
			CleanupIntervalMinutes: 5,
			EnableCompression:      true,
			CompressionLevel:       5,
			PreviewWidth:           512,
			PreviewHeight:          512,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			LogFormat:            "console",
			EnableRequestLogging: true,
			DuckDBThreads:        2,
			DuckDBMemoryLimit:    "512MB",
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults
// there first if it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Model viewer server configuration\n# Generated on first run\n\n")
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides lets environment variables override file values.
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR moves every storage directory that was left relative to it.
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		old := c.Storage.DataDirectory
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = rebase(c.Storage.UploadsDirectory, old, dataDir)
		c.Storage.CatalogDirectory = rebase(c.Storage.CatalogDirectory, old, dataDir)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = strings.ToLower(level)
	}
}

func rebase(path, oldRoot, newRoot string) string {
	rel, err := filepath.Rel(oldRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.Join(newRoot, rel)
}

// resolvePaths makes relative paths absolute against the config directory.
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.CatalogDirectory,
	} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetDataDir returns the absolute data directory path.
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path.
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetCatalogPath returns the DuckDB catalog file path.
func (c *AppConfig) GetCatalogPath() string {
	return filepath.Join(c.Storage.CatalogDirectory, "models.duckdb")
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all storage directories.
func (c *AppConfig) EnsureDirectories() error {
	for _, dir := range []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.CatalogDirectory,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
