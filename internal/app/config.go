package app

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/authshim/internal/credential"
	"github.com/florianilch/authshim/internal/observability"
	"github.com/florianilch/authshim/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageType represents the backends supported for the stored credential.
type StorageType string

const (
	StorageTypeFile    StorageType = "file"
	StorageTypeEnv     StorageType = "env"
	StorageTypeKeyring StorageType = "keyring"
	StorageTypeSQLite  StorageType = "sqlite"
	StorageTypeMemory  StorageType = "memory"
)

// Default configuration values
const (
	DefaultConfigLogFormat         = LogFormatText
	DefaultConfigTelemetryExporter = observability.ExporterNone
	DefaultConfigServerHost        = "127.0.0.1"
	DefaultConfigServerPort        = 4000
	DefaultConfigShutdownTimeout   = 5 * time.Second
	DefaultConfigUpstreamBaseURL   = "http://localhost:8080"
	DefaultConfigStorageType       = StorageTypeFile
	DefaultConfigRequestTimeout    = 30 * time.Second
)

// appName names the per-user config directory and keyring service.
const appName = "authshim"

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// UpstreamConfig holds upstream API configuration. The origin of BaseURL is
// the page origin relative call targets resolve against and the scope the
// credential is stored under.
type UpstreamConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	// Timeout bounds calls issued by the fetch command.
	Timeout time.Duration `json:"timeout"`
}

// Origin returns the scheme and host of BaseURL.
func (u *UpstreamConfig) Origin() (string, error) {
	parsed, err := url.Parse(u.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid upstream URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("upstream URL %q must be absolute", u.BaseURL)
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

// TelemetryConfig holds log export configuration.
type TelemetryConfig struct {
	Exporter observability.Exporter `json:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
}

// StorageConfig describes where the credential is persisted.
type StorageConfig struct {
	Type StorageType `json:"type" validate:"required,oneof=file env keyring sqlite memory"`

	// Storage-specific settings (mutually exclusive based on Type)
	File           string `json:"file,omitempty"`            // For file storage: path to token file
	EnvKey         string `json:"env_key,omitempty"`         // For env storage: environment variable name
	KeyringService string `json:"keyring_service,omitempty"` // For keyring storage: service identifier
	SQLitePath     string `json:"sqlite_path,omitempty"`     // For sqlite storage: database file
}

// NewTokenStore creates the storage backend for the credential of origin.
func (s *StorageConfig) NewTokenStore(origin string) (tokenstore.TokenStore, error) {
	switch s.Type {
	case StorageTypeFile:
		return tokenstore.NewFileStore(s.File)
	case StorageTypeEnv:
		return tokenstore.NewEnvStore(s.EnvKey)
	case StorageTypeKeyring:
		return tokenstore.NewKeyringStore(s.KeyringService, credential.StorageKey)
	case StorageTypeSQLite:
		return tokenstore.NewSQLiteStore(s.SQLitePath, origin, credential.StorageKey)
	case StorageTypeMemory:
		return tokenstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

// DebugConfig controls the token inspection endpoints.
type DebugConfig struct {
	// Enabled exposes get/set/clear of the credential over HTTP without access control.
	Enabled bool `json:"enabled"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Server    ServerConfig    `json:"server"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
	Upstream  UpstreamConfig  `json:"upstream"`
	Storage   StorageConfig   `json:"storage"`
	Debug     DebugConfig     `json:"debug"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExporter
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultConfigUpstreamBaseURL
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultConfigRequestTimeout
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorageType
	}

	// Dynamic defaults based on storage type, scoped by upstream origin
	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.File == "" {
			dir, err := c.originConfigDir()
			if err != nil {
				return fmt.Errorf("storage.file required (auto-detect failed: %w)", err)
			}
			c.Storage.File = filepath.Join(dir, credential.StorageKey)
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringService == "" {
			origin, err := c.Upstream.Origin()
			if err != nil {
				return fmt.Errorf("storage.keyring_service required (auto-detect failed: %w)", err)
			}
			c.Storage.KeyringService = appName + "/" + origin
		}
	case StorageTypeSQLite:
		if c.Storage.SQLitePath == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.sqlite_path required (auto-detect failed: %w)", err)
			}
			c.Storage.SQLitePath = filepath.Join(configDir, appName, "tokens.db")
		}
	case StorageTypeEnv, StorageTypeMemory:
		// env_key must be explicitly configured (no sensible default)
	}

	return nil
}

// originConfigDir returns the per-user directory holding state for the upstream origin.
func (c *Config) originConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	origin, err := c.Upstream.Origin()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName, url.PathEscape(origin)), nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if _, err := c.Upstream.Origin(); err != nil {
		return err
	}

	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.File == "" {
			return fmt.Errorf("file path required for file storage")
		}
	case StorageTypeEnv:
		if c.Storage.EnvKey == "" {
			return fmt.Errorf("env_key required for env storage")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringService == "" {
			return fmt.Errorf("keyring_service required for keyring storage")
		}
	case StorageTypeSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite_path required for sqlite storage")
		}
	}

	return nil
}
