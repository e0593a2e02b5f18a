package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"aca-sandbox/internal/policy"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Audit    AuditConfig    `yaml:"audit"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Security SecurityConfig `yaml:"security"`
	TLS      TLSConfig      `yaml:"tls"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
	MaxCodeChars    int           `yaml:"max_code_chars"` // Longer /execute submissions are rejected up front
}

type SandboxConfig struct {
	Dir                 string        `yaml:"dir"` // Data directory: manifest file, readable files
	DefaultLanguage     string        `yaml:"default_language"`
	DefaultCapabilities string        `yaml:"default_capabilities"`
	SlowThreshold       time.Duration `yaml:"slow_threshold"`
	MaxSourceBytes      int           `yaml:"max_source_bytes"`
	MaxOutputBytes      int           `yaml:"max_output_bytes"`
	RequireConfirmation bool          `yaml:"require_confirmation"`
	ReadLines           int           `yaml:"read_lines"` // Default line count for file reads
}

// AuditConfig selects where the last-run manifest is recorded.
type AuditConfig struct {
	Sink       string `yaml:"sink"` // "file" (default), "sqlite", "postgres", or "memory"
	SQLitePath string `yaml:"sqlite_path"`
	BufferSize int    `yaml:"buffer_size"` // Postgres writer queue
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Endpoint string  `yaml:"endpoint"`
	Sample   float64 `yaml:"sample_rate"`
}

type SecurityConfig struct {
	APIKeyHeader   string   `yaml:"api_key_header"`
	AllowedKeys    []string `yaml:"allowed_keys"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

// TLSConfig controls HTTPS/TLS termination.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to defaults (plus
// environment overrides) otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    65 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  1 << 20, // 1MB
			MaxCodeChars:    10000,
		},
		Sandbox: SandboxConfig{
			Dir:                 defaultSandboxDir(),
			DefaultLanguage:     "python",
			DefaultCapabilities: policy.Default,
			SlowThreshold:       8 * time.Second,
			MaxSourceBytes:      1 << 20,
			MaxOutputBytes:      1 << 20,
			ReadLines:           20,
		},
		Audit: AuditConfig{
			Sink:       "file",
			BufferSize: 64,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled: false,
			Sample:  0.1,
		},
		Security: SecurityConfig{
			APIKeyHeader:   "X-API-Key",
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
		TLS: TLSConfig{
			Enabled: false,
		},
	}
}

func defaultSandboxDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "aca_data"
	}
	return filepath.Join(home, "aca_data")
}

// ApplyEnv overrides file values with PORT, ACA_SANDBOX_DIR, ACA_AUDIT_SINK
// and DATABASE_URL when they are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		} else {
			log.Warn().Str("PORT", v).Msg("ignoring non-numeric PORT")
		}
	}
	if v := os.Getenv("ACA_SANDBOX_DIR"); v != "" {
		c.Sandbox.Dir = v
	}
	if v := os.Getenv("ACA_AUDIT_SINK"); v != "" {
		c.Audit.Sink = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.MaxCodeChars < 1 {
		return fmt.Errorf("server.max_code_chars must be >= 1")
	}
	if c.Sandbox.Dir == "" {
		return fmt.Errorf("sandbox.dir is required")
	}
	if c.Sandbox.SlowThreshold <= 0 {
		return fmt.Errorf("sandbox.slow_threshold must be > 0")
	}
	if c.Sandbox.MaxSourceBytes < 1 || c.Sandbox.MaxOutputBytes < 1 {
		return fmt.Errorf("sandbox.max_source_bytes and max_output_bytes must be >= 1")
	}
	if c.Sandbox.ReadLines < 1 {
		return fmt.Errorf("sandbox.read_lines must be >= 1")
	}
	if _, err := policy.Lookup(c.Sandbox.DefaultCapabilities); err != nil {
		return fmt.Errorf("sandbox.default_capabilities: %w", err)
	}
	switch c.Audit.Sink {
	case "file", "memory":
	case "sqlite":
		if c.Audit.SQLitePath == "" {
			c.Audit.SQLitePath = filepath.Join(c.Sandbox.Dir, "manifest.db")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required when audit.sink is postgres")
		}
		if c.Audit.BufferSize < 1 {
			return fmt.Errorf("audit.buffer_size must be >= 1")
		}
	default:
		return fmt.Errorf("unknown audit.sink %q: must be file, sqlite, postgres, or memory", c.Audit.Sink)
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable, connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
