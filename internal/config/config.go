// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"time"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Preload       PreloadConfig       `mapstructure:"preload"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	Driver               string            `mapstructure:"driver"` // mysql, tidb, postgres, sqlite
	ConnectionString     string            `mapstructure:"dsn"`
	ConnectionStringFile string            `mapstructure:"dsn_file"`
	Host                 string            `mapstructure:"host"`
	Port                 int               `mapstructure:"port"`
	User                 string            `mapstructure:"user"`
	Password             string            `mapstructure:"password"`
	PasswordFile         string            `mapstructure:"password_file"`
	PasswordPrompt       bool              `mapstructure:"password_prompt"`
	Database             string            `mapstructure:"database"`
	TLS                  DatabaseTLSConfig `mapstructure:"tls"`
	Pool                 PoolConfig        `mapstructure:"pool"`

	ConnectionTimeout       time.Duration `mapstructure:"connection_timeout"`
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// DatabaseTLSConfig holds TLS settings for the database connection.
type DatabaseTLSConfig struct {
	Mode       string `mapstructure:"mode"` // off, skip-verify, verify-ca, verify-full
	CAFile     string `mapstructure:"ca_file"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	ServerName string `mapstructure:"server_name"`
}

// PoolConfig holds connection pool limits.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// PreloadConfig controls a preload run.
type PreloadConfig struct {
	GraphFile   string        `mapstructure:"graph_file"`
	MaxInClause int           `mapstructure:"max_in_clause"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Root        RootConfig    `mapstructure:"root"`
	Output      OutputConfig  `mapstructure:"output"`
}

// RootConfig selects the root records that seed the store.
type RootConfig struct {
	Entity  string   `mapstructure:"entity"`
	Where   string   `mapstructure:"where"`
	OrderBy []string `mapstructure:"order_by"`
	Limit   uint64   `mapstructure:"limit"`
}

// OutputConfig controls how loaded records are rendered.
type OutputConfig struct {
	Format string `mapstructure:"format"` // json, yaml, msgpack
	Depth  int    `mapstructure:"depth"`
	File   string `mapstructure:"file"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName         string        `mapstructure:"service_name"`
	ServiceVersion      string        `mapstructure:"service_version"`
	Environment         string        `mapstructure:"environment"`
	MetricsEnabled      bool          `mapstructure:"metrics_enabled"`
	MetricsTextfile     string        `mapstructure:"metrics_textfile"`
	TracingEnabled      bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio    float64       `mapstructure:"trace_sample_ratio"`
	SQLCommenterEnabled bool          `mapstructure:"sqlcommenter_enabled"`
	Logging             LoggingConfig `mapstructure:"logging"`

	OTLP OTLPConfig `mapstructure:"otlp"`

	// Signal-specific overrides (optional)
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"`
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"`
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
}

// GetTracesConfig returns the OTLP settings for traces with overrides applied.
func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig {
	if c.Traces == nil {
		return c.OTLP
	}
	return mergeOTLPConfigs(c.OTLP, *c.Traces)
}

// GetLogsConfig returns the OTLP settings for logs with overrides applied.
func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig {
	if c.Logs == nil {
		return c.OTLP
	}
	return mergeOTLPConfigs(c.OTLP, *c.Logs)
}

func mergeOTLPConfigs(base OTLPConfig, override OTLPConfig) OTLPConfig {
	merged := base
	if override.Endpoint != "" {
		merged.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		merged.Protocol = override.Protocol
	}
	if override.Insecure {
		merged.Insecure = true
	}
	if override.TLSCertFile != "" {
		merged.TLSCertFile = override.TLSCertFile
	}
	if override.TLSClientCertFile != "" {
		merged.TLSClientCertFile = override.TLSClientCertFile
	}
	if override.TLSClientKeyFile != "" {
		merged.TLSClientKeyFile = override.TLSClientKeyFile
	}
	if len(override.Headers) > 0 {
		merged.Headers = override.Headers
	}
	if override.Timeout > 0 {
		merged.Timeout = override.Timeout
	}
	if override.Compression != "" {
		merged.Compression = override.Compression
	}
	if override.RetryEnabled {
		merged.RetryEnabled = true
	}
	return merged
}
