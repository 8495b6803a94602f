// Package config implements TOML configuration loading, validation, and
// reload for sav-uploader. Values resolve through a four-layer override chain
// (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Graph   GraphConfig   `toml:"graph" json:"graph"`
	Upload  UploadConfig  `toml:"upload" json:"upload"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Network NetworkConfig `toml:"network" json:"network"`
}

// GraphConfig identifies the app registration and the target drive.
type GraphConfig struct {
	TenantID      string   `toml:"tenant_id" json:"tenant_id"`
	ClientID      string   `toml:"client_id" json:"client_id"`
	ClientSecret  string   `toml:"client_secret" json:"client_secret"`
	DriveID       string   `toml:"drive_id" json:"drive_id"`
	APIBaseURL    string   `toml:"api_base_url" json:"api_base_url"`
	APIVersion    string   `toml:"api_version" json:"api_version"`
	AuthorityHost string   `toml:"authority_host" json:"authority_host"`
	Scopes        []string `toml:"scopes" json:"scopes"`
}

// UploadConfig controls what is accepted and where it is stored.
// allowed_types entries may end in "/*" to accept a whole media type.
type UploadConfig struct {
	DefaultFolder string   `toml:"default_folder" json:"default_folder"`
	MaxUploadSize string   `toml:"max_upload_size" json:"max_upload_size"`
	AllowedTypes  []string `toml:"allowed_types" json:"allowed_types"`
	LinkType      string   `toml:"link_type" json:"link_type"`
	LinkScope     string   `toml:"link_scope" json:"link_scope"`
	VerifyFolder  bool     `toml:"verify_folder" json:"verify_folder"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen          string   `toml:"listen" json:"listen"`
	Environment     string   `toml:"environment" json:"environment"`
	AllowedOrigins  []string `toml:"allowed_origins" json:"allowed_origins"`
	StaticDir       string   `toml:"static_dir" json:"static_dir"`
	ShutdownTimeout string   `toml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LoggingConfig controls log output. sentry_dsn enables error reporting.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
	SentryDSN string `toml:"sentry_dsn" json:"sentry_dsn"`
}

// NetworkConfig controls the outbound HTTP client.
type NetworkConfig struct {
	RequestTimeout string `toml:"request_timeout" json:"request_timeout"`
	UserAgent      string `toml:"user_agent" json:"user_agent"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish
// "not specified" (nil) from an explicit value.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Listen     *string // serve --listen
	LogLevel   *string // derived from --verbose / --quiet
}

// IsProduction reports whether the server runs in production mode, which
// hides error details and serves the static client.
func (s *ServerConfig) IsProduction() bool {
	return s.Environment == EnvironmentProduction
}

// MaxUploadBytes returns max_upload_size in bytes, or the default when the
// value does not parse. Validate rejects unparseable values beforehand.
func (u *UploadConfig) MaxUploadBytes() int64 {
	n, err := ParseSize(u.MaxUploadSize)
	if err != nil || n <= 0 {
		n, _ = ParseSize(defaultMaxUploadSize) //nolint:errcheck // constant
	}

	return n
}

// ShutdownTimeoutDuration returns shutdown_timeout, or the default.
func (s *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return parseDurationOr(s.ShutdownTimeout, defaultShutdownTimeout)
}

// RequestTimeoutDuration returns request_timeout, or the default.
func (n *NetworkConfig) RequestTimeoutDuration() time.Duration {
	return parseDurationOr(n.RequestTimeout, defaultRequestTimeout)
}

func parseDurationOr(s, fallback string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		d, _ = time.ParseDuration(fallback) //nolint:errcheck // constant
	}

	return d
}
