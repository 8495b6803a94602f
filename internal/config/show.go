package config

import (
	"fmt"
	"io"
	"strings"
)

const redacted = "(redacted)"

// RenderEffective writes the resolved configuration to w in TOML form so it
// can be pasted back into a config file. Secrets are redacted.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (defaults -> file -> env -> flags)\n\n")

	renderGraphSection(ew, &cfg.Graph)
	renderUploadSection(ew, &cfg.Upload)
	renderServerSection(ew, &cfg.Server)
	renderLoggingSection(ew, &cfg.Logging)
	renderNetworkSection(ew, &cfg.Network)

	return ew.err
}

// errWriter keeps the first write error so callers can chain printf calls.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderGraphSection(ew *errWriter, g *GraphConfig) {
	ew.printf("[graph]\n")
	ew.printf("tenant_id      = %q\n", g.TenantID)
	ew.printf("client_id      = %q\n", g.ClientID)
	ew.printf("client_secret  = %q\n", redact(g.ClientSecret))
	ew.printf("drive_id       = %q\n", g.DriveID)
	ew.printf("api_base_url   = %q\n", g.APIBaseURL)
	ew.printf("api_version    = %q\n", g.APIVersion)
	ew.printf("authority_host = %q\n", g.AuthorityHost)
	ew.printf("scopes         = [%s]\n\n", joinQuoted(g.Scopes))
}

func renderUploadSection(ew *errWriter, u *UploadConfig) {
	ew.printf("[upload]\n")
	ew.printf("default_folder  = %q\n", u.DefaultFolder)
	ew.printf("max_upload_size = %q\n", u.MaxUploadSize)
	ew.printf("allowed_types   = [%s]\n", joinQuoted(u.AllowedTypes))
	ew.printf("link_type       = %q\n", u.LinkType)
	ew.printf("link_scope      = %q\n", u.LinkScope)
	ew.printf("verify_folder   = %t\n\n", u.VerifyFolder)
}

func renderServerSection(ew *errWriter, s *ServerConfig) {
	ew.printf("[server]\n")
	ew.printf("listen           = %q\n", s.Listen)
	ew.printf("environment      = %q\n", s.Environment)
	ew.printf("allowed_origins  = [%s]\n", joinQuoted(s.AllowedOrigins))

	if s.StaticDir != "" {
		ew.printf("static_dir       = %q\n", s.StaticDir)
	}

	ew.printf("shutdown_timeout = %q\n\n", s.ShutdownTimeout)
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("log_level  = %q\n", l.LogLevel)
	ew.printf("log_format = %q\n", l.LogFormat)

	if l.SentryDSN != "" {
		ew.printf("sentry_dsn = %q\n", redacted)
	}

	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("[network]\n")
	ew.printf("request_timeout = %q\n", n.RequestTimeout)

	if n.UserAgent != "" {
		ew.printf("user_agent      = %q\n", n.UserAgent)
	}
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}

	return redacted
}

func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}

// Redacted returns a copy of cfg with secrets replaced, for JSON output.
func Redacted(cfg *Config) *Config {
	out := *cfg
	out.Graph.Scopes = append([]string(nil), cfg.Graph.Scopes...)
	out.Upload.AllowedTypes = append([]string(nil), cfg.Upload.AllowedTypes...)
	out.Server.AllowedOrigins = append([]string(nil), cfg.Server.AllowedOrigins...)
	out.Graph.ClientSecret = redact(cfg.Graph.ClientSecret)
	out.Logging.SentryDSN = redact(cfg.Logging.SentryDSN)

	return &out
}
