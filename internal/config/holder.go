package config

import (
	"slices"
	"sync"
)

// Holder publishes the configuration a running server reads per request.
// Upload handlers pick up a new default folder, size limit or type list on
// their next request; the file path is fixed for the life of the server.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Config returns the current snapshot. Callers must not mutate it.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

func (h *Holder) Path() string {
	return h.path
}

// Update publishes cfg and returns the keys whose values differ from the
// previous snapshot.
func (h *Holder) Update(cfg *Config) []string {
	h.mu.Lock()
	prev := h.cfg
	h.cfg = cfg
	h.mu.Unlock()

	return changedKeys(prev, cfg)
}

// restartKeys are read once at startup. Changing them in the file has no
// effect until the server restarts.
var restartKeys = []string{
	"graph.tenant_id", "graph.client_id", "graph.client_secret", "graph.drive_id",
	"graph.api_base_url", "graph.api_version", "graph.authority_host", "graph.scopes",
	"upload.link_type", "upload.link_scope", "upload.verify_folder",
	"server.listen", "server.static_dir",
	"logging.log_level", "logging.log_format", "logging.sentry_dsn",
	"network.request_timeout", "network.user_agent",
}

// RestartRequired filters keys down to those a reload cannot apply.
func RestartRequired(keys []string) []string {
	var out []string

	for _, k := range keys {
		if slices.Contains(restartKeys, k) {
			out = append(out, k)
		}
	}

	return out
}

func changedKeys(a, b *Config) []string {
	if a == nil || b == nil {
		return nil
	}

	var keys []string

	diff := func(key string, changed bool) {
		if changed {
			keys = append(keys, key)
		}
	}

	diff("graph.tenant_id", a.Graph.TenantID != b.Graph.TenantID)
	diff("graph.client_id", a.Graph.ClientID != b.Graph.ClientID)
	diff("graph.client_secret", a.Graph.ClientSecret != b.Graph.ClientSecret)
	diff("graph.drive_id", a.Graph.DriveID != b.Graph.DriveID)
	diff("graph.api_base_url", a.Graph.APIBaseURL != b.Graph.APIBaseURL)
	diff("graph.api_version", a.Graph.APIVersion != b.Graph.APIVersion)
	diff("graph.authority_host", a.Graph.AuthorityHost != b.Graph.AuthorityHost)
	diff("graph.scopes", !slices.Equal(a.Graph.Scopes, b.Graph.Scopes))

	diff("upload.default_folder", a.Upload.DefaultFolder != b.Upload.DefaultFolder)
	diff("upload.max_upload_size", a.Upload.MaxUploadBytes() != b.Upload.MaxUploadBytes())
	diff("upload.allowed_types", !slices.Equal(a.Upload.AllowedTypes, b.Upload.AllowedTypes))
	diff("upload.link_type", a.Upload.LinkType != b.Upload.LinkType)
	diff("upload.link_scope", a.Upload.LinkScope != b.Upload.LinkScope)
	diff("upload.verify_folder", a.Upload.VerifyFolder != b.Upload.VerifyFolder)

	diff("server.listen", a.Server.Listen != b.Server.Listen)
	diff("server.environment", a.Server.Environment != b.Server.Environment)
	diff("server.allowed_origins", !slices.Equal(a.Server.AllowedOrigins, b.Server.AllowedOrigins))
	diff("server.static_dir", a.Server.StaticDir != b.Server.StaticDir)
	diff("server.shutdown_timeout", a.Server.ShutdownTimeout != b.Server.ShutdownTimeout)

	diff("logging.log_level", a.Logging.LogLevel != b.Logging.LogLevel)
	diff("logging.log_format", a.Logging.LogFormat != b.Logging.LogFormat)
	diff("logging.sentry_dsn", a.Logging.SentryDSN != b.Logging.SentryDSN)

	diff("network.request_timeout", a.Network.RequestTimeout != b.Network.RequestTimeout)
	diff("network.user_agent", a.Network.UserAgent != b.Network.UserAgent)

	return keys
}
