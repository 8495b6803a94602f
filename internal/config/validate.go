package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fruitstock/sav-uploader/internal/cors"
	"github.com/fruitstock/sav-uploader/internal/logging"
)

// Validation range constants.
const (
	minShutdownTimeout = 1 * time.Second
	minRequestTimeout  = 1 * time.Second
	maxUploadCeiling   = 250 * mebibyte // single-request upload limit on business drives
)

var (
	validLinkTypes  = map[string]bool{"view": true, "edit": true, "embed": true}
	validLinkScopes = map[string]bool{"anonymous": true, "organization": true, "users": true}
	validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}
)

// ErrMissingCredentials is returned by RequireCredentials.
var ErrMissingCredentials = errors.New("missing credentials")

// Validate checks all configuration values and returns all errors found.
// Credentials are not required here; see RequireCredentials.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateGraph(&cfg.Graph)...)
	errs = append(errs, validateUpload(&cfg.Upload)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// RequireCredentials checks that the app registration is fully configured.
// The drive ID is only needed by commands that touch the drive.
func RequireCredentials(cfg *Config, needDrive bool) error {
	var missing []string

	if cfg.Graph.TenantID == "" {
		missing = append(missing, "graph.tenant_id ("+EnvTenantID+")")
	}

	if cfg.Graph.ClientID == "" {
		missing = append(missing, "graph.client_id ("+EnvClientID+")")
	}

	if cfg.Graph.ClientSecret == "" {
		missing = append(missing, "graph.client_secret ("+EnvClientSecret+")")
	}

	if needDrive && cfg.Graph.DriveID == "" {
		missing = append(missing, "graph.drive_id ("+EnvDriveID+")")
	}

	if len(missing) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
}

func validateGraph(g *GraphConfig) []error {
	var errs []error

	if err := validateURL(g.APIBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("graph.api_base_url: %w", err))
	}

	if err := validateURL(g.AuthorityHost); err != nil {
		errs = append(errs, fmt.Errorf("graph.authority_host: %w", err))
	}

	if strings.Trim(g.APIVersion, "/") == "" {
		errs = append(errs, errors.New("graph.api_version: must not be empty"))
	}

	if len(g.Scopes) == 0 {
		errs = append(errs, errors.New("graph.scopes: must list at least one scope"))
	}

	return errs
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL, got %q", raw)
	}

	return nil
}

func validateUpload(u *UploadConfig) []error {
	var errs []error

	folder := strings.Trim(u.DefaultFolder, "/")
	if folder == "" {
		errs = append(errs, errors.New("upload.default_folder: must not be empty"))
	} else if strings.ContainsAny(folder, `\:*?"<>|`) {
		errs = append(errs, fmt.Errorf("upload.default_folder: %q contains characters OneDrive does not allow", u.DefaultFolder))
	}

	size, err := ParseSize(u.MaxUploadSize)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("upload.max_upload_size: %w", err))
	case size <= 0:
		errs = append(errs, errors.New("upload.max_upload_size: must be greater than zero"))
	case size > maxUploadCeiling:
		errs = append(errs, fmt.Errorf("upload.max_upload_size: must not exceed 250MiB, got %s", u.MaxUploadSize))
	}

	if len(u.AllowedTypes) == 0 {
		errs = append(errs, errors.New("upload.allowed_types: must list at least one type"))
	}

	for _, t := range u.AllowedTypes {
		if major, minor, ok := strings.Cut(t, "/"); !ok || major == "" || minor == "" {
			errs = append(errs, fmt.Errorf("upload.allowed_types: %q is not a media type", t))
		}
	}

	if !validLinkTypes[u.LinkType] {
		errs = append(errs, fmt.Errorf("upload.link_type: must be view, edit or embed, got %q", u.LinkType))
	}

	if !validLinkScopes[u.LinkScope] {
		errs = append(errs, fmt.Errorf("upload.link_scope: must be anonymous, organization or users, got %q", u.LinkScope))
	}

	return errs
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if s.Listen == "" {
		errs = append(errs, errors.New("server.listen: must not be empty"))
	}

	if s.Environment == "" {
		errs = append(errs, errors.New("server.environment: must not be empty"))
	}

	if _, err := cors.Compile(s.AllowedOrigins); err != nil {
		errs = append(errs, fmt.Errorf("server.allowed_origins: %w", err))
	}

	if err := validateDuration(s.ShutdownTimeout, minShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout: %w", err))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if _, err := logging.ParseLevel(l.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("logging.log_level: %w", err))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be auto, text or json, got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	if err := validateDuration(n.RequestTimeout, minRequestTimeout); err != nil {
		return []error{fmt.Errorf("network.request_timeout: %w", err)}
	}

	return nil
}

func validateDuration(s string, minimum time.Duration) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	if d < minimum {
		return fmt.Errorf("must be at least %s, got %s", minimum, s)
	}

	return nil
}
