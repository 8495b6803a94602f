package config

import (
	"os"
	"strings"
)

// Environment variable names for overrides. The Microsoft and OneDrive names
// match what the service's deployments already define.
const (
	EnvConfig       = "SAV_CONFIG"
	EnvClientID     = "MICROSOFT_CLIENT_ID"
	EnvClientSecret = "MICROSOFT_CLIENT_SECRET"
	EnvTenantID     = "MICROSOFT_TENANT_ID"
	EnvDriveID      = "ONEDRIVE_DRIVE_ID"
	EnvFolder       = "ONEDRIVE_FOLDER"
	EnvPort         = "PORT"
	EnvAppEnv       = "APP_ENV"
	EnvNodeEnv      = "NODE_ENV"
	EnvClientURL    = "CLIENT_URL"
	EnvLogLevel     = "LOG_LEVEL"
	EnvSentryDSN    = "SENTRY_DSN"
)

// EnvOverrides holds values derived from environment variables. Empty
// fields leave the file value alone.
type EnvOverrides struct {
	ConfigPath   string
	ClientID     string
	ClientSecret string
	TenantID     string
	DriveID      string
	Folder       string
	Port         string
	Environment  string
	ClientURL    string
	LogLevel     string
	SentryDSN    string
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// APP_ENV wins over NODE_ENV when both are set.
func ReadEnvOverrides() EnvOverrides {
	environment := os.Getenv(EnvAppEnv)
	if environment == "" {
		environment = os.Getenv(EnvNodeEnv)
	}

	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		TenantID:     os.Getenv(EnvTenantID),
		DriveID:      os.Getenv(EnvDriveID),
		Folder:       os.Getenv(EnvFolder),
		Port:         os.Getenv(EnvPort),
		Environment:  environment,
		ClientURL:    os.Getenv(EnvClientURL),
		LogLevel:     os.Getenv(EnvLogLevel),
		SentryDSN:    os.Getenv(EnvSentryDSN),
	}
}

// apply copies every non-empty override into cfg. CLIENT_URL is added to the
// allowed origins rather than replacing them.
func (env EnvOverrides) apply(cfg *Config) {
	setIf(&cfg.Graph.ClientID, env.ClientID)
	setIf(&cfg.Graph.ClientSecret, env.ClientSecret)
	setIf(&cfg.Graph.TenantID, env.TenantID)
	setIf(&cfg.Graph.DriveID, env.DriveID)
	setIf(&cfg.Upload.DefaultFolder, env.Folder)
	setIf(&cfg.Server.Environment, env.Environment)
	setIf(&cfg.Logging.LogLevel, env.LogLevel)
	setIf(&cfg.Logging.SentryDSN, env.SentryDSN)

	if env.Port != "" {
		cfg.Server.Listen = ":" + strings.TrimPrefix(env.Port, ":")
	}

	if env.ClientURL != "" {
		cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, strings.TrimRight(env.ClientURL, "/"))
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
