package config

// Default values for configuration options. These are layer 0 of the
// override chain; with credentials supplied through the environment the
// service runs without any config file.
const (
	defaultAPIBaseURL      = "https://graph.microsoft.com"
	defaultAPIVersion      = "v1.0"
	defaultAuthorityHost   = "https://login.microsoftonline.com"
	defaultScope           = "https://graph.microsoft.com/.default"
	defaultFolder          = "SAV_Images"
	defaultMaxUploadSize   = "25MiB"
	defaultLinkType        = "view"
	defaultLinkScope       = "anonymous"
	defaultListen          = ":3001"
	defaultShutdownTimeout = "30s"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultRequestTimeout  = "30s"
)

// Server environments.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// defaultAllowedTypes is the upload allow-list: every image type plus common
// office documents, text and archives.
var defaultAllowedTypes = []string{
	"image/*",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain",
	"text/csv",
	"application/zip",
	"application/x-rar-compressed",
	"application/x-7z-compressed",
}

// defaultAllowedOrigins are the local dev servers of the client app.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		Graph: GraphConfig{
			APIBaseURL:    defaultAPIBaseURL,
			APIVersion:    defaultAPIVersion,
			AuthorityHost: defaultAuthorityHost,
			Scopes:        []string{defaultScope},
		},
		Upload: UploadConfig{
			DefaultFolder: defaultFolder,
			MaxUploadSize: defaultMaxUploadSize,
			AllowedTypes:  append([]string(nil), defaultAllowedTypes...),
			LinkType:      defaultLinkType,
			LinkScope:     defaultLinkScope,
		},
		Server: ServerConfig{
			Listen:          defaultListen,
			Environment:     EnvironmentDevelopment,
			AllowedOrigins:  append([]string(nil), defaultAllowedOrigins...),
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			RequestTimeout: defaultRequestTimeout,
		},
	}
}
