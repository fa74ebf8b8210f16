// Package config provides configuration loading and validation.
package config

// Config holds the gateway configuration.
type Config struct {
	// Mode is the operating mode preset the config started from.
	Mode string `json:"mode"`

	// ExternalOrigin is the public origin (scheme + host + port) of the
	// webmail host this gateway runs behind. Example: "https://mail.example.com"
	ExternalOrigin string `json:"external_origin"`

	// ExternalBasePath is the optional path prefix for gateway endpoints.
	// Example: "/service/extension" or empty string
	ExternalBasePath string `json:"external_base_path"`

	// ListenAddr is the address to listen on. Example: ":9400"
	ListenAddr string `json:"listen_addr"`

	Server       ServerConfig       `json:"server"`
	TLS          TLSConfig          `json:"tls"`
	OutboundHTTP OutboundHTTPConfig `json:"outbound_http"`
	Auth         AuthConfig         `json:"auth"`
	TokenService TokenServiceConfig `json:"token_service"`
	MailBackend  MailBackendConfig  `json:"mail_backend"`
	Export       ExportConfig       `json:"export"`
	History      HistoryConfig      `json:"history"`
	Metrics      MetricsConfig      `json:"metrics"`
	Logging      LoggingConfig      `json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// TrustedProxies are CIDRs whose X-Forwarded-* headers are honored.
	TrustedProxies []string `json:"trusted_proxies"`

	// CORSAllowedOrigins are origins allowed to call the gateway endpoint.
	// Empty means same-origin only (no CORS headers emitted).
	CORSAllowedOrigins []string `json:"cors_allowed_origins"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static, selfsigned
	Mode string `json:"mode" toml:"mode"`

	// CertFile and KeyFile for static mode
	CertFile string `json:"cert_file" toml:"cert_file"`
	KeyFile  string `json:"key_file" toml:"key_file"`

	// SelfSignedDir is where generated certificates are stored
	SelfSignedDir string `json:"self_signed_dir" toml:"self_signed_dir"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// SSRFMode is one of: strict, off
	SSRFMode string `json:"ssrf_mode" toml:"ssrf_mode"`

	// TimeoutMS is the overall request timeout in milliseconds
	TimeoutMS int `json:"timeout_ms" toml:"timeout_ms"`

	// ConnectTimeoutMS is the connection timeout in milliseconds
	ConnectTimeoutMS int `json:"connect_timeout_ms" toml:"connect_timeout_ms"`

	// MaxRedirects is the maximum number of redirects to follow
	MaxRedirects int `json:"max_redirects" toml:"max_redirects"`

	// MaxResponseBytes caps buffered response bodies (streamed bodies are
	// not subject to this limit)
	MaxResponseBytes int64 `json:"max_response_bytes" toml:"max_response_bytes"`

	// InsecureSkipVerify disables TLS verification (dev-only)
	InsecureSkipVerify bool `json:"insecure_skip_verify" toml:"insecure_skip_verify"`
}

// AuthConfig holds session verification settings.
type AuthConfig struct {
	// CookieName is the session cookie carrying the webmail auth token.
	CookieName string `json:"cookie_name"`

	// JWTSecret verifies HS256-signed session tokens. Redacted in logs.
	JWTSecret string `json:"-"`

	// Issuer, when set, must match the token's iss claim.
	Issuer string `json:"issuer"`
}

// TokenServiceConfig holds settings for the host token service that
// exchanges a webmail session for a storage access token.
type TokenServiceConfig struct {
	// Endpoint is the token refresh URL.
	Endpoint string `json:"endpoint" toml:"endpoint"`

	// Integration is the integration name the token is scoped to.
	Integration string `json:"integration" toml:"integration"`
}

// MailBackendConfig holds settings for the internal mail store API.
type MailBackendConfig struct {
	// BaseURL is the mail backend origin, e.g. "https://mail.example.com".
	BaseURL string `json:"base_url" toml:"base_url"`
}

// ExportConfig holds mail export settings.
type ExportConfig struct {
	// Strategy is one of: raw, renderer
	Strategy string `json:"strategy" toml:"strategy"`

	// RendererCommand is the external renderer binary (renderer strategy).
	RendererCommand string `json:"renderer_command" toml:"renderer_command"`

	// RendererTimeoutMS bounds the renderer subprocess.
	RendererTimeoutMS int `json:"renderer_timeout_ms" toml:"renderer_timeout_ms"`

	// TempDir is where transfer temp files are created. Empty uses os.TempDir.
	TempDir string `json:"temp_dir" toml:"temp_dir"`
}

// HistoryConfig holds action audit store settings.
type HistoryConfig struct {
	// Driver is the history driver name (memory, json, sqlite).
	Driver string `json:"driver"`

	// Drivers carries driver-specific settings keyed by driver name.
	Drivers map[string]any `json:"drivers"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `json:"level" toml:"level"`
}

// Redacted returns a copy of the config safe for logging.
func (c *Config) Redacted() Config {
	out := *c
	if out.Auth.JWTSecret != "" {
		out.Auth.JWTSecret = "***"
	}
	return out
}
