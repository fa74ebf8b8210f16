package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the gateway operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr       *string
	ExternalOrigin   *string
	ExternalBasePath *string
	SSRFMode         *string
	TLSMode          *string
	JWTSecret        *string
	ExportStrategy   *string
	HistoryDriver    *string
	LogLevel         *string
}

// fileConfig mirrors Config but with pointer sections to detect presence.
type fileConfig struct {
	Mode string `toml:"mode"`

	ExternalOrigin   string `toml:"external_origin"`
	ExternalBasePath string `toml:"external_base_path"`
	ListenAddr       string `toml:"listen_addr"`

	Server       *serverConfig       `toml:"server"`
	TLS          *TLSConfig          `toml:"tls"`
	OutboundHTTP *OutboundHTTPConfig `toml:"outbound_http"`
	Auth         *authConfig         `toml:"auth"`
	TokenService *TokenServiceConfig `toml:"token_service"`
	MailBackend  *MailBackendConfig  `toml:"mail_backend"`
	Export       *ExportConfig       `toml:"export"`
	History      *historyConfig      `toml:"history"`
	Metrics      *metricsConfig      `toml:"metrics"`
	Logging      *LoggingConfig      `toml:"logging"`
}

// serverConfig holds server-specific settings in TOML.
type serverConfig struct {
	TrustedProxies     []string `toml:"trusted_proxies"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// authConfig holds auth settings in TOML. A separate struct so the
// secret can carry a toml tag while the runtime field stays unlogged.
type authConfig struct {
	CookieName string `toml:"cookie_name"`
	JWTSecret  string `toml:"jwt_secret"`
	Issuer     string `toml:"issuer"`
}

// historyConfig holds history settings in TOML.
type historyConfig struct {
	Driver  string         `toml:"driver"`
	Drivers map[string]any `toml:"drivers"`
}

// metricsConfig holds metrics settings in TOML. Pointer bool detects
// presence so "enabled = false" overrides the preset.
type metricsConfig struct {
	Enabled *bool `toml:"enabled"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (strict)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate enum fields
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid TOML,
// Load returns an error (fail fast). Unknown/undecoded TOML keys produce a warning
// but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	// Step 1: Load TOML file if provided
	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}

		// Warn about undecoded keys (do not fail)
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	// Step 2: Determine effective mode
	modeStr := "strict" // default
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	// Step 3: Start from mode preset
	cfg := presetForMode(mode)

	// Step 4: Overlay TOML values
	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}

	// Step 5: Overlay CLI flags
	overlayFlags(cfg, opts.FlagOverrides)

	// Step 6: Validate enum fields (fatal on invalid values)
	if err := validateEnums(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// presetForMode returns the base config for a given mode.
func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production-safe strict defaults.
func StrictConfig() *Config {
	return &Config{
		Mode:             string(ModeStrict),
		ExternalOrigin:   "https://localhost:9400",
		ExternalBasePath: "",
		ListenAddr:       ":9400",
		Server: ServerConfig{
			TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
		},
		TLS: TLSConfig{
			Mode:          "selfsigned",
			SelfSignedDir: ".ncgw/certs",
		},
		OutboundHTTP: OutboundHTTPConfig{
			SSRFMode:           "strict",
			TimeoutMS:          10000,
			ConnectTimeoutMS:   2000,
			MaxRedirects:       1,
			MaxResponseBytes:   4194304,
			InsecureSkipVerify: false,
		},
		Auth: AuthConfig{
			CookieName: "ZM_AUTH_TOKEN",
		},
		TokenService: TokenServiceConfig{
			Integration: "nextcloud",
		},
		Export: ExportConfig{
			Strategy:          "raw",
			RendererTimeoutMS: 60000,
		},
		History: HistoryConfig{
			Driver: "memory",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DevConfig returns development mode defaults.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.ExternalOrigin = "http://localhost:9400"
	cfg.TLS.Mode = "off"
	cfg.OutboundHTTP.SSRFMode = "off"
	cfg.OutboundHTTP.MaxRedirects = 3
	cfg.OutboundHTTP.InsecureSkipVerify = true
	cfg.Logging.Level = "debug"
	return cfg
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ExternalOrigin != "" {
		cfg.ExternalOrigin = fc.ExternalOrigin
	}
	if fc.ExternalBasePath != "" {
		cfg.ExternalBasePath = fc.ExternalBasePath
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Server != nil {
		if len(fc.Server.TrustedProxies) > 0 {
			cfg.Server.TrustedProxies = fc.Server.TrustedProxies
		}
		if len(fc.Server.CORSAllowedOrigins) > 0 {
			cfg.Server.CORSAllowedOrigins = fc.Server.CORSAllowedOrigins
		}
	}

	if fc.TLS != nil {
		if fc.TLS.Mode != "" {
			cfg.TLS.Mode = fc.TLS.Mode
		}
		if fc.TLS.CertFile != "" {
			cfg.TLS.CertFile = fc.TLS.CertFile
		}
		if fc.TLS.KeyFile != "" {
			cfg.TLS.KeyFile = fc.TLS.KeyFile
		}
		if fc.TLS.SelfSignedDir != "" {
			cfg.TLS.SelfSignedDir = fc.TLS.SelfSignedDir
		}
	}

	if fc.OutboundHTTP != nil {
		if fc.OutboundHTTP.SSRFMode != "" {
			cfg.OutboundHTTP.SSRFMode = fc.OutboundHTTP.SSRFMode
		}
		if fc.OutboundHTTP.TimeoutMS != 0 {
			cfg.OutboundHTTP.TimeoutMS = fc.OutboundHTTP.TimeoutMS
		}
		if fc.OutboundHTTP.ConnectTimeoutMS != 0 {
			cfg.OutboundHTTP.ConnectTimeoutMS = fc.OutboundHTTP.ConnectTimeoutMS
		}
		if fc.OutboundHTTP.MaxRedirects != 0 {
			cfg.OutboundHTTP.MaxRedirects = fc.OutboundHTTP.MaxRedirects
		}
		if fc.OutboundHTTP.MaxResponseBytes != 0 {
			cfg.OutboundHTTP.MaxResponseBytes = fc.OutboundHTTP.MaxResponseBytes
		}
		// InsecureSkipVerify is a bool, overlay always when section present
		cfg.OutboundHTTP.InsecureSkipVerify = fc.OutboundHTTP.InsecureSkipVerify
	}

	if fc.Auth != nil {
		if fc.Auth.CookieName != "" {
			cfg.Auth.CookieName = fc.Auth.CookieName
		}
		if fc.Auth.JWTSecret != "" {
			cfg.Auth.JWTSecret = fc.Auth.JWTSecret
		}
		if fc.Auth.Issuer != "" {
			cfg.Auth.Issuer = fc.Auth.Issuer
		}
	}

	if fc.TokenService != nil {
		if fc.TokenService.Endpoint != "" {
			cfg.TokenService.Endpoint = fc.TokenService.Endpoint
		}
		if fc.TokenService.Integration != "" {
			cfg.TokenService.Integration = fc.TokenService.Integration
		}
	}

	if fc.MailBackend != nil {
		if fc.MailBackend.BaseURL != "" {
			cfg.MailBackend.BaseURL = fc.MailBackend.BaseURL
		}
	}

	if fc.Export != nil {
		if fc.Export.Strategy != "" {
			cfg.Export.Strategy = fc.Export.Strategy
		}
		if fc.Export.RendererCommand != "" {
			cfg.Export.RendererCommand = fc.Export.RendererCommand
		}
		if fc.Export.RendererTimeoutMS != 0 {
			cfg.Export.RendererTimeoutMS = fc.Export.RendererTimeoutMS
		}
		if fc.Export.TempDir != "" {
			cfg.Export.TempDir = fc.Export.TempDir
		}
	}

	if fc.History != nil {
		if fc.History.Driver != "" {
			cfg.History.Driver = fc.History.Driver
		}
		if len(fc.History.Drivers) > 0 {
			cfg.History.Drivers = fc.History.Drivers
		}
	}

	if fc.Metrics != nil && fc.Metrics.Enabled != nil {
		cfg.Metrics.Enabled = *fc.Metrics.Enabled
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.ExternalOrigin != nil && *f.ExternalOrigin != "" {
		cfg.ExternalOrigin = *f.ExternalOrigin
	}
	if f.ExternalBasePath != nil && *f.ExternalBasePath != "" {
		cfg.ExternalBasePath = *f.ExternalBasePath
	}
	if f.SSRFMode != nil && *f.SSRFMode != "" {
		cfg.OutboundHTTP.SSRFMode = *f.SSRFMode
	}
	if f.TLSMode != nil && *f.TLSMode != "" {
		cfg.TLS.Mode = *f.TLSMode
	}
	if f.JWTSecret != nil && *f.JWTSecret != "" {
		cfg.Auth.JWTSecret = *f.JWTSecret
	}
	if f.ExportStrategy != nil && *f.ExportStrategy != "" {
		cfg.Export.Strategy = *f.ExportStrategy
	}
	if f.HistoryDriver != nil && *f.HistoryDriver != "" {
		cfg.History.Driver = *f.HistoryDriver
	}
	if f.LogLevel != nil && *f.LogLevel != "" {
		cfg.Logging.Level = *f.LogLevel
	}
}

// validateEnums validates enum-like config fields and returns an error for invalid values.
func validateEnums(cfg *Config) error {
	// mode is already validated by ParseMode before we get here

	// tls.mode
	switch cfg.TLS.Mode {
	case "off", "static", "selfsigned":
		// valid
	default:
		return fmt.Errorf("invalid tls.mode %q: must be one of off, static, selfsigned", cfg.TLS.Mode)
	}

	// static mode needs both cert and key
	if cfg.TLS.Mode == "static" && (cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "") {
		return fmt.Errorf("tls.mode static requires tls.cert_file and tls.key_file")
	}

	// outbound_http.ssrf_mode
	switch cfg.OutboundHTTP.SSRFMode {
	case "strict", "off":
		// valid
	default:
		return fmt.Errorf("invalid outbound_http.ssrf_mode %q: must be one of strict, off", cfg.OutboundHTTP.SSRFMode)
	}

	// export.strategy
	switch cfg.Export.Strategy {
	case "raw", "renderer":
		// valid
	default:
		return fmt.Errorf("invalid export.strategy %q: must be one of raw, renderer", cfg.Export.Strategy)
	}

	if cfg.Export.Strategy == "renderer" && cfg.Export.RendererCommand == "" {
		return fmt.Errorf("export.strategy renderer requires export.renderer_command")
	}

	// history.driver
	switch cfg.History.Driver {
	case "", "memory", "json", "sqlite":
		// valid (empty defaults to memory)
	default:
		return fmt.Errorf("invalid history.driver %q: must be one of memory, json, sqlite", cfg.History.Driver)
	}

	// logging.level
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of debug, info, warn, error", cfg.Logging.Level)
	}

	return nil
}
