package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Mode
		wantErr bool
	}{
		{"strict", "strict", ModeStrict, false},
		{"dev", "dev", ModeDev, false},
		{"empty defaults to strict", "", ModeStrict, false},
		{"uppercase", "STRICT", ModeStrict, false},
		{"whitespace", "  dev  ", ModeDev, false},
		{"invalid", "invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Without a config file, defaults to strict mode
	cfg, err := Load(LoaderOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mode != "strict" {
		t.Errorf("expected mode strict, got %s", cfg.Mode)
	}
	if cfg.OutboundHTTP.SSRFMode != "strict" {
		t.Errorf("expected SSRF mode strict, got %s", cfg.OutboundHTTP.SSRFMode)
	}
	if cfg.Auth.CookieName != "ZM_AUTH_TOKEN" {
		t.Errorf("expected cookie name ZM_AUTH_TOKEN, got %s", cfg.Auth.CookieName)
	}
	if cfg.Export.Strategy != "raw" {
		t.Errorf("expected export strategy raw, got %s", cfg.Export.Strategy)
	}
	// Outbound calls are webmail-interactive; the default stays in the
	// 10-15 second range.
	if cfg.OutboundHTTP.TimeoutMS != 10000 {
		t.Errorf("expected outbound timeout 10000ms, got %d", cfg.OutboundHTTP.TimeoutMS)
	}
}

func TestLoad_ModeFlag(t *testing.T) {
	// Mode flag overrides default
	cfg, err := Load(LoaderOptions{ModeFlag: "dev"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mode != "dev" {
		t.Errorf("expected mode dev, got %s", cfg.Mode)
	}
	if cfg.OutboundHTTP.SSRFMode != "off" {
		t.Errorf("expected SSRF mode off in dev, got %s", cfg.OutboundHTTP.SSRFMode)
	}
	if cfg.TLS.Mode != "off" {
		t.Errorf("expected TLS off in dev, got %s", cfg.TLS.Mode)
	}
	if cfg.OutboundHTTP.InsecureSkipVerify != true {
		t.Errorf("expected InsecureSkipVerify true in dev")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	tomlContent := `
mode = "dev"
external_origin = "https://mail.example.com"
listen_addr = ":8443"

[server]
trusted_proxies = ["10.0.0.0/8"]

[auth]
cookie_name = "SESSION"
jwt_secret = "topsecret"
issuer = "mail.example.com"

[token_service]
endpoint = "https://mail.example.com/service/tokens"
integration = "nextcloud"

[mail_backend]
base_url = "https://mail.example.com"

[export]
strategy = "renderer"
renderer_command = "/usr/bin/wkhtmltopdf"

[history]
driver = "sqlite"

[history.drivers.sqlite]
path = "/var/lib/ncgw/history.db"

[outbound_http]
ssrf_mode = "strict"
timeout_ms = 5000
`
	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(LoaderOptions{ConfigPath: configPath})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mode != "dev" {
		t.Errorf("expected mode dev, got %s", cfg.Mode)
	}
	if cfg.ExternalOrigin != "https://mail.example.com" {
		t.Errorf("expected origin https://mail.example.com, got %s", cfg.ExternalOrigin)
	}
	if cfg.ListenAddr != ":8443" {
		t.Errorf("expected listen :8443, got %s", cfg.ListenAddr)
	}
	if len(cfg.Server.TrustedProxies) != 1 || cfg.Server.TrustedProxies[0] != "10.0.0.0/8" {
		t.Errorf("expected trusted proxies [10.0.0.0/8], got %v", cfg.Server.TrustedProxies)
	}
	if cfg.Auth.CookieName != "SESSION" {
		t.Errorf("expected cookie name SESSION, got %s", cfg.Auth.CookieName)
	}
	if cfg.Auth.JWTSecret != "topsecret" {
		t.Errorf("expected jwt secret to be set")
	}
	if cfg.TokenService.Endpoint != "https://mail.example.com/service/tokens" {
		t.Errorf("unexpected token service endpoint %s", cfg.TokenService.Endpoint)
	}
	if cfg.Export.Strategy != "renderer" {
		t.Errorf("expected export strategy renderer, got %s", cfg.Export.Strategy)
	}
	if cfg.History.Driver != "sqlite" {
		t.Errorf("expected history driver sqlite, got %s", cfg.History.Driver)
	}
	if cfg.OutboundHTTP.TimeoutMS != 5000 {
		t.Errorf("expected timeout 5000, got %d", cfg.OutboundHTTP.TimeoutMS)
	}
	// SSRF mode from file overrides dev preset
	if cfg.OutboundHTTP.SSRFMode != "strict" {
		t.Errorf("expected SSRF mode strict from file, got %s", cfg.OutboundHTTP.SSRFMode)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(LoaderOptions{ConfigPath: "/nonexistent/config.toml"})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte("not [ valid toml"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := Load(LoaderOptions{ConfigPath: configPath})
	if err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestLoad_FlagOverrides(t *testing.T) {
	listen := ":7777"
	tlsMode := "off"
	cfg, err := Load(LoaderOptions{
		FlagOverrides: FlagOverrides{
			ListenAddr: &listen,
			TLSMode:    &tlsMode,
		},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddr != ":7777" {
		t.Errorf("expected listen :7777, got %s", cfg.ListenAddr)
	}
	if cfg.TLS.Mode != "off" {
		t.Errorf("expected tls mode off, got %s", cfg.TLS.Mode)
	}
}

func TestLoad_InvalidEnums(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want string
	}{
		{"bad tls mode", "[tls]\nmode = \"acme\"\n", "invalid tls.mode"},
		{"bad ssrf mode", "[outbound_http]\nssrf_mode = \"maybe\"\n", "invalid outbound_http.ssrf_mode"},
		{"bad export strategy", "[export]\nstrategy = \"pdf\"\n", "invalid export.strategy"},
		{"bad history driver", "[history]\ndriver = \"redis\"\n", "invalid history.driver"},
		{"bad log level", "[logging]\nlevel = \"trace\"\n", "invalid logging.level"},
		{"static without cert", "[tls]\nmode = \"static\"\n", "requires tls.cert_file"},
		{"renderer without command", "[export]\nstrategy = \"renderer\"\n", "requires export.renderer_command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			configPath := filepath.Join(dir, "config.toml")
			if err := os.WriteFile(configPath, []byte(tt.toml), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			_, err := Load(LoaderOptions{ConfigPath: configPath})
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := StrictConfig()
	cfg.Auth.JWTSecret = "supersecret"

	red := cfg.Redacted()
	if red.Auth.JWTSecret != "***" {
		t.Errorf("expected redacted secret, got %q", red.Auth.JWTSecret)
	}
	if cfg.Auth.JWTSecret != "supersecret" {
		t.Errorf("Redacted must not mutate the original")
	}
}
