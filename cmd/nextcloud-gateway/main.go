// Package main is the entrypoint for the nextcloud-gateway server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zimlet-labs/nextcloud-gateway/internal/auth"
	"github.com/zimlet-labs/nextcloud-gateway/internal/config"
	"github.com/zimlet-labs/nextcloud-gateway/internal/dav"
	"github.com/zimlet-labs/nextcloud-gateway/internal/gateway"
	"github.com/zimlet-labs/nextcloud-gateway/internal/history"
	"github.com/zimlet-labs/nextcloud-gateway/internal/httpclient"
	"github.com/zimlet-labs/nextcloud-gateway/internal/mailexport"
	"github.com/zimlet-labs/nextcloud-gateway/internal/ocs"
	"github.com/zimlet-labs/nextcloud-gateway/internal/ratelimit"
	"github.com/zimlet-labs/nextcloud-gateway/internal/relay"
	"github.com/zimlet-labs/nextcloud-gateway/internal/server"
	"github.com/zimlet-labs/nextcloud-gateway/internal/tokensvc"

	// Register history drivers
	_ "github.com/zimlet-labs/nextcloud-gateway/internal/history/json"
	_ "github.com/zimlet-labs/nextcloud-gateway/internal/history/sqlite"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	externalOrigin := flag.String("external-origin", "", "External origin (overrides config)")
	externalBasePath := flag.String("external-base-path", "", "External base path (overrides config)")
	ssrfMode := flag.String("ssrf-mode", "", "SSRF protection mode: strict or off (overrides config)")
	tlsMode := flag.String("tls-mode", "", "TLS mode: off, static, or selfsigned (overrides config)")
	jwtSecret := flag.String("jwt-secret", "", "Session JWT secret (overrides config)")
	exportStrategy := flag.String("export-strategy", "", "Mail export strategy: raw or renderer (overrides config)")
	historyDriver := flag.String("history-driver", "", "History driver: memory, json, or sqlite (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load config with precedence: mode preset -> TOML file -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:       listenAddr,
			ExternalOrigin:   externalOrigin,
			ExternalBasePath: externalBasePath,
			SSRFMode:         ssrfMode,
			TLSMode:          tlsMode,
			JWTSecret:        jwtSecret,
			ExportStrategy:   exportStrategy,
			HistoryDriver:    historyDriver,
			LogLevel:         loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret is empty; every session token will be rejected")
	}
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	// Outbound HTTP client shared by every remote-facing component
	httpc := httpclient.New(&cfg.OutboundHTTP)

	// Access token source
	var tokens tokensvc.TokenSource
	if cfg.TokenService.Endpoint != "" {
		tokens = tokensvc.NewClient(httpc, cfg.TokenService.Endpoint, cfg.TokenService.Integration)
	} else if cfg.Mode == "dev" {
		logger.Warn("token_service.endpoint not set; using a static dev access token")
		tokens = tokensvc.Static("dev-access-token")
	} else {
		logger.Error("token_service.endpoint is required in strict mode")
		os.Exit(1)
	}

	// Mail export pipeline
	var strategy mailexport.Strategy
	switch cfg.Export.Strategy {
	case "renderer":
		strategy = &mailexport.RendererStrategy{
			Command: cfg.Export.RendererCommand,
			Timeout: time.Duration(cfg.Export.RendererTimeoutMS) * time.Millisecond,
			TempDir: cfg.Export.TempDir,
		}
	default:
		strategy = mailexport.RawStrategy{}
	}

	mailBase := cfg.MailBackend.BaseURL
	if mailBase == "" {
		mailBase = cfg.ExternalOrigin
	}
	davClient := dav.NewClient(httpc)
	fetcher := mailexport.NewFetcher(httpc, mailBase, cfg.Auth.CookieName)
	pipeline := mailexport.NewPipeline(davClient, fetcher, strategy)

	// Action history store
	driverSettings, _ := cfg.History.Drivers[cfg.History.Driver].(map[string]any)
	store, err := history.New(cfg.History.Driver, driverSettings)
	if err != nil {
		logger.Error("failed to create history store", "error", err)
		os.Exit(1)
	}
	if err := store.Init(context.Background()); err != nil {
		logger.Error("failed to initialize history store", "driver", store.Name(), "error", err)
		os.Exit(1)
	}
	logger.Info("history store ready", "driver", store.Name())

	gatewayHandler := gateway.New(
		davClient,
		pipeline,
		ocs.NewManager(httpc),
		relay.NewClient(httpc),
		tokens,
		store,
	)

	srv, err := server.New(server.Deps{
		Config:   cfg,
		Logger:   logger,
		Verifier: verifier,
		Gateway:  gatewayHandler,
		Limiter:  ratelimit.New(nil),
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if err := store.Close(); err != nil {
		logger.Warn("history store close error", "error", err)
	}

	logger.Info("server stopped")
}
