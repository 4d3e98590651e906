// @title           Cirrus MRO API
// @version         0.1.0
// @description     Work orders, fleet records, labor kits and the tool catalog of an aircraft maintenance organisation, with a per-entity audit trail.
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                        Authorization
// @description                 "Azure AD access token or a locally signed HS256 token: 'Bearer {token}'"
//
// @tag.name         System
// @tag.description  Health, readiness and version endpoints.
//
// @tag.name         Audit
// @tag.description  Change history of audited entities. Every create, change and delete of a work order or work order item is recorded with the acting user, session and client address.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics and pprof are served on dedicated side-channel ports, never through the Gin router. Metrics are at GET /metrics on MRO_TELEMETRY_METRICS_PROMETHEUS_PORT (default 9090); pprof, when MRO_TELEMETRY_PROFILING_ENABLED=true, is on MRO_TELEMETRY_PROFILING_PORT (default 6060).

// Package main is the entry point for the Cirrus MRO API server binary.
// It dispatches three subcommands, serve, migrate and version, via a switch on os.Args.
// serve applies pending migrations on startup unless server.auto_migrate is false.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- served only on the internal profiling port, never by the Gin router.
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cirrus-mro/cirrus-api/internal/api"
	"github.com/cirrus-mro/cirrus-api/internal/auth"
	"github.com/cirrus-mro/cirrus-api/internal/config"
	"github.com/cirrus-mro/cirrus-api/internal/db"
	"github.com/cirrus-mro/cirrus-api/internal/safego"
	"github.com/cirrus-mro/cirrus-api/internal/telemetry"
)

const dbStatsInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("Cirrus MRO API v%s\n", api.Version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Locally signed tokens are the only credential when Azure AD is off
	if !cfg.Auth.AzureAD.Enabled {
		if err := auth.ValidateJWTSecret(); err != nil {
			return fmt.Errorf("security configuration error: %w", err)
		}
	}

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"name", cfg.Database.Name, "user", cfg.Database.User, "ssl_mode", cfg.Database.SSLMode)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.StartDBStatsCollector(ctx, database, dbStatsInterval)

	if cfg.Server.AutoMigrate {
		slog.Info("running database migrations")
		if err := db.RunMigrations(database, "up"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema version", "version", version, "dirty", dirty)
	}

	if cfg.Telemetry.Metrics.Enabled {
		startSideChannel("metrics", fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort), metricsMux(), 10*time.Second)
	}
	if cfg.Telemetry.Profiling.Enabled {
		// net/http/pprof registers its handlers on http.DefaultServeMux at init time
		startSideChannel("pprof", fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port), http.DefaultServeMux, 30*time.Second)
	}

	router, bgServices, err := api.NewRouter(ctx, cfg, sqlx.NewDb(database, "postgres"))
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	safego.Go("http-server", func() {
		slog.Info("starting server", "addr", server.Addr, "tls", cfg.Security.TLS.Enabled,
			"azure_ad", cfg.Auth.AzureAD.Enabled, "rate_limiting", cfg.Security.RateLimiting.Enabled)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		bgServices.Shutdown()
		return fmt.Errorf("failed to start server: %w", err)
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// startSideChannel serves handler on an internal port outside the API router
func startSideChannel(name, addr string, handler http.Handler, timeout time.Duration) {
	safego.Go(name, func() {
		slog.Info("starting side-channel server", "name", name, "addr", addr)
		srv := &http.Server{ //nolint:gosec // #nosec G112 -- internal-only port
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("side-channel server error", "name", name, "error", err)
		}
	})
}

func runMigrations(cfg *config.Config, direction string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}
