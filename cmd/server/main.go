// Package main is the entry point for the learning hub identity server
// binary. It dispatches the serve, migrate, and version subcommands via a
// simple switch on os.Args so the binary's full CLI surface is readable in
// one place without requiring a cobra dependency. The serve command runs
// audit-database auto-migration on startup so freshly deployed containers
// never need a separate migration step.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/api"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/auth"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/auth/oidc"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/config"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/db"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/store"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/telemetry"
)

const version = "0.1.0"

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

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
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
		fmt.Printf("Learning Hub Identity v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise structured logger as early as possible so all subsequent log
	// output uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	verifier, err := buildVerifier(cfg)
	if err != nil {
		return fmt.Errorf("token verifier setup: %w", err)
	}
	slog.Info("token verifier ready", "mode", cfg.Auth.Token.Mode)

	// Connect to the key-value store that holds all identity state.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()

	kv := store.NewRedisStore(rdb)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = kv.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	slog.Info("connected to redis", "addr", cfg.Redis.Addr)

	// The audit database is optional; everything else runs without it.
	var auditDB *sql.DB
	if cfg.Audit.Enabled {
		auditDB, err = db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to audit database: %w", err)
		}
		defer auditDB.Close()
		slog.Info("connected to audit database", "host", cfg.Database.Host, "name", cfg.Database.Name)

		telemetry.StartDBStatsCollector(auditDB)

		if err := db.RunMigrations(auditDB, "up"); err != nil {
			return fmt.Errorf("failed to run audit migrations: %w", err)
		}
		schemaVersion, dirty, err := db.GetMigrationVersion(auditDB)
		if err != nil {
			slog.Warn("failed to get migration version", "error", err)
		} else {
			slog.Info("audit schema ready", "version", schemaVersion, "dirty", dirty)
		}
	} else {
		slog.Warn("audit logging disabled; administrative actions will not be recorded")
	}

	// Prometheus metrics are served on a dedicated port so the scrape path
	// stays off the public ingress and out of the throttle.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	router := api.NewRouter(cfg, rdb, kv, auditDB, verifier)

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"base_url", cfg.Server.BaseURL,
			"api_keys_enabled", cfg.Auth.APIKeys.Enabled,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// buildVerifier selects the token verification backend from configuration:
// the HS256 shared secret for single-tenant deployments, or OIDC discovery
// against an external identity provider.
func buildVerifier(cfg *config.Config) (auth.TokenVerifier, error) {
	switch cfg.Auth.Token.Mode {
	case "oidc":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return oidc.NewVerifier(ctx, oidc.Config{
			IssuerURL:   cfg.Auth.Token.OIDC.IssuerURL,
			ClientID:    cfg.Auth.Token.OIDC.ClientID,
			RoleClaim:   cfg.Auth.Token.OIDC.RoleClaim,
			InviteClaim: cfg.Auth.Token.OIDC.InviteClaim,
		})
	default:
		if err := auth.ValidateSigningSecret(); err != nil {
			return nil, err
		}
		return &auth.SharedSecretVerifier{}, nil
	}
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to audit database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	schemaVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	slog.Info("migration completed", "version", schemaVersion, "dirty", dirty)
	return nil
}
