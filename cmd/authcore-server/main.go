// Command authcore-server runs the marketplace authentication service:
// credential verification, session cookies, refresh rotation and the
// identity endpoints, backed by Redis or PostgreSQL.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	authcore "github.com/vidyalay/authcore"
	"github.com/vidyalay/authcore/httpapi"
	"github.com/vidyalay/authcore/kafkasink"
	"github.com/vidyalay/authcore/middleware"
	"github.com/vidyalay/authcore/pgstore"
	"github.com/vidyalay/authcore/userstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineCfg := engineConfig(cfg)

	builder := authcore.New().
		WithConfig(engineCfg).
		WithMetricsEnabled(true)

	// Redis serves the userstore backend and, independently, the login and
	// refresh throttles.
	needRedis := cfg.Backend == "redis" || cfg.EnableLoginThrottle || cfg.EnableRefreshThrottle
	var rdb *redis.Client
	if needRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		builder = builder.WithRedis(rdb)
	}

	switch cfg.Backend {
	case "redis":
		store := userstore.NewStore(rdb, "ac", cfg.RefreshTTL)
		builder = builder.WithStore(store)
		logger.Info("credential store ready", slog.String("backend", "redis"))
	case "postgres":
		store, cleanup, err := newPostgresStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		builder = builder.WithStore(store)
		logger.Info("credential store ready", slog.String("backend", "postgres"))
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaBrokers[0] != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := kafkasink.Ping(pingCtx, cfg.KafkaBrokers)
		cancel()
		if err != nil {
			return fmt.Errorf("kafka ping: %w", err)
		}
		sink := kafkasink.NewSink(kafkasink.DefaultConfig(cfg.KafkaBrokers), logger)
		defer sink.Close()
		builder = builder.WithAuditSink(sink)
		logger.Info("audit sink ready", slog.String("topic", kafkasink.TopicAuthEvents))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	router := httpapi.NewRouter(engine, engineCfg, logger, func(r chi.Router) {
		r.With(middleware.RequireRoles(authcore.RoleAdmin)).
			Get("/api/admin/ping", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			slog.Int("port", cfg.HTTPPort),
			slog.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// engineConfig maps environment configuration onto the engine config tree.
func engineConfig(cfg *serverConfig) authcore.Config {
	out := authcore.DefaultConfig()
	out.Tokens.AccessSecret = []byte(cfg.AccessSecret)
	out.Tokens.RefreshSecret = []byte(cfg.RefreshSecret)
	out.Tokens.AccessTTL = cfg.AccessTTL
	out.Tokens.RefreshTTL = cfg.RefreshTTL
	out.Cookies.Secure = cfg.CookieSecure
	if !cfg.CookieSecure {
		// SameSite=None is only valid on secure cookies.
		out.Cookies.SameSite = http.SameSiteLaxMode
	}
	out.Security.EnableLoginThrottle = cfg.EnableLoginThrottle
	out.Security.EnableRefreshThrottle = cfg.EnableRefreshThrottle
	out.Audit.Enabled = true
	out.Metrics.Enabled = true
	return out
}

func newPostgresStore(ctx context.Context, cfg *serverConfig, logger *slog.Logger) (*pgstore.Store, func(), error) {
	dsn := cfg.postgresDSN()

	migrateDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres for migration: %w", err)
	}
	if err := pgstore.Migrate(ctx, migrateDB); err != nil {
		_ = migrateDB.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	if err := migrateDB.Close(); err != nil {
		return nil, nil, fmt.Errorf("close migration connection: %w", err)
	}
	logger.Info("migrations applied")

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}

	return pgstore.NewStore(pool), pool.Close, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
