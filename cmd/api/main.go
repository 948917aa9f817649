// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the LMS HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Run database migrations (idempotent).
//  4. Connect to PostgreSQL (pgxpool) and Redis.
//  5. Start the mail dispatcher.
//  6. Wire repositories, services and HTTP handlers.
//  7. Start HTTP server and the session janitor with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/lms/internal/api"
	"github.com/taibuivan/lms/internal/platform/config"
	"github.com/taibuivan/lms/internal/platform/constants"
	"github.com/taibuivan/lms/internal/platform/mailer"
	"github.com/taibuivan/lms/internal/platform/metrics"
	"github.com/taibuivan/lms/internal/platform/migration"
	pgstore "github.com/taibuivan/lms/internal/platform/postgres"
	redisstore "github.com/taibuivan/lms/internal/platform/redis"
	"github.com/taibuivan/lms/internal/platform/sec"
	"github.com/taibuivan/lms/internal/users/account"
	"github.com/taibuivan/lms/internal/users/auth"
)

// sessionPurgeInterval is how often expired sessions are deleted.
const sessionPurgeInterval = time.Hour

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Bool("github_enabled", cfg.GitHubEnabled()),
		slog.String("mail_provider", cfg.MailProvider),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 4. PostgreSQL & Redis ─────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// Background work stops when the process is asked to shut down.
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// ── 5. Observability & Mail ───────────────────────────────────────────
	recorder := metrics.New()

	var sender mailer.Sender = mailer.NewLogSender(log)
	if cfg.MailProvider == config.MailProviderResend {
		sender = mailer.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom, cfg.ResendBaseURL)
	}

	dispatcher := mailer.NewDispatcher(sender, mailer.DispatcherOptions{
		Workers:       cfg.MailWorkers,
		QueueSize:     cfg.MailQueueSize,
		RatePerSecond: cfg.MailRatePerSecond,
		SendTimeout:   cfg.MailSendTimeout,
		Recorder:      recorder,
	}, log)
	dispatcher.Start(context.WithoutCancel(runCtx))

	// ── 6. Security Primitives ────────────────────────────────────────────
	jwtSvc, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, constants.AuthIssuer)
	must(log, err, "initialize jwt service")

	hasher := sec.NewHasher(cfg.BcryptCost, cfg.HashWorkers)

	// ── 7. Domain Wiring ──────────────────────────────────────────────────
	accountRepository := auth.NewAccountRepository(pool)
	sessionRepository := account.NewSessionRepository(pool)

	authService := auth.NewService(auth.ServiceDependencies{
		Accounts:      accountRepository,
		Sessions:      sessionRepository,
		Hasher:        hasher,
		Tokens:        jwtSvc,
		Mailer:        dispatcher,
		Events:        recorder,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	// A nil provider answers 404 on the GitHub endpoints.
	var github auth.OAuthProvider
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(auth.GitHubOptions{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.APIBaseURL + "/api/auth/github/callback",
		})
	}

	authHandler := auth.NewHandler(authService, github, auth.NewOAuthStateRepository(rdb))
	accountHandler := account.NewHandler(account.NewService(accountRepository, sessionRepository, nil))

	// ── 8. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func(ctx context.Context) error {
			return pgstore.Ping(ctx, pool)
		},
		CheckCache: func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb)
		},
	}, log)

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	trustedProxies, err := cfg.TrustedProxyPrefixes()
	must(log, err, "parse trusted proxies")

	server := api.NewServer(cfg, log, api.Dependencies{
		Verifier:       jwtSvc,
		Counter:        redisstore.NewFixedWindow(rdb, constants.RedisPrefixRateLimit),
		Instrument:     recorder.Middleware,
		TrustedProxies: trustedProxies,
	}, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Metrics:   recorder.Handler(),
		Auth:      authHandler,
		Account:   accountHandler,
	})

	go purgeSessions(runCtx, log, authService)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case <-runCtx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}
	stop()

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	shutdownErr := server.Shutdown(shutdownTimeout)

	// Handlers are done enqueueing; flush what is already queued.
	dispatcher.Close()

	if shutdownErr != nil {
		log.Error("shutdown error", slog.Any("error", shutdownErr))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// purgeSessions deletes expired sessions on a fixed interval until ctx ends.
func purgeSessions(ctx context.Context, log *slog.Logger, service *auth.Service) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := service.PurgeExpiredSessions(ctx)
			if err != nil {
				log.Warn("session_purge_failed", slog.Any("error", err))
				continue
			}
			log.Info("session_purge_completed", slog.Int64("removed", removed))
		}
	}
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
