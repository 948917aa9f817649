// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/lms/internal/platform/config"
	"github.com/taibuivan/lms/internal/platform/constants"
	"github.com/taibuivan/lms/internal/platform/middleware"
	"github.com/taibuivan/lms/internal/users/account"
	"github.com/taibuivan/lms/internal/users/auth"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
type Handlers struct {
	// Liveness is the /health handler; it returns 200 while the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler; it returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Metrics serves the Prometheus exposition on /metrics.
	Metrics http.Handler

	// Auth handles registration, sign-in and token-gated transitions.
	Auth *auth.Handler

	// Account handles the caller's own profile and sessions.
	Account *account.Handler
}

// Dependencies are the cross-cutting collaborators of the middleware chain.
type Dependencies struct {
	// Verifier checks bearer access tokens.
	Verifier middleware.TokenVerifier

	// Counter backs both rate limits; it is shared by every instance.
	Counter middleware.Counter

	// Instrument records request metrics. Nil disables it.
	Instrument func(http.Handler) http.Handler

	// TrustedProxies may name the client in forwarding headers. Empty means
	// every request is keyed by its socket peer.
	TrustedProxies []netip.Prefix
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(cfg *config.Config, log *slog.Logger, deps Dependencies, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.TrustProxies(deps.TrustedProxies))
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(middleware.PanicRecovery())
	if deps.Instrument != nil {
		r.Use(deps.Instrument)
	}
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Unauthenticated probes for container orchestration and scraping.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	// # Application API
	r.Route("/api", func(api chi.Router) {
		api.Use(chimw.Timeout(constants.GlobalRequestTimeout))
		api.Use(middleware.RateLimit(deps.Counter, middleware.RateLimitPolicy{
			Scope:  constants.RateLimitScopeGlobal,
			Limit:  cfg.GlobalRateLimit,
			Window: cfg.GlobalRateWindow,
		}))
		api.Use(middleware.Authenticate(deps.Verifier))
		api.Use(middleware.Locale())

		// Credential endpoints share a stricter budget against brute force.
		api.Group(func(credentials chi.Router) {
			credentials.Use(middleware.RateLimit(deps.Counter, middleware.RateLimitPolicy{
				Scope:  constants.RateLimitScopeAuth,
				Limit:  cfg.AuthRateLimit,
				Window: cfg.AuthRateWindow,
			}))
			h.Auth.Mount(credentials)
		})

		h.Account.Mount(api)
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// Handler exposes the fully wired router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
