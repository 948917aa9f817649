// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate-limit windows, and cross-cutting keys that are
shared between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Redis key prefixes and default windows.
  - Security: JWT issuer and cookie configuration.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "lms-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// RateLimitScopeGlobal keys the counter shared by every API route.
	RateLimitScopeGlobal = "global"

	// RateLimitScopeAuth keys the stricter counter shared by the credential endpoints.
	RateLimitScopeAuth = "auth"
)

// # Authentication

const (
	// AuthIssuer is the standard 'iss' claim in JWTs.
	AuthIssuer = "lms.app"

	// RefreshTokenCookieName is the name of the cookie that stores the refresh token.
	RefreshTokenCookieName = "refresh_token"

	// RefreshTokenCookiePath is the scoped path for the refresh token cookie.
	RefreshTokenCookiePath = "/api/auth"

	// OAuthStateTTL bounds the time between the provider redirect and its callback.
	OAuthStateTTL = 10 * time.Minute

	// OAuthStateCookieName binds an OAuth state to the browser that started the flow.
	OAuthStateCookieName = "oauth_state"

	// OAuthStateCookiePath scopes the state cookie to the GitHub endpoints.
	OAuthStateCookiePath = "/api/auth/github"
)

// # HTTP Headers

const (
	HeaderXRequestID     = "X-Request-ID"
	HeaderXRealIP        = "X-Real-IP"
	HeaderXForwardedFor  = "X-Forwarded-For"
	HeaderAcceptLanguage = "Accept-Language"
	HeaderContentLang    = "Content-Language"
	HeaderRetryAfter     = "Retry-After"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldChecks  = "checks"
)

// # Database Schemas

const (
	SchemaUsers = "users"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	RedisPrefixRateLimit  = "ratelimit:"
	RedisPrefixOAuthState = "auth:oauth_state:"
)
