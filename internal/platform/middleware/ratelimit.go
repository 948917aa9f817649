// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/taibuivan/lms/internal/platform/apperr"
	"github.com/taibuivan/lms/internal/platform/constants"
	"github.com/taibuivan/lms/internal/platform/ctxutil"
	"github.com/taibuivan/lms/internal/platform/respond"
)

// Counter is a shared hit counter. Implementations must be atomic across
// every API instance; [redis.FixedWindow] is the production one.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

// RateLimitPolicy bounds how many requests one client may make per window.
type RateLimitPolicy struct {
	// Scope separates counters of different route groups.
	Scope  string
	Limit  int
	Window time.Duration
}

// RateLimit rejects clients that exceed policy with 429 and a Retry-After header.
//
// Clients are keyed by scope and [ClientIP]. When the counter backend is unreachable
// the request is let through and the failure logged, so a Redis outage
// degrades protection instead of availability.
func RateLimit(counter Counter, policy RateLimitPolicy) func(http.Handler) http.Handler {
	limit := strconv.Itoa(policy.Limit)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			key := policy.Scope + ":" + ClientIP(request)

			count, resetIn, err := counter.Hit(request.Context(), key, policy.Window)
			if err != nil {
				ctxutil.GetLogger(request.Context()).WarnContext(request.Context(), "rate_limit_unavailable",
					slog.String("scope", policy.Scope),
					slog.Any("error", err),
				)
				next.ServeHTTP(writer, request)
				return
			}

			retryAfter := int(math.Ceil(resetIn.Seconds()))
			remaining := max(int64(policy.Limit)-count, 0)

			header := writer.Header()
			header.Set("X-RateLimit-Limit", limit)
			header.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			header.Set("X-RateLimit-Reset", strconv.Itoa(retryAfter))

			if count > int64(policy.Limit) {
				header.Set(constants.HeaderRetryAfter, strconv.Itoa(retryAfter))
				respond.Error(writer, request, apperr.RateLimited(retryAfter))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
