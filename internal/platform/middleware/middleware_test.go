// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/lms/internal/platform/ctxutil"
	"github.com/taibuivan/lms/internal/platform/locale"
	"github.com/taibuivan/lms/internal/platform/middleware"
	"github.com/taibuivan/lms/internal/platform/sec"
)

// # Test Doubles

type mockCounter struct {
	mock.Mock
}

func (m *mockCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	args := m.Called(ctx, key, window)
	return args.Get(0).(int64), args.Get(1).(time.Duration), args.Error(2)
}

// memoryCounter counts hits per key with no expiry.
type memoryCounter struct {
	mu   sync.Mutex
	hits map[string]int64
}

func (m *memoryCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hits == nil {
		m.hits = map[string]int64{}
	}
	m.hits[key]++
	return m.hits[key], window, nil
}

type stubVerifier struct {
	claims *sec.AuthClaims
	err    error
}

func (s stubVerifier) VerifyToken(string) (*sec.AuthClaims, error) {
	return s.claims, s.err
}

type stubConfig struct {
	dev     bool
	origins []string
}

func (c stubConfig) IsDevelopment() bool      { return c.dev }
func (c stubConfig) AllowedOrigins() []string { return c.origins }

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func decodeCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	code, _ := body["code"].(string)
	return code
}

// # Rate Limiting

/*
TestRateLimit_AllowsUnderLimit passes the request and reports the budget left.
*/
func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	counter := &mockCounter{}
	counter.On("Hit", mock.Anything, "auth:203.0.113.7", 15*time.Minute).
		Return(int64(3), 10*time.Minute, nil)

	handler := middleware.RateLimit(counter, middleware.RateLimitPolicy{
		Scope: "auth", Limit: 100, Window: 15 * time.Minute,
	})(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "203.0.113.7:41000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "97", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(t, rec.Header().Get("Retry-After"))
	counter.AssertExpectations(t)
}

/*
TestRateLimit_RejectsOverLimit returns 429 with Retry-After once the window is spent.
*/
func TestRateLimit_RejectsOverLimit(t *testing.T) {
	counter := &mockCounter{}
	counter.On("Hit", mock.Anything, mock.Anything, mock.Anything).
		Return(int64(101), 1500*time.Millisecond, nil)

	handler := middleware.RateLimit(counter, middleware.RateLimitPolicy{
		Scope: "auth", Limit: 100, Window: 15 * time.Minute,
	})(okHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "RATE_LIMITED", decodeCode(t, rec))
}

/*
TestRateLimit_FailsOpen lets traffic through when the counter backend is down.
*/
func TestRateLimit_FailsOpen(t *testing.T) {
	counter := &mockCounter{}
	counter.On("Hit", mock.Anything, mock.Anything, mock.Anything).
		Return(int64(0), time.Duration(0), errors.New("connection refused"))

	handler := middleware.RateLimit(counter, middleware.RateLimitPolicy{
		Scope: "global", Limit: 1, Window: time.Minute,
	})(okHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

// # Authentication

/*
TestAuthenticate covers anonymous, malformed, invalid, and valid credentials.
*/
func TestAuthenticate(t *testing.T) {
	claims := &sec.AuthClaims{UserID: "u-1", Role: sec.RoleStudent}

	tests := []struct {
		name     string
		header   string
		verifier stubVerifier
		want     int
		wantUser bool
	}{
		{"anonymous", "", stubVerifier{}, http.StatusOK, false},
		{"wrong_scheme", "Basic abc", stubVerifier{}, http.StatusUnauthorized, false},
		{"bad_token", "Bearer abc", stubVerifier{err: errors.New("expired")}, http.StatusUnauthorized, false},
		{"valid", "Bearer abc", stubVerifier{claims: claims}, http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sawUser bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sawUser = ctxutil.GetAuthUser(r.Context()) != nil
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			middleware.Authenticate(tt.verifier)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.wantUser, sawUser)
		})
	}
}

/*
TestRequireRole enforces the role hierarchy.
*/
func TestRequireRole(t *testing.T) {
	handler := middleware.RequireRole(sec.RoleInstructor)(okHandler)

	serve := func(claims *sec.AuthClaims) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if claims != nil {
			req = req.WithContext(ctxutil.WithAuthUser(req.Context(), claims))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil))
	assert.Equal(t, http.StatusForbidden, serve(&sec.AuthClaims{Role: sec.RoleStudent}))
	assert.Equal(t, http.StatusOK, serve(&sec.AuthClaims{Role: sec.RoleInstructor}))
	assert.Equal(t, http.StatusOK, serve(&sec.AuthClaims{Role: sec.RoleAdmin}))
}

// # Locale

/*
TestLocale prefers the stored preference over Accept-Language.
*/
func TestLocale(t *testing.T) {
	var seen locale.Locale
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ctxutil.GetLocale(r.Context())
	})
	handler := middleware.Locale()(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ar-MA,ar;q=0.9")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, locale.AR, seen)
	assert.Equal(t, "ar", rec.Header().Get("Content-Language"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ar")
	req = req.WithContext(ctxutil.WithAuthUser(req.Context(), &sec.AuthClaims{Locale: "en"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, locale.EN, seen)
	assert.Equal(t, "en", rec.Header().Get("Content-Language"))
}

// # Safety & Tracing

/*
TestPanicRecovery converts a panic into a 500 envelope.
*/
func TestPanicRecovery(t *testing.T) {
	handler := middleware.PanicRecovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeCode(t, rec))
}

/*
TestRequestID keeps a client ID and generates one otherwise.
*/
func TestRequestID(t *testing.T) {
	var seen string
	handler := middleware.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ctxutil.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
}

/*
TestCORS only echoes configured origins outside development.
*/
func TestCORS(t *testing.T) {
	handler := middleware.CORS(stubConfig{origins: []string{"https://lms.app"}})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://lms.app")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://lms.app", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://lms.app")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Less(t, rec.Code, http.StatusMultipleChoices)
	assert.Equal(t, "https://lms.app", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
	assert.Empty(t, rec.Body.String())
}

/*
TestRateLimit_IgnoresSpoofedForwarding keys one peer on its socket address,
whatever X-Forwarded-For it sends.
*/
func TestRateLimit_IgnoresSpoofedForwarding(t *testing.T) {
	counter := &memoryCounter{}
	handler := middleware.TrustProxies(nil)(middleware.RateLimit(counter, middleware.RateLimitPolicy{
		Scope: "auth", Limit: 2, Window: 15 * time.Minute,
	})(okHandler))

	accepted := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:52000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.1.0.%d", i))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			accepted++
		}
	}

	assert.Equal(t, 2, accepted)
	assert.Equal(t, map[string]int64{"auth:203.0.113.9": 50}, counter.hits)
}

/*
TestClientIP uses the socket peer and never the forwarding headers.
*/
func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.2")
	req.Header.Set("X-Real-IP", "198.51.100.9")
	assert.Equal(t, "10.0.0.1", middleware.ClientIP(req))

	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", middleware.ClientIP(req))
}

/*
TestTrustProxies only honours forwarding headers sent by a trusted proxy.
*/
func TestTrustProxies(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		want       string
	}{
		{"untrusted_peer", "203.0.113.9:5000", "198.51.100.2", "198.51.100.3", "203.0.113.9"},
		{"trusted_peer", "10.0.0.2:5000", "198.51.100.2", "", "198.51.100.2"},
		{"client_prepended_hop", "10.0.0.2:5000", "1.1.1.1, 198.51.100.2", "", "198.51.100.2"},
		{"proxy_chain", "10.0.0.2:5000", "198.51.100.2, 10.0.0.7", "", "198.51.100.2"},
		{"real_ip_fallback", "10.0.0.2:5000", "", "198.51.100.3", "198.51.100.3"},
		{"no_headers", "10.0.0.2:5000", "", "", "10.0.0.2"},
		{"garbage_header", "10.0.0.2:5000", "not-an-ip", "", "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := middleware.TrustProxies(trusted)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = middleware.ClientIP(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, seen)
		})
	}
}
