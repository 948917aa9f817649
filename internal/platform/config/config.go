// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, Mail) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// Supported values for MAIL_PROVIDER.
const (
	MailProviderLog    = "log"
	MailProviderResend = "resend"
)

// # Configuration Schema

// Config holds all runtime configuration for the LMS API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// PublicBaseURL is the web front-end origin used to build email links.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`

	// APIBaseURL is this server's public origin, used for OAuth redirect URIs.
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8080"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis) for shared rate-limit counters and OAuth state.
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Cryptographic keys for access token signing
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required,notEmpty"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required,notEmpty"`

	// Password hashing
	BcryptCost  int `env:"BCRYPT_COST"  envDefault:"12"`
	HashWorkers int `env:"HASH_WORKERS" envDefault:"0"`

	// Rate limiting (per client IP, shared across instances through Redis)
	GlobalRateLimit  int           `env:"RATE_LIMIT_GLOBAL"        envDefault:"600"`
	GlobalRateWindow time.Duration `env:"RATE_LIMIT_GLOBAL_WINDOW" envDefault:"1m"`
	AuthRateLimit    int           `env:"RATE_LIMIT_AUTH"          envDefault:"100"`
	AuthRateWindow   time.Duration `env:"RATE_LIMIT_AUTH_WINDOW"   envDefault:"15m"`

	// Outbound email
	MailProvider      string        `env:"MAIL_PROVIDER"        envDefault:"log"`
	MailFrom          string        `env:"MAIL_FROM"            envDefault:"LMS <no-reply@lms.app>"`
	ResendAPIKey      string        `env:"RESEND_API_KEY"`
	ResendBaseURL     string        `env:"RESEND_BASE_URL"      envDefault:"https://api.resend.com"`
	MailWorkers       int           `env:"MAIL_WORKERS"         envDefault:"2"`
	MailQueueSize     int           `env:"MAIL_QUEUE_SIZE"      envDefault:"256"`
	MailRatePerSecond float64       `env:"MAIL_RATE_PER_SECOND" envDefault:"5"`
	MailSendTimeout   time.Duration `env:"MAIL_SEND_TIMEOUT"    envDefault:"10s"`

	// Federated identity (GitHub OAuth). Empty values disable the provider.
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`

	// Cross-Origin Resource Sharing (comma separated origins)
	ExtraOrigins string `env:"EXTRA_ORIGINS"`

	// TrustedProxies lists the reverse proxies (IPs or CIDRs, comma separated)
	// whose forwarding headers name the client. Empty trusts no one.
	TrustedProxies string `env:"TRUSTED_PROXIES"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// This will fail if any field marked with 'required' is missing or empty.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}

	switch c.MailProvider {
	case MailProviderLog:
		// The log provider prints tokens; never acceptable outside development.
		if c.IsProduction() {
			errs = append(errs, errors.New("MAIL_PROVIDER=log is not allowed in production"))
		}
	case MailProviderResend:
		if c.ResendAPIKey == "" {
			errs = append(errs, errors.New("RESEND_API_KEY is required when MAIL_PROVIDER=resend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MAIL_PROVIDER %q", c.MailProvider))
	}

	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}

	if c.AuthRateLimit <= 0 || c.GlobalRateLimit <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GitHubEnabled reports whether GitHub sign-in credentials are configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// AllowedOrigins returns the trimmed, non-empty entries of EXTRA_ORIGINS.
func (c *Config) AllowedOrigins() []string {
	origins := []string{strings.TrimRight(c.PublicBaseURL, "/")}
	for _, origin := range strings.Split(c.ExtraOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, strings.TrimRight(origin, "/"))
		}
	}
	return origins
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES. A bare address becomes a
// single-host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, entry := range strings.Split(c.TrustedProxies, ",") {
		if entry = strings.TrimSpace(entry); entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid CIDR %q", entry)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", entry)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
