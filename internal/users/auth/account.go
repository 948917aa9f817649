// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements account identity, credentials and sessions for the LMS.

It owns the account record and every transition that touches its secrets:
registration, email verification, password recovery, credential and GitHub
sign-in, and refresh-token sessions.

# Architecture

  - Entities: [Account], [Identity], [Session] and [TokenPurpose].
  - Components: [TokenIssuer], [TokenValidator] and [Authenticator] form the
    core; [Service] sequences them into the account state machine.
  - Storage: Postgres for accounts and sessions, Redis for OAuth state.
*/
package auth

import (
	"strings"
	"time"

	"github.com/taibuivan/lms/internal/platform/locale"
	"github.com/taibuivan/lms/internal/platform/sec"
	"github.com/taibuivan/lms/pkg/pointer"
)

// # Domain Entities

// Account is one row of users.account.
//
// Each single-use token travels with its expiry: both are set or both are nil.
// Secrets are tagged `json:"-"` so an Account can be rendered directly.
type Account struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	Name           string        `json:"name"`
	PasswordHash   *string       `json:"-"`
	GitHubUsername *string       `json:"github_username,omitempty"`
	AvatarURL      *string       `json:"avatar_url,omitempty"`
	Role           sec.UserRole  `json:"role"`
	Locale         locale.Locale `json:"locale"`
	EmailVerified  bool          `json:"email_verified"`

	VerificationToken  *string    `json:"-"`
	VerificationExpiry *time.Time `json:"-"`
	ResetToken         *string    `json:"-"`
	ResetExpiry        *time.Time `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// HasPassword reports whether the account can sign in with a password.
// Accounts created through GitHub have none until they run a password reset.
func (account *Account) HasPassword() bool {
	return account.PasswordHash != nil && *account.PasswordHash != ""
}

// Identity returns the immutable identity snapshot of the account.
func (account *Account) Identity() Identity {
	return Identity{
		ID:             account.ID,
		Email:          account.Email,
		Name:           account.Name,
		Role:           account.Role,
		Locale:         account.Locale,
		GitHubUsername: pointer.Val(account.GitHubUsername),
		AvatarURL:      pointer.Val(account.AvatarURL),
	}
}

// Identity is who a signed-in caller is. It never carries credentials and is
// not modified after the authenticator produces it.
type Identity struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	Name           string        `json:"name"`
	Role           sec.UserRole  `json:"role"`
	Locale         locale.Locale `json:"locale"`
	GitHubUsername string        `json:"github_username,omitempty"`
	AvatarURL      string        `json:"avatar_url,omitempty"`
}

// Principal converts the identity into access-token claims.
func (identity Identity) Principal() sec.Principal {
	return sec.Principal{
		UserID:         identity.ID,
		Email:          identity.Email,
		Name:           identity.Name,
		Role:           identity.Role,
		Locale:         string(identity.Locale),
		GitHubUsername: identity.GitHubUsername,
	}
}

// IdentityFromClaims rebuilds an identity from verified access-token claims.
func IdentityFromClaims(claims *sec.AuthClaims) Identity {
	loc, ok := locale.Parse(claims.Locale)
	if !ok {
		loc = locale.Default
	}
	return Identity{
		ID:             claims.UserID,
		Email:          claims.Email,
		Name:           claims.Name,
		Role:           claims.Role,
		Locale:         loc,
		GitHubUsername: claims.GitHubUsername,
	}
}

// Session represents an active refresh-token session.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	TokenHash string    `json:"-"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	ExpiresAt time.Time `json:"expires_at"`
	IsRevoked bool      `json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// FederatedProfile is what an identity provider asserts about its user.
type FederatedProfile struct {
	ExternalID string
	Email      string
	Name       string
	Username   string
	AvatarURL  string
}

// displayName picks the provider name, falling back to the email local part.
func (profile FederatedProfile) displayName() string {
	if name := strings.TrimSpace(profile.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(profile.Email, "@")
	return local
}

// # Token Purposes

// TokenPurpose tags a single-use token. Each purpose has its own columns and TTL.
type TokenPurpose int

const (
	PurposeVerification TokenPurpose = iota + 1
	PurposeReset
)

// TTL returns how long a freshly issued token of this purpose stays valid.
func (purpose TokenPurpose) TTL() time.Duration {
	switch purpose {
	case PurposeVerification:
		return VerificationTokenTTL
	case PurposeReset:
		return ResetTokenTTL
	default:
		return 0
	}
}

func (purpose TokenPurpose) String() string {
	switch purpose {
	case PurposeVerification:
		return "verification"
	case PurposeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// # Field Identifiers

// Field names used in validation errors and JSON payloads.
const (
	FieldName            = "name"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldToken           = "token"
	FieldLocale          = "locale"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldUser            = "user"
	FieldState           = "state"
	FieldCode            = "code"
)
