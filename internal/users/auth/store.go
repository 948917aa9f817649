// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"

	"github.com/taibuivan/lms/internal/platform/locale"
)

// # Account Data Access

// TokenConsumption describes one attempt to spend a single-use token.
type TokenConsumption struct {
	Purpose TokenPurpose
	Token   string

	// Now is compared against the stored expiry; the token must expire strictly after it.
	Now time.Time

	// PasswordHash is written when a reset token is consumed. Ignored otherwise.
	PasswordHash string
}

// ProfileUpdate carries the self-service fields. Nil means unchanged.
type ProfileUpdate struct {
	Name   *string
	Locale *locale.Locale
}

// AccountRepository defines the data access contract for accounts.
type AccountRepository interface {

	/*
		Create inserts a new account.

		Returns:
		  - error: ErrEmailTaken when the unique email constraint fires
	*/
	Create(context context.Context, account *Account) error

	// FindByID returns ErrAccountNotFound when no row matches.
	FindByID(context context.Context, id string) (*Account, error)

	// FindByEmail matches the email exactly as stored.
	FindByEmail(context context.Context, email string) (*Account, error)

	/*
		FindByToken returns the account holding a live token of the purpose,
		without consuming it.

		Returns:
		  - error: ErrInvalidToken when the token is unknown or expired at now
	*/
	FindByToken(context context.Context, purpose TokenPurpose, token string, now time.Time) (*Account, error)

	/*
		SetToken stores a token and its expiry, overwriting any previous token
		of the same purpose.

		Returns:
		  - error: ErrAccountNotFound when the account does not exist
	*/
	SetToken(context context.Context, accountID string, token IssuedToken) error

	/*
		ConsumeToken atomically applies the effect of the token's purpose and
		clears the token pair, but only while the token is live.

		Concurrent calls with the same token succeed at most once. The effect is
		emailVerified=true for verification and the new password hash for reset.

		Returns:
		  - *Account: The row after the update
		  - error: ErrInvalidToken when no live token matched
	*/
	ConsumeToken(context context.Context, consumption TokenConsumption) (*Account, error)

	// UpdatePassword replaces the hash and clears any pending reset token.
	UpdatePassword(context context.Context, accountID, passwordHash string, at time.Time) error

	// RecordLogin stamps the last sign-in time and sets the account active.
	RecordLogin(context context.Context, accountID string, at time.Time) error

	// UpdateProfile applies a partial profile change and returns the new row.
	UpdateProfile(context context.Context, accountID string, update ProfileUpdate, at time.Time) (*Account, error)

	// SetActive flips the soft-deactivation flag. Accounts are never hard-deleted.
	SetActive(context context.Context, accountID string, active bool, at time.Time) error
}

// # Session Data Access

// SessionRepository defines the data access contract for refresh-token sessions.
type SessionRepository interface {
	Create(context context.Context, session *Session) error

	/*
		FindByTokenHash returns the live session matching the hash.

		Returns:
		  - error: ErrSessionNotFound when it is unknown, revoked, or expired at now
	*/
	FindByTokenHash(context context.Context, tokenHash string, now time.Time) (*Session, error)

	/*
		Revoke invalidates one session.

		Returns:
		  - error: ErrSessionNotFound when it was already revoked, so two
		    concurrent refreshes of the same token cannot both rotate it
	*/
	Revoke(context context.Context, sessionID string) error

	// RevokeAll revokes every live session of the account.
	RevokeAll(context context.Context, accountID string) error

	// RevokeOthers revokes every live session of the account except keepID.
	RevokeOthers(context context.Context, accountID, keepID string) error

	// DeleteExpired removes sessions that expired before now and reports how many.
	DeleteExpired(context context.Context, now time.Time) (int64, error)
}

// # Volatile Data Access

// OAuthStateRepository stores OAuth CSRF states between redirect and callback.
type OAuthStateRepository interface {
	Save(context context.Context, state string, ttl time.Duration) error

	// Consume deletes the state and reports whether it existed.
	Consume(context context.Context, state string) (bool, error)
}
