// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "errors"

// Domain sentinels. Repositories return the storage ones; the authenticator
// and validator return the credential ones. The service maps all of them to
// [apperr.AppError] values at its boundary and keeps them as the cause.
var (
	// ErrAccountNotFound is returned by repositories when no row matches.
	ErrAccountNotFound = errors.New("auth: account not found")

	// ErrEmailTaken is returned when the unique email constraint rejects an insert.
	ErrEmailTaken = errors.New("auth: email already registered")

	// ErrSessionNotFound is returned when no live session matches.
	ErrSessionNotFound = errors.New("auth: session not found")

	// ErrNoSuchAccount means the email is unknown, deactivated, or has no password.
	ErrNoSuchAccount = errors.New("auth: no such account")

	// ErrBadCredentials means the password did not match.
	ErrBadCredentials = errors.New("auth: bad credentials")

	// ErrInvalidToken covers absent, expired and already consumed tokens alike.
	ErrInvalidToken = errors.New("auth: invalid or expired token")

	// ErrAccountDisabled means a federated sign-in matched a deactivated account.
	ErrAccountDisabled = errors.New("auth: account disabled")

	// ErrProfileEmailMissing means the identity provider asserted no usable email.
	ErrProfileEmailMissing = errors.New("auth: provider profile has no email")
)
