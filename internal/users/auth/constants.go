// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "time"

// # Authentication Constraints

const (
	// AccessTokenTTL is the duration a JWT access token remains valid.
	// Kept short to limit the impact of a leaked token.
	AccessTokenTTL = 15 * time.Minute

	// RefreshTokenTTL is the duration a session/refresh token remains valid.
	RefreshTokenTTL = 30 * 24 * time.Hour

	// VerificationTokenTTL gives users a day to open the verification email.
	VerificationTokenTTL = 24 * time.Hour

	// ResetTokenTTL is short-lived since a reset token grants account takeover.
	ResetTokenTTL = 1 * time.Hour

	// OAuthStateBytes is the entropy of the OAuth CSRF state.
	OAuthStateBytes = 16
)

// # Input Bounds

const (
	NameMinLength     = 2
	NameMaxLength     = 100
	EmailMaxLength    = 254
	PasswordMinLength = 8

	// PasswordMaxBytes is bcrypt's input limit; longer inputs are rejected
	// rather than silently truncated.
	PasswordMaxBytes = 72
)

// # Client-facing Messages

const (
	// MessageCredentialsInvalid is shared by every credential failure so
	// callers cannot learn whether an email is registered.
	MessageCredentialsInvalid = "Invalid email or password"

	// MessageResetRequested is returned whether or not the email exists.
	MessageResetRequested = "If this email is registered, a reset link has been sent."

	// MessageVerificationResent is returned whether or not the email exists.
	MessageVerificationResent = "If this email needs verification, a new link has been sent."

	MessageEmailVerified   = "Email verified successfully"
	MessagePasswordReset   = "Password updated successfully"
	MessagePasswordChanged = "Password changed successfully"
)
