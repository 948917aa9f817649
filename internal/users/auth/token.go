// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taibuivan/lms/internal/platform/sec"
)

// # Token Issuer

// IssuedToken is a freshly generated single-use token and its validity window.
type IssuedToken struct {
	Purpose   TokenPurpose
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer produces verification and reset tokens.
//
// Tokens are 256 bits from the CSPRNG with no relationship to the account.
// Issuing a token of a purpose replaces the previous one, so only the most
// recent link in a user's inbox works.
type TokenIssuer struct {
	accounts AccountRepository
	now      func() time.Time
}

// NewTokenIssuer creates a new TokenIssuer. A nil clock means time.Now.
func NewTokenIssuer(accounts AccountRepository, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{accounts: accounts, now: now}
}

// Generate creates a token without storing it. [Authenticator.Register] uses
// it to insert the verification token together with the new row.
func (issuer *TokenIssuer) Generate(purpose TokenPurpose) (IssuedToken, error) {
	value, err := sec.GenerateSecureToken(sec.DefaultTokenBytes)
	if err != nil {
		return IssuedToken{}, err
	}

	issuedAt := issuer.now()
	return IssuedToken{
		Purpose:   purpose,
		Value:     value,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(purpose.TTL()),
	}, nil
}

/*
Issue generates a token and stores it on the account.

Parameters:
  - context: context.Context
  - accountID: string
  - purpose: TokenPurpose

Returns:
  - IssuedToken: The token to hand to the mail dispatcher
  - error: ErrAccountNotFound or storage errors
*/
func (issuer *TokenIssuer) Issue(context context.Context, accountID string, purpose TokenPurpose) (IssuedToken, error) {
	token, err := issuer.Generate(purpose)
	if err != nil {
		return IssuedToken{}, err
	}

	if err := issuer.accounts.SetToken(context, accountID, token); err != nil {
		return IssuedToken{}, fmt.Errorf("issue_%s_token: %w", purpose, err)
	}

	return token, nil
}

// # Token Validator

// TokenValidator checks and spends single-use tokens.
//
// Every failure is [ErrInvalidToken]. Unknown, expired and consumed tokens are
// indistinguishable to the caller.
type TokenValidator struct {
	accounts AccountRepository
	now      func() time.Time
}

// NewTokenValidator creates a new TokenValidator. A nil clock means time.Now.
func NewTokenValidator(accounts AccountRepository, now func() time.Time) *TokenValidator {
	if now == nil {
		now = time.Now
	}
	return &TokenValidator{accounts: accounts, now: now}
}

// Validate reports the account holding a live token without consuming it.
// Used to let a client check a reset link before asking for a new password.
func (validator *TokenValidator) Validate(context context.Context, purpose TokenPurpose, token string) (*Account, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	return validator.accounts.FindByToken(context, purpose, token, validator.now())
}

// ConsumeVerification marks the email verified and clears the token pair in one step.
func (validator *TokenValidator) ConsumeVerification(context context.Context, token string) (*Account, error) {
	return validator.consume(context, TokenConsumption{
		Purpose: PurposeVerification,
		Token:   token,
	})
}

// ConsumeReset replaces the password hash and clears the token pair in one step.
// The new hash must be derived before calling, so no slow work runs inside the update.
func (validator *TokenValidator) ConsumeReset(context context.Context, token, passwordHash string) (*Account, error) {
	return validator.consume(context, TokenConsumption{
		Purpose:      PurposeReset,
		Token:        token,
		PasswordHash: passwordHash,
	})
}

func (validator *TokenValidator) consume(context context.Context, consumption TokenConsumption) (*Account, error) {
	if consumption.Token == "" {
		return nil, ErrInvalidToken
	}
	consumption.Now = validator.now()

	account, err := validator.accounts.ConsumeToken(context, consumption)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("consume_%s_token: %w", consumption.Purpose, err)
	}
	return account, nil
}
