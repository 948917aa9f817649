// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/lms/internal/platform/locale"
	"github.com/taibuivan/lms/internal/platform/sec"
	"github.com/taibuivan/lms/pkg/pointer"
	"github.com/taibuivan/lms/pkg/uuid"
)

// PasswordHasher derives and compares adaptive password hashes.
// Implementations must bound their CPU use and honour cancellation.
type PasswordHasher interface {
	Hash(context context.Context, plain string) (string, error)

	// Compare returns (false, nil) on a mismatch; errors are reserved for failures.
	Compare(context context.Context, plain, hash string) (bool, error)
}

// Registration is the validated input of [Authenticator.Register].
type Registration struct {
	Name     string
	Email    string
	Password string
	Locale   locale.Locale
}

// Authenticator turns credentials or provider profiles into an [Identity].
//
// It is the only component that reads password hashes.
type Authenticator struct {
	accounts AccountRepository
	hasher   PasswordHasher
	issuer   *TokenIssuer
	now      func() time.Time

	// decoy is compared against when no real hash exists, so unknown emails
	// cost about as much as a wrong password.
	decoy func() (string, error)
}

// NewAuthenticator creates a new Authenticator. A nil clock means time.Now.
func NewAuthenticator(accounts AccountRepository, hasher PasswordHasher, issuer *TokenIssuer, now func() time.Time) *Authenticator {
	if now == nil {
		now = time.Now
	}
	return &Authenticator{
		accounts: accounts,
		hasher:   hasher,
		issuer:   issuer,
		now:      now,
		decoy: sync.OnceValues(func() (string, error) {
			plain, err := sec.GenerateSecureToken(PasswordMinLength)
			if err != nil {
				return "", err
			}
			return hasher.Hash(context.Background(), plain)
		}),
	}
}

// # Credential Login

/*
Authenticate verifies an email and password pair.

Description: Unknown emails, deactivated accounts and accounts without a
password all return ErrNoSuchAccount after a decoy comparison. A wrong
password returns ErrBadCredentials.

Parameters:
  - context: context.Context
  - email: string
  - password: string

Returns:
  - Identity: The signed-in identity, without the hash
  - error: ErrNoSuchAccount, ErrBadCredentials, or storage errors
*/
func (authenticator *Authenticator) Authenticate(context context.Context, email, password string) (Identity, error) {
	account, err := authenticator.accounts.FindByEmail(context, email)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return Identity{}, fmt.Errorf("authenticate_lookup: %w", err)
	}

	if err != nil || !account.IsActive || !account.HasPassword() {
		authenticator.compareDecoy(context, password)
		return Identity{}, ErrNoSuchAccount
	}

	match, err := authenticator.hasher.Compare(context, password, *account.PasswordHash)
	if err != nil {
		return Identity{}, fmt.Errorf("authenticate_compare: %w", err)
	}
	if !match {
		return Identity{}, ErrBadCredentials
	}

	return account.Identity(), nil
}

func (authenticator *Authenticator) compareDecoy(context context.Context, password string) {
	hash, err := authenticator.decoy()
	if err != nil {
		return
	}
	_, _ = authenticator.hasher.Compare(context, password, hash)
}

// # Federated Login

/*
LinkOrCreate resolves a provider profile to a local account by email.

Description: An existing account is reused as stored. Otherwise a verified
student account is created. When a concurrent sign-in wins the insert, the
unique email constraint rejects ours and the winner's row is read back.

Parameters:
  - context: context.Context
  - profile: FederatedProfile

Returns:
  - Identity: The linked identity
  - error: ErrProfileEmailMissing, ErrAccountDisabled, or storage errors
*/
func (authenticator *Authenticator) LinkOrCreate(context context.Context, profile FederatedProfile) (Identity, error) {
	profile.Email = strings.TrimSpace(profile.Email)
	if profile.Email == "" {
		return Identity{}, ErrProfileEmailMissing
	}

	account, err := authenticator.accounts.FindByEmail(context, profile.Email)
	switch {
	case err == nil:
		return linkedIdentity(account)
	case !errors.Is(err, ErrAccountNotFound):
		return Identity{}, fmt.Errorf("federated_lookup: %w", err)
	}

	now := authenticator.now()
	account = &Account{
		ID:             uuid.New(),
		Email:          profile.Email,
		Name:           profile.displayName(),
		GitHubUsername: pointer.NonBlank(profile.Username),
		AvatarURL:      pointer.NonBlank(profile.AvatarURL),
		Role:           sec.RoleStudent,
		Locale:         locale.Default,
		EmailVerified:  true,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = authenticator.accounts.Create(context, account)
	if errors.Is(err, ErrEmailTaken) {
		existing, lookupErr := authenticator.accounts.FindByEmail(context, profile.Email)
		if lookupErr != nil {
			return Identity{}, fmt.Errorf("federated_retry_lookup: %w", lookupErr)
		}
		return linkedIdentity(existing)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("federated_create: %w", err)
	}

	return account.Identity(), nil
}

func linkedIdentity(account *Account) (Identity, error) {
	if !account.IsActive {
		return Identity{}, ErrAccountDisabled
	}
	return account.Identity(), nil
}

// # Registration

/*
Register creates a local account awaiting email verification.

Description: The verification token is generated up front and inserted with
the row, so a registered account always has a live token to mail.

Returns:
  - *Account: The new account
  - IssuedToken: Its verification token
  - error: ErrEmailTaken or storage errors
*/
func (authenticator *Authenticator) Register(context context.Context, registration Registration) (*Account, IssuedToken, error) {
	_, err := authenticator.accounts.FindByEmail(context, registration.Email)
	if err == nil {
		return nil, IssuedToken{}, ErrEmailTaken
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, IssuedToken{}, fmt.Errorf("register_lookup: %w", err)
	}

	hash, err := authenticator.hasher.Hash(context, registration.Password)
	if err != nil {
		return nil, IssuedToken{}, fmt.Errorf("register_hash: %w", err)
	}

	token, err := authenticator.issuer.Generate(PurposeVerification)
	if err != nil {
		return nil, IssuedToken{}, fmt.Errorf("register_token: %w", err)
	}

	loc := registration.Locale
	if loc == "" {
		loc = locale.Default
	}

	now := authenticator.now()
	account := &Account{
		ID:                 uuid.New(),
		Email:              registration.Email,
		Name:               registration.Name,
		PasswordHash:       pointer.To(hash),
		Role:               sec.RoleStudent,
		Locale:             loc,
		EmailVerified:      false,
		VerificationToken:  pointer.To(token.Value),
		VerificationExpiry: pointer.To(token.ExpiresAt),
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// The unique constraint is the final arbiter when two registrations race.
	if err := authenticator.accounts.Create(context, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, IssuedToken{}, ErrEmailTaken
		}
		return nil, IssuedToken{}, fmt.Errorf("register_create: %w", err)
	}

	return account, token, nil
}
