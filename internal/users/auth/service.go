// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/lms/internal/platform/apperr"
	"github.com/taibuivan/lms/internal/platform/ctxutil"
	"github.com/taibuivan/lms/internal/platform/locale"
	"github.com/taibuivan/lms/internal/platform/mailer"
	"github.com/taibuivan/lms/internal/platform/sec"
	"github.com/taibuivan/lms/internal/platform/validate"
	"github.com/taibuivan/lms/pkg/uuid"
)

// # Contracts & Types

// TokenProvider signs access tokens.
type TokenProvider interface {
	GenerateAccessToken(principal sec.Principal, timeToLive time.Duration) (string, error)
}

// MailQueue accepts outbound email without waiting for delivery.
// Enqueue reports false when the message was dropped.
type MailQueue interface {
	Enqueue(message mailer.Message) bool
}

// EventRecorder counts authentication outcomes.
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

// Outcome labels passed to [EventRecorder].
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// ServiceDependencies wires a [Service]. Events and Now are optional.
type ServiceDependencies struct {
	Accounts      AccountRepository
	Sessions      SessionRepository
	Hasher        PasswordHasher
	Tokens        TokenProvider
	Mailer        MailQueue
	Events        EventRecorder
	PublicBaseURL string
	Now           func() time.Time
}

// Service is the account state machine. It validates input, sequences the
// issuer, validator and authenticator, and maps domain failures to
// [apperr.AppError] values.
type Service struct {
	accounts      AccountRepository
	sessions      SessionRepository
	hasher        PasswordHasher
	issuer        *TokenIssuer
	validator     *TokenValidator
	authenticator *Authenticator
	tokens        TokenProvider
	mail          MailQueue
	events        EventRecorder
	composer      mailComposer
	now           func() time.Time
}

type noopEvents struct{}

func (noopEvents) AuthEvent(string, string) {}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(deps ServiceDependencies) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	var events EventRecorder = noopEvents{}
	if deps.Events != nil {
		events = deps.Events
	}

	issuer := NewTokenIssuer(deps.Accounts, now)

	return &Service{
		accounts:      deps.Accounts,
		sessions:      deps.Sessions,
		hasher:        deps.Hasher,
		issuer:        issuer,
		validator:     NewTokenValidator(deps.Accounts, now),
		authenticator: NewAuthenticator(deps.Accounts, deps.Hasher, issuer, now),
		tokens:        deps.Tokens,
		mail:          deps.Mailer,
		events:        events,
		composer:      newMailComposer(deps.PublicBaseURL),
		now:           now,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Name     string
	Email    string
	Password string

	// Locale is the negotiated interface language. Empty means the default.
	Locale locale.Locale
}

/*
Register validates, hashes, and persists a brand new account.

Description: The account starts unverified with a live verification token,
and the verification email is queued once the row is committed.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *Account: Created entity
  - error: ValidationError, Conflict (email exists) or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*Account, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)

	validator := &validate.Validator{}
	validator.Required(FieldName, input.Name).
		MinLen(FieldName, input.Name, NameMinLength).
		MaxLen(FieldName, input.Name, NameMaxLength).
		Required(FieldEmail, input.Email).
		MaxLen(FieldEmail, input.Email, EmailMaxLength).
		Email(FieldEmail, input.Email)
	validatePassword(validator, FieldPassword, input.Password)
	if input.Locale != "" {
		validator.OneOf(FieldLocale, string(input.Locale), locale.Strings()...)
	}

	if err := validator.Err(); err != nil {
		return nil, err
	}

	account, token, err := service.authenticator.Register(context, Registration{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		Locale:   input.Locale,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			service.events.AuthEvent("register", OutcomeFailure)
			return nil, apperr.Conflict("Email is already registered").WithCause(err)
		}
		service.events.AuthEvent("register", OutcomeError)
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	service.events.AuthEvent("register", OutcomeSuccess)
	ctxutil.GetLogger(context).InfoContext(context, "account_registered", slog.String("account_id", account.ID))

	service.sendMail(context, account, token, service.composer.verification)

	return account, nil
}

// # Email Verification

/*
VerifyEmail confirms an email address with a verification token.

Description: A consumed, expired or unknown token all return the same
InvalidToken error. Resubmitting a token that already worked is not a no-op.
*/
func (service *Service) VerifyEmail(context context.Context, token string) error {
	if err := validateToken(token); err != nil {
		return err
	}

	account, err := service.validator.ConsumeVerification(context, token)
	if err != nil {
		return service.tokenFailure(context, "verify_email", err)
	}

	service.events.AuthEvent("verify_email", OutcomeSuccess)
	ctxutil.GetLogger(context).InfoContext(context, "email_verified", slog.String("account_id", account.ID))
	return nil
}

/*
ResendVerification reissues the verification token of an unverified account.

Description: The response never reveals whether the email is registered or
already verified. A new token supersedes the previous one.
*/
func (service *Service) ResendVerification(context context.Context, email string) error {
	email, err := validateEmail(email)
	if err != nil {
		return err
	}

	account, err := service.accounts.FindByEmail(context, email)
	if errors.Is(err, ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Internal(fmt.Errorf("auth_service_resend_lookup_failed: %w", err))
	}
	if account.EmailVerified || !account.IsActive {
		return nil
	}

	token, err := service.issuer.Issue(context, account.ID, PurposeVerification)
	if err != nil {
		return apperr.Internal(fmt.Errorf("auth_service_resend_issue_failed: %w", err))
	}

	service.sendMail(context, account, token, service.composer.verification)
	return nil
}

// # Password Recovery

/*
RequestPasswordReset initiates the forgot-password flow.

Description: Returns nil for unknown emails so both cases look identical to
the caller. For a known email a reset token is issued, replacing any
earlier one, and the link is queued for delivery. Storage failures are
surfaced as Internal.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: ValidationError or Internal
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) error {
	email, err := validateEmail(email)
	if err != nil {
		return err
	}

	service.events.AuthEvent("password_reset_request", OutcomeSuccess)

	account, err := service.accounts.FindByEmail(context, email)
	if errors.Is(err, ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Internal(fmt.Errorf("auth_service_reset_lookup_failed: %w", err))
	}

	token, err := service.issuer.Issue(context, account.ID, PurposeReset)
	if err != nil {
		return apperr.Internal(fmt.Errorf("auth_service_reset_issue_failed: %w", err))
	}

	service.sendMail(context, account, token, service.composer.passwordReset)
	return nil
}

// ValidateResetToken reports whether a reset token is still usable, without consuming it.
func (service *Service) ValidateResetToken(context context.Context, token string) error {
	if err := validateToken(token); err != nil {
		return err
	}

	if _, err := service.validator.Validate(context, PurposeReset, token); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return apperr.InvalidToken().WithCause(err)
		}
		return fmt.Errorf("auth_service_validate_reset_failed: %w", err)
	}
	return nil
}

/*
ResetPassword completes the forgot-password flow.

Description: The token is looked up before any hashing. The new hash is then
derived and the token is spent in the same statement that stores the hash.
Of two concurrent calls with one token exactly one succeeds. Every session of
the account is then revoked.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: ValidationError, InvalidToken or storage errors
*/
func (service *Service) ResetPassword(context context.Context, token, newPassword string) error {
	validator := &validate.Validator{}
	validator.Required(FieldToken, token)
	validatePassword(validator, FieldPassword, newPassword)
	if err := validator.Err(); err != nil {
		return err
	}

	// Reject dead tokens before paying for bcrypt. The conditional UPDATE
	// below still picks the winner.
	if _, err := service.validator.Validate(context, PurposeReset, token); err != nil {
		return service.tokenFailure(context, "password_reset", err)
	}

	hash, err := service.hasher.Hash(context, newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_password_hash_failed: %w", err)
	}

	account, err := service.validator.ConsumeReset(context, token, hash)
	if err != nil {
		return service.tokenFailure(context, "password_reset", err)
	}

	service.events.AuthEvent("password_reset", OutcomeSuccess)

	// Security Cleanup: sessions opened with the old password must not survive it.
	if err := service.sessions.RevokeAll(context, account.ID); err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "revoke_sessions_failed",
			slog.String("account_id", account.ID),
			slog.Any("error", err),
		)
	}

	return nil
}

// ChangePasswordInput carries an authenticated password change.
type ChangePasswordInput struct {
	AccountID       string
	CurrentPassword string
	NewPassword     string

	// RefreshToken identifies the caller's own session, which survives the change.
	// When empty every session is revoked.
	RefreshToken string
}

/*
ChangePassword allows an authenticated user to update their credentials.

Description: Verifies the current password, then revokes every other
session so other devices must sign in again.
*/
func (service *Service) ChangePassword(context context.Context, input ChangePasswordInput) error {
	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword)
	validatePassword(validator, FieldNewPassword, input.NewPassword)
	if err := validator.Err(); err != nil {
		return err
	}

	account, err := service.accounts.FindByID(context, input.AccountID)
	if errors.Is(err, ErrAccountNotFound) {
		return apperr.Unauthorized("Account not found").WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("auth_service_change_password_lookup_failed: %w", err)
	}
	if !account.HasPassword() {
		return apperr.Forbidden("This account has no password. Use password reset to set one.")
	}

	match, err := service.hasher.Compare(context, input.CurrentPassword, *account.PasswordHash)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_compare_failed: %w", err)
	}
	if !match {
		service.events.AuthEvent("change_password", OutcomeFailure)
		return apperr.Unauthorized("Current password is incorrect").WithCause(ErrBadCredentials)
	}

	hash, err := service.hasher.Hash(context, input.NewPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	if err := service.accounts.UpdatePassword(context, account.ID, hash, service.now()); err != nil {
		return fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	service.events.AuthEvent("change_password", OutcomeSuccess)
	service.revokeOtherSessions(context, account.ID, input.RefreshToken)
	return nil
}

func (service *Service) revokeOtherSessions(context context.Context, accountID, refreshToken string) {
	var err error

	current, lookupErr := service.currentSession(context, refreshToken)
	if lookupErr == nil && current.AccountID == accountID {
		err = service.sessions.RevokeOthers(context, accountID, current.ID)
	} else {
		err = service.sessions.RevokeAll(context, accountID)
	}

	if err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "revoke_sessions_failed",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
	}
}

// # Authentication Flow

// ClientInfo describes the device a session is opened from.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email    string
	Password string
	Client   ClientInfo
}

// LoginSession represents a successfully established session.
type LoginSession struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	User                  Identity
}

/*
Login validates credentials and opens a session.

Description: Unknown emails, wrong passwords, password-less and deactivated
accounts all produce the same 401 body.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session identifiers
  - error: ValidationError, Unauthorized or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {
	input.Email = strings.TrimSpace(input.Email)

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Required(FieldPassword, input.Password)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	identity, err := service.authenticator.Authenticate(context, input.Email, input.Password)
	if err != nil {
		if errors.Is(err, ErrNoSuchAccount) || errors.Is(err, ErrBadCredentials) {
			service.events.AuthEvent("login", OutcomeFailure)
			return nil, apperr.Unauthorized(MessageCredentialsInvalid).WithCause(err)
		}
		service.events.AuthEvent("login", OutcomeError)
		return nil, fmt.Errorf("auth_service_login_failed: %w", err)
	}

	session, err := service.openSession(context, identity, input.Client)
	if err != nil {
		return nil, err
	}

	service.events.AuthEvent("login", OutcomeSuccess)
	service.recordLogin(context, identity.ID)
	return session, nil
}

/*
FederatedLogin signs in with a profile asserted by an identity provider.

Returns:
  - *LoginSession: Transport-ready session identifiers
  - error: Unauthorized (no usable email), Forbidden (deactivated) or internal failures
*/
func (service *Service) FederatedLogin(context context.Context, profile FederatedProfile, client ClientInfo) (*LoginSession, error) {
	identity, err := service.authenticator.LinkOrCreate(context, profile)
	switch {
	case errors.Is(err, ErrProfileEmailMissing):
		service.events.AuthEvent("federated_login", OutcomeFailure)
		return nil, apperr.Unauthorized("The provider account has no verified email address").WithCause(err)
	case errors.Is(err, ErrAccountDisabled):
		service.events.AuthEvent("federated_login", OutcomeFailure)
		return nil, apperr.Forbidden("This account has been deactivated").WithCause(err)
	case err != nil:
		service.events.AuthEvent("federated_login", OutcomeError)
		return nil, fmt.Errorf("auth_service_federated_login_failed: %w", err)
	}

	session, err := service.openSession(context, identity, client)
	if err != nil {
		return nil, err
	}

	service.events.AuthEvent("federated_login", OutcomeSuccess)
	service.recordLogin(context, identity.ID)
	return session, nil
}

// recordLogin is best-effort. A failure is logged and the login stands.
func (service *Service) recordLogin(context context.Context, accountID string) {
	if err := service.accounts.RecordLogin(context, accountID, service.now()); err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "record_login_failed",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
	}
}

// openSession signs an access token and persists a hashed refresh token.
func (service *Service) openSession(context context.Context, identity Identity, client ClientInfo) (*LoginSession, error) {
	refreshToken, err := sec.GenerateSecureToken(sec.DefaultTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	sessionID := uuid.New()
	principal := identity.Principal()
	principal.SessionID = sessionID

	accessToken, err := service.tokens.GenerateAccessToken(principal, AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	now := service.now()
	session := &Session{
		ID:        sessionID,
		AccountID: identity.ID,
		TokenHash: sec.HashToken(refreshToken),
		UserAgent: client.UserAgent,
		IPAddress: client.IPAddress,
		ExpiresAt: now.Add(RefreshTokenTTL),
		CreatedAt: now,
	}

	if err := service.sessions.Create(context, session); err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: session.ExpiresAt,
		User:                  identity,
	}, nil
}

// # Session Management

var errRefreshInvalid = apperr.Unauthorized("Invalid or expired refresh token")

/*
RefreshSession implements refresh token rotation.

Description: The presented session is revoked before a new one is opened.
Revocation is conditional, so when two requests race with the same token
only one rotates it and the other gets 401.

Parameters:
  - context: context.Context
  - refreshToken: string
  - client: ClientInfo

Returns:
  - *LoginSession: New session credentials
  - error: Unauthorized or storage failures
*/
func (service *Service) RefreshSession(context context.Context, refreshToken string, client ClientInfo) (*LoginSession, error) {
	session, err := service.currentSession(context, refreshToken)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, errRefreshInvalid.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_lookup_failed: %w", err)
	}

	// Rotation: revoke the old session to prevent replay.
	if err := service.sessions.Revoke(context, session.ID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, errRefreshInvalid.WithCause(err)
		}
		return nil, fmt.Errorf("auth_service_refresh_revoke_failed: %w", err)
	}

	account, err := service.accounts.FindByID(context, session.AccountID)
	if errors.Is(err, ErrAccountNotFound) || (err == nil && !account.IsActive) {
		return nil, apperr.Unauthorized("Account not found or deactivated")
	}
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_account_failed: %w", err)
	}

	service.events.AuthEvent("refresh", OutcomeSuccess)
	return service.openSession(context, account.Identity(), client)
}

/*
Logout permanently revokes the session behind a refresh token.

Description: Unknown or already revoked tokens succeed, so logout is idempotent.
*/
func (service *Service) Logout(context context.Context, refreshToken string) error {
	session, err := service.currentSession(context, refreshToken)
	if err != nil {
		return nil
	}

	if err := service.sessions.Revoke(context, session.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}

	service.events.AuthEvent("logout", OutcomeSuccess)
	return nil
}

func (service *Service) currentSession(context context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrSessionNotFound
	}
	return service.sessions.FindByTokenHash(context, sec.HashToken(refreshToken), service.now())
}

// PurgeExpiredSessions deletes expired sessions and reports how many were removed.
func (service *Service) PurgeExpiredSessions(context context.Context) (int64, error) {
	removed, err := service.sessions.DeleteExpired(context, service.now())
	if err != nil {
		return 0, fmt.Errorf("auth_service_purge_sessions_failed: %w", err)
	}
	return removed, nil
}

// # Helpers

func validatePassword(validator *validate.Validator, field, password string) {
	validator.Required(field, password).
		MinLen(field, password, PasswordMinLength).
		MaxBytes(field, password, PasswordMaxBytes)
}

func validateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)

	validator := &validate.Validator{}
	validator.Required(FieldEmail, email).
		MaxLen(FieldEmail, email, EmailMaxLength).
		Email(FieldEmail, email)

	return email, validator.Err()
}

func validateToken(token string) error {
	if token == "" {
		return validate.RequiredError(FieldToken, "This field is required")
	}
	return nil
}

// tokenFailure maps a token consumption error onto the client-facing taxonomy.
func (service *Service) tokenFailure(context context.Context, event string, err error) error {
	if errors.Is(err, ErrInvalidToken) {
		service.events.AuthEvent(event, OutcomeFailure)
		return apperr.InvalidToken().WithCause(err)
	}
	service.events.AuthEvent(event, OutcomeError)
	ctxutil.GetLogger(context).ErrorContext(context, "token_consumption_failed",
		slog.String("event", event),
		slog.Any("error", err),
	)
	return apperr.Internal(err)
}

// sendMail renders and queues a token email. Delivery never affects the caller.
func (service *Service) sendMail(context context.Context, account *Account, token IssuedToken, render func(*Account, IssuedToken) (mailer.Message, error)) {
	logger := ctxutil.GetLogger(context)

	message, err := render(account, token)
	if err != nil {
		logger.ErrorContext(context, "mail_render_failed", slog.String("account_id", account.ID), slog.Any("error", err))
		return
	}

	if !service.mail.Enqueue(message) {
		logger.WarnContext(context, "mail_not_queued",
			slog.String("account_id", account.ID),
			slog.String("kind", message.Kind),
		)
	}
}
