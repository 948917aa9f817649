// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

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
	"github.com/taibuivan/lms/internal/platform/sec"
	"github.com/taibuivan/lms/internal/platform/validate"
	"github.com/taibuivan/lms/internal/users/auth"
	"github.com/taibuivan/lms/pkg/uuid"
)

// # Service Layer

// Service orchestrates business logic for user profiles and their sessions.
//
// Every method takes the caller's own account ID, taken from the access
// token by the handler, so users can only ever touch their own data.
type Service struct {
	profiles ProfileRepository
	sessions SessionRepository
	now      func() time.Time
}

// NewService constructs a new [Service]. A nil clock means time.Now.
func NewService(profiles ProfileRepository, sessions SessionRepository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{profiles: profiles, sessions: sessions, now: now}
}

var errAccountNotFound = apperr.NotFound("Account")

// # Profile Management

/*
GetProfile retrieves the private profile of an active account.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - *auth.Account: The profile, secrets excluded from JSON
  - error: NotFound (absent or deactivated) or storage failures
*/
func (service *Service) GetProfile(context context.Context, accountID string) (*auth.Account, error) {
	account, err := service.profiles.FindByID(context, accountID)
	if errors.Is(err, auth.ErrAccountNotFound) {
		return nil, errAccountNotFound.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("account_service_get_profile_failed: %w", err)
	}
	if !account.IsActive {
		return nil, errAccountNotFound
	}
	return account, nil
}

// UpdateProfileInput defines the mutable subset of profile fields. Nil means unchanged.
type UpdateProfileInput struct {
	Name   *string
	Locale *string
}

/*
UpdateProfile applies a partial set of changes to the caller's profile.

Description: The name is trimmed and bounded like at registration. The
locale must be one of the supported interface languages.

Parameters:
  - context: context.Context
  - accountID: string
  - input: UpdateProfileInput

Returns:
  - *auth.Account: The updated profile
  - error: ValidationError, NotFound or storage failures
*/
func (service *Service) UpdateProfile(context context.Context, accountID string, input UpdateProfileInput) (*auth.Account, error) {
	update := auth.ProfileUpdate{}
	validator := &validate.Validator{}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		validator.Required(auth.FieldName, name).
			MinLen(auth.FieldName, name, auth.NameMinLength).
			MaxLen(auth.FieldName, name, auth.NameMaxLength)
		update.Name = &name
	}

	if input.Locale != nil {
		validator.OneOf(auth.FieldLocale, *input.Locale, locale.Strings()...)
		loc := locale.Locale(*input.Locale)
		update.Locale = &loc
	}

	if err := validator.Err(); err != nil {
		return nil, err
	}

	// Nothing to change
	if update.Name == nil && update.Locale == nil {
		return service.GetProfile(context, accountID)
	}

	account, err := service.profiles.UpdateProfile(context, accountID, update, service.now())
	if errors.Is(err, auth.ErrAccountNotFound) {
		return nil, errAccountNotFound.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("account_service_update_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "account_profile_updated", slog.String("account_id", accountID))

	return account, nil
}

/*
Deactivate flags the account inactive and signs it out everywhere.

Description: Accounts are never hard-deleted. A deactivated account cannot
sign in with a password or refresh a session. Calling it twice is harmless.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - error: NotFound or storage failures
*/
func (service *Service) Deactivate(context context.Context, accountID string) error {
	err := service.profiles.SetActive(context, accountID, false, service.now())
	if errors.Is(err, auth.ErrAccountNotFound) {
		return errAccountNotFound.WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("account_service_deactivate_failed: %w", err)
	}

	if err := service.sessions.RevokeAll(context, accountID); err != nil {
		return fmt.Errorf("account_service_deactivate_revoke_failed: %w", err)
	}

	ctxutil.GetLogger(context).WarnContext(context, "account_deactivated", slog.String("account_id", accountID))

	return nil
}

// # Session Security

/*
ListSessions lists the devices currently signed into the account.

Parameters:
  - context: context.Context
  - accountID: string
  - currentSessionID: string (Marks the caller's own session, may be empty)

Returns:
  - []SessionInfo: Live sessions, newest first
  - error: Retrieval failures
*/
func (service *Service) ListSessions(context context.Context, accountID, currentSessionID string) ([]SessionInfo, error) {
	sessions, err := service.sessions.FindActiveByAccountID(context, accountID, service.now())
	if err != nil {
		return nil, fmt.Errorf("account_service_list_sessions_failed: %w", err)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, newSessionInfo(session, currentSessionID))
	}
	return infos, nil
}

/*
RevokeSession terminates one of the caller's sessions by its ID.

Description: Malformed IDs, other users' sessions and sessions that are
already revoked all return the same NotFound.
*/
func (service *Service) RevokeSession(context context.Context, accountID, sessionID string) error {
	if !uuid.IsValid(sessionID) {
		return apperr.NotFound("Session")
	}

	err := service.sessions.RevokeOwned(context, accountID, sessionID)
	if errors.Is(err, auth.ErrSessionNotFound) {
		return apperr.NotFound("Session").WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("account_service_revoke_session_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "account_session_revoked",
		slog.String("account_id", accountID),
		slog.String("session_id", sessionID),
	)

	return nil
}

/*
RevokeOtherSessions terminates every session except the caller's own.

Description: When the current session is unknown every session is revoked,
matching what a password change does.
*/
func (service *Service) RevokeOtherSessions(context context.Context, accountID, currentSessionID string) error {
	var err error
	if currentSessionID != "" {
		err = service.sessions.RevokeOthers(context, accountID, currentSessionID)
	} else {
		err = service.sessions.RevokeAll(context, accountID)
	}
	if err != nil {
		return fmt.Errorf("account_service_revoke_others_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "account_other_sessions_revoked", slog.String("account_id", accountID))

	return nil
}

// # Staff Operations

// fieldRole is the validation field for role changes.
const fieldRole = "role"

/*
FindAccount retrieves any account by ID, deactivated ones included.

Description: Used by instructors and admins. Malformed IDs return NotFound.
*/
func (service *Service) FindAccount(context context.Context, accountID string) (*auth.Account, error) {
	if !uuid.IsValid(accountID) {
		return nil, errAccountNotFound
	}

	account, err := service.profiles.FindByID(context, accountID)
	if errors.Is(err, auth.ErrAccountNotFound) {
		return nil, errAccountNotFound.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("account_service_find_account_failed: %w", err)
	}
	return account, nil
}

/*
ChangeRole sets the role of another account.

Description: Admins cannot change their own role, so the last admin cannot
lock the platform out. The new role reaches access tokens at the next refresh.

Parameters:
  - context: context.Context
  - actorID: string (The admin making the change)
  - accountID: string
  - role: string

Returns:
  - *auth.Account: The updated account
  - error: ValidationError, Forbidden, NotFound or storage failures
*/
func (service *Service) ChangeRole(context context.Context, actorID, accountID, role string) (*auth.Account, error) {
	validator := &validate.Validator{}
	validator.Required(fieldRole, role).
		OneOf(fieldRole, role, string(sec.RoleStudent), string(sec.RoleInstructor), string(sec.RoleAdmin))
	if err := validator.Err(); err != nil {
		return nil, err
	}

	if !uuid.IsValid(accountID) {
		return nil, errAccountNotFound
	}
	if accountID == actorID {
		return nil, apperr.Forbidden("You cannot change your own role")
	}

	account, err := service.profiles.SetRole(context, accountID, sec.UserRole(role), service.now())
	if errors.Is(err, auth.ErrAccountNotFound) {
		return nil, errAccountNotFound.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("account_service_change_role_failed: %w", err)
	}

	ctxutil.GetLogger(context).WarnContext(context, "account_role_changed",
		slog.String("actor_id", actorID),
		slog.String("account_id", accountID),
		slog.String("role", role),
	)

	return account, nil
}
