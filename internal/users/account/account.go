// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account handles profile management and session security for signed-in users.

It lets a user view and edit their own profile, pick an interface language,
deactivate their account, and review or revoke the devices signed into it.
Staff can look accounts up, and admins can change their role.

# Architecture

  - Entities: SessionInfo (DTO). Accounts and sessions are owned by the auth package.
  - Domain: This package depends on the auth package for [auth.Account] and [auth.Session].
  - Security: Self-service operations are scoped to the caller's own account ID.
    Staff operations are gated by role in the router.
*/
package account

import (
	"context"
	"strings"
	"time"

	"github.com/taibuivan/lms/internal/platform/sec"
	"github.com/taibuivan/lms/internal/users/auth"
)

// # Domain Entities

// SessionInfo provides a safety-mapped view of an active user session.
// It omits the refresh token hash for transport.
type SessionInfo struct {
	ID         string    `json:"id"`
	DeviceName string    `json:"device_name"` // e.g. "Chrome on Windows"
	UserAgent  string    `json:"user_agent"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsCurrent  bool      `json:"is_current"` // True if the request was made with this session
}

func newSessionInfo(session auth.Session, currentSessionID string) SessionInfo {
	return SessionInfo{
		ID:         session.ID,
		DeviceName: describeDevice(session.UserAgent),
		UserAgent:  session.UserAgent,
		IPAddress:  session.IPAddress,
		CreatedAt:  session.CreatedAt,
		ExpiresAt:  session.ExpiresAt,
		IsCurrent:  currentSessionID != "" && session.ID == currentSessionID,
	}
}

// Browser and platform markers, most specific first. Edge and Opera also
// announce Chrome, and Chrome also announces Safari.
var (
	browserMarkers = []struct{ marker, name string }{
		{"Edg/", "Edge"},
		{"OPR/", "Opera"},
		{"Firefox/", "Firefox"},
		{"Chrome/", "Chrome"},
		{"Safari/", "Safari"},
	}
	platformMarkers = []struct{ marker, name string }{
		{"Android", "Android"},
		{"iPhone", "iOS"},
		{"iPad", "iOS"},
		{"Windows", "Windows"},
		{"Mac OS X", "macOS"},
		{"Linux", "Linux"},
	}
)

// describeDevice turns a User-Agent header into a short label for humans.
func describeDevice(userAgent string) string {
	browser, platform := "", ""
	for _, candidate := range browserMarkers {
		if strings.Contains(userAgent, candidate.marker) {
			browser = candidate.name
			break
		}
	}
	for _, candidate := range platformMarkers {
		if strings.Contains(userAgent, candidate.marker) {
			platform = candidate.name
			break
		}
	}

	switch {
	case browser != "" && platform != "":
		return browser + " on " + platform
	case browser != "":
		return browser
	case platform != "":
		return platform
	default:
		return "Unknown device"
	}
}

// # Repository Contracts

// ProfileRepository is the slice of [auth.AccountRepository] this package needs.
type ProfileRepository interface {
	FindByID(context context.Context, id string) (*auth.Account, error)
	UpdateProfile(context context.Context, accountID string, update auth.ProfileUpdate, at time.Time) (*auth.Account, error)
	SetActive(context context.Context, accountID string, active bool, at time.Time) error
	SetRole(context context.Context, accountID string, role sec.UserRole, at time.Time) (*auth.Account, error)
}

// SessionRepository defines the visibility and revocation contract for user sessions.
type SessionRepository interface {
	/*
		FindActiveByAccountID lists the live sessions of an account, newest first.

		Parameters:
		  - context: context.Context
		  - accountID: string
		  - now: time.Time

		Returns:
		  - []auth.Session: Unrevoked, unexpired sessions
		  - error: Retrieval errors
	*/
	FindActiveByAccountID(context context.Context, accountID string, now time.Time) ([]auth.Session, error)

	/*
		RevokeOwned marks one session as revoked.

		Parameters:
		  - context: context.Context
		  - accountID: string (Security constraint: owner validation)
		  - sessionID: string

		Returns:
		  - error: auth.ErrSessionNotFound when the session is not a live one of this account
	*/
	RevokeOwned(context context.Context, accountID, sessionID string) error

	// RevokeOthers revokes every live session except keepID.
	RevokeOthers(context context.Context, accountID, keepID string) error

	// RevokeAll terminates every session of the account.
	RevokeAll(context context.Context, accountID string) error
}
