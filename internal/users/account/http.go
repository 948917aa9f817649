// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/lms/internal/platform/constants"
	"github.com/taibuivan/lms/internal/platform/middleware"
	requestutil "github.com/taibuivan/lms/internal/platform/request"
	"github.com/taibuivan/lms/internal/platform/respond"
	"github.com/taibuivan/lms/internal/platform/sec"
)

// Handler implements the HTTP layer for user account management.
//
// # Security
//
// All endpoints require an access token. The account ID always comes from
// its claims, never from the URL.
type Handler struct {
	accountService *Service
}

// NewHandler constructs a new account [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{accountService: service}
}

// Mount registers the account routes on an /api router.
//
// # Endpoints
//   - GET    /me                        : Private profile.
//   - PATCH  /me                        : Updates name and locale.
//   - DELETE /me                        : Deactivates the account.
//   - GET    /me/sessions               : Lists signed-in devices.
//   - DELETE /me/sessions/{id}          : Revokes one device.
//   - POST   /me/sessions/revoke-others : Revokes every other device.
//   - GET    /accounts/{id}             : Any account (instructor and above).
//   - PATCH  /accounts/{id}/role        : Changes the role (admin).
func (handler *Handler) Mount(router chi.Router) {
	router.Route("/me", func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		// Account Management
		r.Get("/", handler.getMe)
		r.Patch("/", handler.updateMe)
		r.Delete("/", handler.deleteMe)

		// Session Security
		r.Get("/sessions", handler.listSessions)
		r.Delete("/sessions/{id}", handler.revokeSession)
		r.Post("/sessions/revoke-others", handler.revokeOtherSessions)
	})

	router.Route("/accounts/{id}", func(r chi.Router) {
		r.With(middleware.RequireRole(sec.RoleInstructor)).Get("/", handler.getAccount)
		r.With(middleware.RequireRole(sec.RoleAdmin)).Patch("/role", handler.changeRole)
	})
}

// # User Profile Endpoints

/*
GET /api/me.

Description: Retrieves the full private profile of the authenticated user.

Response:
  - 200: Account: Profile without secrets
  - 401: ErrUnauthorized: Authentication required
  - 404: ErrNotFound: Account deactivated
*/
func (handler *Handler) getMe(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.accountService.GetProfile(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, account)
}

// updateMeRequest defines the expected JSON payload for profile updates.
type updateMeRequest struct {
	Name   *string `json:"name"`
	Locale *string `json:"locale"`
}

/*
PATCH /api/me.

Description: Applies partial updates to the authenticated user's profile.
Omitted fields are left unchanged.

Request:
  - body: updateMeRequest (Partial JSON)

Response:
  - 200: Account: The updated profile
  - 400: ErrInvalidJSON/Validation: Invalid input data
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) updateMe(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input updateMeRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.accountService.UpdateProfile(request.Context(), userID, UpdateProfileInput{
		Name:   input.Name,
		Locale: input.Locale,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, account)
}

/*
DELETE /api/me.

Description: Deactivates the authenticated user's account, revokes every
session and clears the refresh cookie.

Response:
  - 204: No Content: Account deactivated
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) deleteMe(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.accountService.Deactivate(request.Context(), userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	respond.NoContent(writer)
}

// # Session Security Endpoints

/*
GET /api/me/sessions.

Description: Enumerates the devices signed into the user's account. The
session behind the access token is flagged is_current.

Response:
  - 200: []SessionInfo: Live sessions
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) listSessions(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessions, err := handler.accountService.ListSessions(request.Context(), claims.UserID, claims.SessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessions)
}

/*
DELETE /api/me/sessions/{id}.

Description: Forces a sign-out on a specific device identified by its session ID.

Request:
  - id: string (Session UUID)

Response:
  - 204: No Content: Session terminated successfully
  - 401: ErrUnauthorized: Authentication required
  - 404: ErrNotFound: Not a live session of this account
*/
func (handler *Handler) revokeSession(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessionID := chi.URLParam(request, "id")

	if err := handler.accountService.RevokeSession(request.Context(), userID, sessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
POST /api/me/sessions/revoke-others.

Description: Forces a sign-out on all devices except the one making the request.

Response:
  - 204: No Content: All other sessions terminated
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) revokeOtherSessions(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.accountService.RevokeOtherSessions(request.Context(), claims.UserID, claims.SessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Staff Endpoints

/*
GET /api/accounts/{id}.

Description: Looks up any account, deactivated ones included.

Response:
  - 200: Account: Profile without secrets
  - 401: ErrUnauthorized: Authentication required
  - 403: ErrForbidden: Caller is below instructor
  - 404: ErrNotFound: Unknown account
*/
func (handler *Handler) getAccount(writer http.ResponseWriter, request *http.Request) {
	account, err := handler.accountService.FindAccount(request.Context(), chi.URLParam(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, account)
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

/*
PATCH /api/accounts/{id}/role.

Request:
  - body: changeRoleRequest

Response:
  - 200: Account: The updated account
  - 400: Validation: Unknown role
  - 403: ErrForbidden: Caller is not an admin, or targets itself
  - 404: ErrNotFound: Unknown account
*/
func (handler *Handler) changeRole(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changeRoleRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.accountService.ChangeRole(request.Context(), userID, chi.URLParam(request, "id"), input.Role)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, account)
}
