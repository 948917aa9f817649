// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/lms/internal/platform/apperr"
	"github.com/taibuivan/lms/internal/platform/constants"
	"github.com/taibuivan/lms/internal/platform/ctxutil"
	"github.com/taibuivan/lms/internal/platform/middleware"
	requestutil "github.com/taibuivan/lms/internal/platform/request"
	"github.com/taibuivan/lms/internal/platform/respond"
	"github.com/taibuivan/lms/internal/platform/sec"
)

// # Definitions & Constructors

// OAuthProvider runs the authorization-code flow of one identity provider.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(context context.Context, code string) (FederatedProfile, error)
}

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// Registration, credential and GitHub sign-in, token-gated transitions
// (verification and reset) and refresh-token cookie handling.
type Handler struct {
	authService *Service
	github      OAuthProvider
	states      OAuthStateRepository
}

// NewHandler constructs a new [Handler]. A nil github provider disables the
// GitHub endpoints, which then answer 404.
func NewHandler(service *Service, github OAuthProvider, states OAuthStateRepository) *Handler {
	return &Handler{authService: service, github: github, states: states}
}

// Mount registers the authentication routes on an /api router.
//
// # Endpoints
//   - POST /register                  : Creates a new account.
//   - POST /auth/login                : Authenticates and returns a JWT.
//   - POST /auth/refresh              : Rotates the refresh cookie.
//   - POST /auth/verify-email         : Consumes a verification token.
//   - POST /auth/forgot-password      : Issues a reset token.
//   - GET  /auth/reset-password       : Checks a reset token.
//   - POST /auth/reset-password       : Consumes a reset token.
//   - POST /auth/resend-verification  : Reissues a verification token.
//   - GET  /auth/github/login         : Redirects to GitHub.
//   - GET  /auth/github/callback      : Completes GitHub sign-in.
//   - POST /auth/logout, /auth/change-password, GET /auth/session (authenticated)
func (handler *Handler) Mount(router chi.Router) {
	router.Post("/register", handler.register)

	router.Route("/auth", func(r chi.Router) {

		// Public endpoints
		r.Post("/login", handler.login)
		r.Post("/refresh", handler.refresh)
		r.Post("/verify-email", handler.verifyEmail)
		r.Post("/forgot-password", handler.forgotPassword)
		r.Get("/reset-password", handler.checkResetToken)
		r.Post("/reset-password", handler.resetPassword)
		r.Post("/resend-verification", handler.resendVerification)
		r.Get("/github/login", handler.githubLogin)
		r.Get("/github/callback", handler.githubCallback)

		// Protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Post("/logout", handler.logout)
			r.Post("/change-password", handler.changePassword)
			r.Get("/session", handler.session)
		})
	})
}

// # Request Payloads

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

/*
Register handles the creation of a new user account.

POST /api/register

Description: The interface language negotiated from Accept-Language becomes
the account's locale.

Request:
  - Body: registerRequest (Name, Email, Password)

Response:
  - 201: {user}: Created account, without secrets
  - 400: Validation failure
  - 409: Email already exists
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.authService.Register(request.Context(), RegisterInput{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		Locale:   ctxutil.GetLocale(request.Context()),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, map[string]any{FieldUser: account})
}

/*
Login authenticates a user and establishes a session.

POST /api/auth/login

Request:
  - Body: loginRequest (Email, Password)

Response:
  - 200: Access token and identity, plus the refresh cookie
  - 401: "Invalid email or password" for every credential failure
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Email:    input.Email,
		Password: input.Password,
		Client:   clientInfo(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	writeSession(writer, session)
}

/*
Refresh issues a new access token using a valid refresh token.

POST /api/auth/refresh

Response:
  - 200: New access token, rotated refresh cookie
  - 401: Missing, invalid or already rotated refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token in cookies"))
		return
	}

	session, err := handler.authService.RefreshSession(request.Context(), cookie.Value, clientInfo(request))
	if err != nil {
		clearCookie(writer, constants.RefreshTokenCookieName, constants.RefreshTokenCookiePath)
		respond.Error(writer, request, err)
		return
	}

	writeSession(writer, session)
}

/*
Logout terminates the current session.

POST /api/auth/logout

Response:
  - 204: Session terminated, cookie cleared
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil && cookie.Value != "" {
		if err := handler.authService.Logout(request.Context(), cookie.Value); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	clearCookie(writer, constants.RefreshTokenCookieName, constants.RefreshTokenCookiePath)
	respond.NoContent(writer)
}

/*
VerifyEmail confirms a user's email ownership.

POST /api/auth/verify-email

Request:
  - Body: tokenRequest (Token)

Response:
  - 200: Email verified
  - 400: Missing, invalid, expired or already used token
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var input tokenRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.VerifyEmail(request.Context(), input.Token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, MessageEmailVerified)
}

/*
ForgotPassword initiates the password recovery flow.

POST /api/auth/forgot-password

Response:
  - 200: The same generic message whether or not the email exists
  - 400: Invalid email format
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, MessageResetRequested)
}

/*
CheckResetToken lets the front-end reject a dead link before asking for a password.

GET /api/auth/reset-password?token=...

Response:
  - 204: Token is live
  - 400: Invalid or expired token
*/
func (handler *Handler) checkResetToken(writer http.ResponseWriter, request *http.Request) {
	if err := handler.authService.ValidateResetToken(request.Context(), request.URL.Query().Get(FieldToken)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ResetPassword completes the password recovery flow.

POST /api/auth/reset-password

Request:
  - Body: resetPasswordRequest (Token, Password)

Response:
  - 200: Password updated, every session revoked
  - 400: Invalid token or weak password
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), input.Token, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, MessagePasswordReset)
}

// POST /api/auth/resend-verification answers identically for every email.
func (handler *Handler) resendVerification(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResendVerification(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, MessageVerificationResent)
}

/*
ChangePassword updates the authenticated user's password.

POST /api/auth/change-password

Description: The caller's own session survives; every other one is revoked.

Response:
  - 200: Password changed
  - 401: Current password is incorrect
  - 403: Account has no password yet
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var refreshToken string
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil {
		refreshToken = cookie.Value
	}

	err = handler.authService.ChangePassword(request.Context(), ChangePasswordInput{
		AccountID:       claims.UserID,
		CurrentPassword: input.CurrentPassword,
		NewPassword:     input.NewPassword,
		RefreshToken:    refreshToken,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, MessagePasswordChanged)
}

// GET /api/auth/session returns the identity carried by the access token.
func (handler *Handler) session(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, IdentityFromClaims(claims))
}

// # Federated Sign-in

/*
GitHubLogin starts the GitHub authorization-code flow.

GET /api/auth/github/login

Description: A random state is stored in Redis, so any instance can
complete the callback, and bound to this browser with a short-lived cookie.

Response:
  - 302: Redirect to GitHub
  - 404: GitHub sign-in is not configured
*/
func (handler *Handler) githubLogin(writer http.ResponseWriter, request *http.Request) {
	if handler.github == nil {
		respond.Error(writer, request, apperr.NotFound("GitHub sign-in"))
		return
	}

	state, err := sec.GenerateSecureToken(OAuthStateBytes)
	if err != nil {
		respond.Error(writer, request, apperr.Internal(err))
		return
	}

	if err := handler.states.Save(request.Context(), state, constants.OAuthStateTTL); err != nil {
		respond.Error(writer, request, apperr.Internal(err))
		return
	}

	// Lax, not Strict: the callback arrives as a top-level navigation from github.com.
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.OAuthStateCookieName,
		Value:    state,
		Path:     constants.OAuthStateCookiePath,
		MaxAge:   int(constants.OAuthStateTTL / time.Second),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(writer, request, handler.github.AuthCodeURL(state), http.StatusFound)
}

/*
GitHubCallback completes GitHub sign-in.

GET /api/auth/github/callback?code=...&state=...

Response:
  - 200: Access token and identity, plus the refresh cookie
  - 400: Missing code, or a state that is unknown, reused or not bound to this browser
  - 401: GitHub refused, or asserted no usable email
  - 403: The matching account is deactivated
*/
func (handler *Handler) githubCallback(writer http.ResponseWriter, request *http.Request) {
	if handler.github == nil {
		respond.Error(writer, request, apperr.NotFound("GitHub sign-in"))
		return
	}

	query := request.URL.Query()
	state := query.Get(FieldState)

	cookie, err := request.Cookie(constants.OAuthStateCookieName)
	clearCookie(writer, constants.OAuthStateCookieName, constants.OAuthStateCookiePath)

	if state == "" || err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		respond.Error(writer, request, apperr.ValidationError("Invalid OAuth state"))
		return
	}

	valid, err := handler.states.Consume(request.Context(), state)
	if err != nil {
		respond.Error(writer, request, apperr.Internal(err))
		return
	}
	if !valid {
		respond.Error(writer, request, apperr.ValidationError("Invalid OAuth state"))
		return
	}

	if providerError := query.Get("error"); providerError != "" {
		respond.Error(writer, request, apperr.Unauthorized("GitHub sign-in was cancelled or refused"))
		return
	}

	code := query.Get(FieldCode)
	if code == "" {
		respond.Error(writer, request, apperr.ValidationError("Missing authorization code"))
		return
	}

	profile, err := handler.github.Exchange(request.Context(), code)
	if err != nil {
		ctxutil.GetLogger(request.Context()).WarnContext(request.Context(), "github_exchange_failed", slog.Any("error", err))
		respond.Error(writer, request, apperr.Unauthorized("GitHub sign-in failed").WithCause(err))
		return
	}

	session, err := handler.authService.FederatedLogin(request.Context(), profile, clientInfo(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	writeSession(writer, session)
}

// # Transport Helpers

func clientInfo(request *http.Request) ClientInfo {
	return ClientInfo{
		UserAgent: request.UserAgent(),
		IPAddress: middleware.ClientIP(request),
	}
}

// writeSession sets the refresh cookie and returns the access token.
func writeSession(writer http.ResponseWriter, session *LoginSession) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    session.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  session.RefreshTokenExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int(AccessTokenTTL / time.Second),
		FieldUser:        session.User,
	})
}

func clearCookie(writer http.ResponseWriter, name, path string) {
	http.SetCookie(writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
