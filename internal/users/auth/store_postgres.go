// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/lms/internal/platform/dberr"
	"github.com/taibuivan/lms/internal/platform/sec"
)

// Querier is the part of [pgxpool.Pool] the repositories use. Tests swap in
// a pgxmock pool.
type Querier interface {
	Exec(context context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(context context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(context context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

// constraintEmailUnique is the name of the unique constraint on users.account.email.
const constraintEmailUnique = "account_email_key"

// accountColumns is the projection read by [scanAccount]. Keep them in sync.
const accountColumns = `id, email, name, passwordhash, githubusername, avatarurl, role, locale,
	emailverified, verificationtoken, verificationexpiresat, resettoken, resetexpiresat,
	lastloginat, isactive, createdat, updatedat`

// scanAccount hydrates an [Account] from any single-row result.
func scanAccount(row pgx.Row) (*Account, error) {
	account := &Account{}
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.PasswordHash,
		&account.GitHubUsername,
		&account.AvatarURL,
		&account.Role,
		&account.Locale,
		&account.EmailVerified,
		&account.VerificationToken,
		&account.VerificationExpiry,
		&account.ResetToken,
		&account.ResetExpiry,
		&account.LastLoginAt,
		&account.IsActive,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// tokenColumns returns the token and expiry columns that back a purpose.
func tokenColumns(purpose TokenPurpose) (token, expiry string, err error) {
	switch purpose {
	case PurposeVerification:
		return "verificationtoken", "verificationexpiresat", nil
	case PurposeReset:
		return "resettoken", "resetexpiresat", nil
	default:
		return "", "", fmt.Errorf("unknown_token_purpose: %d", purpose)
	}
}

// # Account Repository

// PostgresAccountRepository implements the AccountRepository interface using pgx.
type PostgresAccountRepository struct {
	pool Querier
}

// NewAccountRepository creates a new PostgreSQL implementation of the AccountRepository.
func NewAccountRepository(pool Querier) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

/*
Create persists a new account record into the users.account table.

Description: A pending verification token may be inserted together with the
row, so the account never exists without its token.

Parameters:
  - context: context.Context
  - account: *Account (Entity to persist)

Returns:
  - error: ErrEmailTaken, or connectivity errors
*/
func (repository *PostgresAccountRepository) Create(context context.Context, account *Account) error {
	const query = `
		INSERT INTO users.account (
			id, email, name, passwordhash, githubusername, avatarurl, role, locale,
			emailverified, verificationtoken, verificationexpiresat, isactive, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := repository.pool.Exec(context, query,
		account.ID,
		account.Email,
		account.Name,
		account.PasswordHash,
		account.GitHubUsername,
		account.AvatarURL,
		account.Role,
		account.Locale,
		account.EmailVerified,
		account.VerificationToken,
		account.VerificationExpiry,
		account.IsActive,
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		if dberr.IsUniqueViolation(err, constraintEmailUnique) {
			return ErrEmailTaken
		}
		return fmt.Errorf("postgres_account_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByID retrieves an account by its primary key.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *Account: Hydrated account entity
  - error: ErrAccountNotFound or execution errors
*/
func (repository *PostgresAccountRepository) FindByID(context context.Context, id string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users.account WHERE id = $1`

	account, err := scanAccount(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("postgres_account_repo_find_by_id_failed: %w", err)
	}

	return account, nil
}

/*
FindByEmail retrieves an account by its unique email address.

Description: Deactivated rows are returned too; callers decide what an
inactive account may do.
*/
func (repository *PostgresAccountRepository) FindByEmail(context context.Context, email string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users.account WHERE email = $1`

	account, err := scanAccount(repository.pool.QueryRow(context, query, email))
	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("postgres_account_repo_find_by_email_failed: %w", err)
	}

	return account, nil
}

// FindByToken looks up a live token without consuming it.
func (repository *PostgresAccountRepository) FindByToken(context context.Context, purpose TokenPurpose, token string, now time.Time) (*Account, error) {
	tokenColumn, expiryColumn, err := tokenColumns(purpose)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM users.account WHERE %s = $1 AND %s > $2`,
		accountColumns, tokenColumn, expiryColumn)

	account, err := scanAccount(repository.pool.QueryRow(context, query, token, now))
	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("postgres_account_repo_find_by_token_failed: %w", err)
	}

	return account, nil
}

/*
SetToken writes a token pair for the given purpose.

Parameters:
  - context: context.Context
  - accountID: string
  - token: IssuedToken

Returns:
  - error: ErrAccountNotFound or execution errors
*/
func (repository *PostgresAccountRepository) SetToken(context context.Context, accountID string, token IssuedToken) error {
	tokenColumn, expiryColumn, err := tokenColumns(token.Purpose)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE users.account SET %s = $2, %s = $3, updatedat = $4 WHERE id = $1`,
		tokenColumn, expiryColumn)

	tag, err := repository.pool.Exec(context, query, accountID, token.Value, token.ExpiresAt, token.IssuedAt)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_set_token_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

/*
ConsumeToken spends a single-use token in one conditional UPDATE.

Description: The WHERE clause re-checks the token and its expiry, so the row
lock taken by the first writer makes every concurrent duplicate match nothing.
The effect and the clearing of the pair land in the same statement.

Returns:
  - *Account: The account after the update
  - error: ErrInvalidToken or execution errors
*/
func (repository *PostgresAccountRepository) ConsumeToken(context context.Context, consumption TokenConsumption) (*Account, error) {
	var (
		query string
		args  []any
	)

	switch consumption.Purpose {
	case PurposeVerification:
		query = `
			UPDATE users.account
			SET emailverified = TRUE, verificationtoken = NULL, verificationexpiresat = NULL, updatedat = $2
			WHERE verificationtoken = $1 AND verificationexpiresat > $2
			RETURNING ` + accountColumns
		args = []any{consumption.Token, consumption.Now}

	case PurposeReset:
		query = `
			UPDATE users.account
			SET passwordhash = $3, resettoken = NULL, resetexpiresat = NULL, updatedat = $2
			WHERE resettoken = $1 AND resetexpiresat > $2
			RETURNING ` + accountColumns
		args = []any{consumption.Token, consumption.Now, consumption.PasswordHash}

	default:
		return nil, fmt.Errorf("unknown_token_purpose: %d", consumption.Purpose)
	}

	account, err := scanAccount(repository.pool.QueryRow(context, query, args...))
	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("postgres_account_repo_consume_token_failed: %w", err)
	}

	return account, nil
}

// UpdatePassword also drops any outstanding reset token, which the old password no longer protects.
func (repository *PostgresAccountRepository) UpdatePassword(context context.Context, accountID, passwordHash string, at time.Time) error {
	const query = `
		UPDATE users.account
		SET passwordhash = $2, resettoken = NULL, resetexpiresat = NULL, updatedat = $3
		WHERE id = $1`

	tag, err := repository.pool.Exec(context, query, accountID, passwordHash, at)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_update_password_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// RecordLogin stamps lastloginat and marks the account active.
func (repository *PostgresAccountRepository) RecordLogin(context context.Context, accountID string, at time.Time) error {
	const query = "UPDATE users.account SET lastloginat = $2, isactive = TRUE WHERE id = $1"
	_, err := repository.pool.Exec(context, query, accountID, at)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_record_login_failed: %w", err)
	}
	return nil
}

/*
UpdateProfile applies the non-nil fields of update.

Parameters:
  - context: context.Context
  - accountID: string
  - update: ProfileUpdate
  - at: time.Time

Returns:
  - *Account: The updated account
  - error: ErrAccountNotFound or execution errors
*/
func (repository *PostgresAccountRepository) UpdateProfile(context context.Context, accountID string, update ProfileUpdate, at time.Time) (*Account, error) {
	query := `
		UPDATE users.account
		SET name = COALESCE($2, name), locale = COALESCE($3, locale), updatedat = $4
		WHERE id = $1 AND isactive = TRUE
		RETURNING ` + accountColumns

	account, err := scanAccount(repository.pool.QueryRow(context, query, accountID, update.Name, update.Locale, at))
	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("postgres_account_repo_update_profile_failed: %w", err)
	}

	return account, nil
}

// SetActive toggles the soft-deactivation flag.
func (repository *PostgresAccountRepository) SetActive(context context.Context, accountID string, active bool, at time.Time) error {
	const query = "UPDATE users.account SET isactive = $2, updatedat = $3 WHERE id = $1"

	tag, err := repository.pool.Exec(context, query, accountID, active, at)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_set_active_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetRole changes the authorization level of an account and returns it.
func (repository *PostgresAccountRepository) SetRole(context context.Context, accountID string, role sec.UserRole, at time.Time) (*Account, error) {
	query := `
		UPDATE users.account
		SET role = $2, updatedat = $3
		WHERE id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(repository.pool.QueryRow(context, query, accountID, role, at))
	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("postgres_account_repo_set_role_failed: %w", err)
	}

	return account, nil
}

// # Session Repository

// sessionColumns is the projection read by [scanSession].
const sessionColumns = `id, accountid, tokenhash, useragent, ipaddress, expiresat, isrevoked, createdat`

func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	err := row.Scan(
		&session.ID,
		&session.AccountID,
		&session.TokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.IsRevoked,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// PostgresSessionRepository implements the SessionRepository interface.
type PostgresSessionRepository struct {
	pool Querier
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool Querier) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

/*
Create persists a new session record into the users.session table.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Storage failures
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO users.session (
			id, accountid, tokenhash, useragent, ipaddress, expiresat, isrevoked, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := repository.pool.Exec(context, query,
		session.ID,
		session.AccountID,
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.IsRevoked,
		session.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByTokenHash resolves a refresh token hash into a live session.

Parameters:
  - context: context.Context
  - tokenHash: string
  - now: time.Time

Returns:
  - *Session: Hydrated session metadata
  - error: ErrSessionNotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindByTokenHash(context context.Context, tokenHash string, now time.Time) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM users.session
		WHERE tokenhash = $1 AND isrevoked = FALSE AND expiresat > $2`

	session, err := scanSession(repository.pool.QueryRow(context, query, tokenHash, now))
	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}

// Revoke only matches a live row; a second revoke reports ErrSessionNotFound.
func (repository *PostgresSessionRepository) Revoke(context context.Context, sessionID string) error {
	const query = "UPDATE users.session SET isrevoked = TRUE WHERE id = $1 AND isrevoked = FALSE"

	tag, err := repository.pool.Exec(context, query, sessionID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

/*
RevokeAll terminates every session for an account.

Description: Used after a password reset or deactivation.
*/
func (repository *PostgresSessionRepository) RevokeAll(context context.Context, accountID string) error {
	const query = "UPDATE users.session SET isrevoked = TRUE WHERE accountid = $1 AND isrevoked = FALSE"
	_, err := repository.pool.Exec(context, query, accountID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_all_failed: %w", err)
	}
	return nil
}

// RevokeOthers keeps the caller's own session alive.
func (repository *PostgresSessionRepository) RevokeOthers(context context.Context, accountID, keepID string) error {
	const query = `
		UPDATE users.session SET isrevoked = TRUE
		WHERE accountid = $1 AND id <> $2 AND isrevoked = FALSE`
	_, err := repository.pool.Exec(context, query, accountID, keepID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_others_failed: %w", err)
	}
	return nil
}

// DeleteExpired purges sessions past their expiry, revoked or not.
func (repository *PostgresSessionRepository) DeleteExpired(context context.Context, now time.Time) (int64, error) {
	const query = "DELETE FROM users.session WHERE expiresat <= $1"

	tag, err := repository.pool.Exec(context, query, now)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
