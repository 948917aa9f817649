// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/lms/internal/users/auth"
)

// # Repository Implementations

// PostgresSessionRepository implements [SessionRepository] using pgx.
//
// Bulk revocation is shared with the auth package; this type adds the
// owner-scoped listing and single-session revocation.
type PostgresSessionRepository struct {
	*auth.PostgresSessionRepository
	pool auth.Querier
}

// NewSessionRepository creates a new Postgres implementation for session auditing.
func NewSessionRepository(pool auth.Querier) *PostgresSessionRepository {
	return &PostgresSessionRepository{
		PostgresSessionRepository: auth.NewSessionRepository(pool),
		pool:                      pool,
	}
}

/*
FindActiveByAccountID lists every live session of an account.

Parameters:
  - context: context.Context
  - accountID: string
  - now: time.Time

Returns:
  - []auth.Session: Newest first
  - error: Execution failures
*/
func (repository *PostgresSessionRepository) FindActiveByAccountID(context context.Context, accountID string, now time.Time) ([]auth.Session, error) {
	const query = `
		SELECT id, accountid, useragent, ipaddress, expiresat, createdat
		FROM users.session
		WHERE accountid = $1 AND isrevoked = FALSE AND expiresat > $2
		ORDER BY createdat DESC`

	rows, err := repository.pool.Query(context, query, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_failed: %w", err)
	}

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (auth.Session, error) {
		var session auth.Session
		err := row.Scan(
			&session.ID,
			&session.AccountID,
			&session.UserAgent,
			&session.IPAddress,
			&session.ExpiresAt,
			&session.CreatedAt,
		)
		return session, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_scan_failed: %w", err)
	}

	return sessions, nil
}

// RevokeOwned matches on both IDs so a user can never revoke someone else's session.
func (repository *PostgresSessionRepository) RevokeOwned(context context.Context, accountID, sessionID string) error {
	const query = `
		UPDATE users.session SET isrevoked = TRUE
		WHERE id = $1 AND accountid = $2 AND isrevoked = FALSE`

	tag, err := repository.pool.Exec(context, query, sessionID, accountID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_owned_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}
