// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/lms/internal/platform/locale"
	"github.com/taibuivan/lms/internal/platform/sec"
	"github.com/taibuivan/lms/internal/users/account"
	"github.com/taibuivan/lms/internal/users/auth"
	"github.com/taibuivan/lms/pkg/pointer"
	"github.com/taibuivan/lms/pkg/uuid"
)

var (
	ctx        = context.Background()
	errStorage = errors.New("storage unavailable")
	epoch      = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func clock() time.Time { return epoch }

// # In-memory Profiles

type memoryProfiles struct {
	mu   sync.Mutex
	rows map[string]*auth.Account
}

func newMemoryProfiles(accounts ...*auth.Account) *memoryProfiles {
	m := &memoryProfiles{rows: map[string]*auth.Account{}}
	for _, row := range accounts {
		m.rows[row.ID] = row
	}
	return m
}

func (m *memoryProfiles) FindByID(_ context.Context, id string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	copied := *row
	return &copied, nil
}

func (m *memoryProfiles) UpdateProfile(_ context.Context, accountID string, update auth.ProfileUpdate, at time.Time) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[accountID]
	if !ok || !row.IsActive {
		return nil, auth.ErrAccountNotFound
	}
	if update.Name != nil {
		row.Name = *update.Name
	}
	if update.Locale != nil {
		row.Locale = *update.Locale
	}
	row.UpdatedAt = at
	copied := *row
	return &copied, nil
}

func (m *memoryProfiles) SetActive(_ context.Context, accountID string, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[accountID]
	if !ok {
		return auth.ErrAccountNotFound
	}
	row.IsActive = active
	row.UpdatedAt = at
	return nil
}

func (m *memoryProfiles) SetRole(_ context.Context, accountID string, role sec.UserRole, at time.Time) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[accountID]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	row.Role = role
	row.UpdatedAt = at
	copied := *row
	return &copied, nil
}

// # In-memory Sessions

type memorySessions struct {
	mu      sync.Mutex
	rows    map[string]*auth.Session
	listErr error
}

func newMemorySessions() *memorySessions {
	return &memorySessions{rows: map[string]*auth.Session{}}
}

// open adds a live session created offset after the epoch.
func (m *memorySessions) open(accountID, userAgent string, offset time.Duration) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	m.rows[id] = &auth.Session{
		ID:        id,
		AccountID: accountID,
		UserAgent: userAgent,
		IPAddress: "203.0.113.7",
		CreatedAt: epoch.Add(offset),
		ExpiresAt: epoch.Add(offset + auth.RefreshTokenTTL),
	}
	return id
}

func (m *memorySessions) FindActiveByAccountID(_ context.Context, accountID string, now time.Time) ([]auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	var live []auth.Session
	for _, row := range m.rows {
		if row.AccountID == accountID && !row.IsRevoked && row.ExpiresAt.After(now) {
			live = append(live, *row)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt.After(live[j].CreatedAt) })
	return live, nil
}

func (m *memorySessions) RevokeOwned(_ context.Context, accountID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[sessionID]
	if !ok || row.AccountID != accountID || row.IsRevoked {
		return auth.ErrSessionNotFound
	}
	row.IsRevoked = true
	return nil
}

func (m *memorySessions) RevokeOthers(_ context.Context, accountID, keepID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.AccountID == accountID && row.ID != keepID {
			row.IsRevoked = true
		}
	}
	return nil
}

func (m *memorySessions) RevokeAll(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.AccountID == accountID {
			row.IsRevoked = true
		}
	}
	return nil
}

func (m *memorySessions) revoked(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[sessionID].IsRevoked
}

// # Fixtures

func newAccount(id, email string) *auth.Account {
	return &auth.Account{
		ID:            id,
		Email:         email,
		Name:          "Amina",
		PasswordHash:  pointer.To("hash"),
		Role:          sec.RoleStudent,
		Locale:        locale.FR,
		EmailVerified: true,
		IsActive:      true,
		CreatedAt:     epoch,
		UpdatedAt:     epoch,
	}
}

type fixture struct {
	profiles *memoryProfiles
	sessions *memorySessions
	service  *account.Service
}

func newFixture(accounts ...*auth.Account) *fixture {
	f := &fixture{profiles: newMemoryProfiles(accounts...), sessions: newMemorySessions()}
	f.service = account.NewService(f.profiles, f.sessions, clock)
	return f
}

// stubVerifier accepts "<userID>:<sessionID>[:<role>]" bearer tokens.
// The role defaults to student.
type stubVerifier struct{}

func (stubVerifier) VerifyToken(token string) (*sec.AuthClaims, error) {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) < 2 {
		return nil, errors.New("malformed")
	}

	role := sec.RoleStudent
	if len(parts) == 3 {
		role = sec.UserRole(parts[2])
	}
	return &sec.AuthClaims{UserID: parts[0], Role: role, SessionID: parts[1]}, nil
}
