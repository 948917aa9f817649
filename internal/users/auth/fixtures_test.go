// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/lms/internal/platform/apperr"
	"github.com/taibuivan/lms/internal/platform/mailer"
	"github.com/taibuivan/lms/internal/platform/sec"
	"github.com/taibuivan/lms/internal/users/auth"
	"github.com/taibuivan/lms/pkg/pointer"
)

// # In-memory Accounts

// memoryAccounts mirrors the Postgres repository. Every method holds the
// mutex for its whole body, which gives ConsumeToken the same
// one-winner behaviour as the conditional UPDATE.
type memoryAccounts struct {
	mu   sync.Mutex
	rows map[string]*auth.Account

	// hideOnce makes the next FindByEmail for this address miss, simulating
	// a concurrent insert that lands between lookup and create.
	hideOnce string

	recordLoginErr error
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{rows: map[string]*auth.Account{}}
}

func clone(account *auth.Account) *auth.Account {
	copied := *account
	return &copied
}

func (m *memoryAccounts) Create(_ context.Context, account *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.Email == account.Email {
			return auth.ErrEmailTaken
		}
	}
	m.rows[account.ID] = clone(account)
	return nil
}

func (m *memoryAccounts) FindByID(_ context.Context, id string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	return clone(row), nil
}

func (m *memoryAccounts) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hideOnce == email {
		m.hideOnce = ""
		return nil, auth.ErrAccountNotFound
	}
	for _, row := range m.rows {
		if row.Email == email {
			return clone(row), nil
		}
	}
	return nil, auth.ErrAccountNotFound
}

func tokenFields(row *auth.Account, purpose auth.TokenPurpose) (**string, **time.Time) {
	if purpose == auth.PurposeVerification {
		return &row.VerificationToken, &row.VerificationExpiry
	}
	return &row.ResetToken, &row.ResetExpiry
}

func (m *memoryAccounts) liveRow(purpose auth.TokenPurpose, token string, now time.Time) *auth.Account {
	for _, row := range m.rows {
		value, expiry := tokenFields(row, purpose)
		if *value != nil && **value == token && *expiry != nil && (*expiry).After(now) {
			return row
		}
	}
	return nil
}

func (m *memoryAccounts) FindByToken(_ context.Context, purpose auth.TokenPurpose, token string, now time.Time) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.liveRow(purpose, token, now)
	if row == nil {
		return nil, auth.ErrInvalidToken
	}
	return clone(row), nil
}

func (m *memoryAccounts) SetToken(_ context.Context, accountID string, token auth.IssuedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[accountID]
	if !ok {
		return auth.ErrAccountNotFound
	}
	value, expiry := tokenFields(row, token.Purpose)
	*value = pointer.To(token.Value)
	*expiry = pointer.To(token.ExpiresAt)
	row.UpdatedAt = token.IssuedAt
	return nil
}

func (m *memoryAccounts) ConsumeToken(_ context.Context, consumption auth.TokenConsumption) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.liveRow(consumption.Purpose, consumption.Token, consumption.Now)
	if row == nil {
		return nil, auth.ErrInvalidToken
	}

	switch consumption.Purpose {
	case auth.PurposeVerification:
		row.EmailVerified = true
	case auth.PurposeReset:
		row.PasswordHash = pointer.To(consumption.PasswordHash)
	}

	value, expiry := tokenFields(row, consumption.Purpose)
	*value = nil
	*expiry = nil
	row.UpdatedAt = consumption.Now
	return clone(row), nil
}

func (m *memoryAccounts) UpdatePassword(_ context.Context, accountID, passwordHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[accountID]
	if !ok {
		return auth.ErrAccountNotFound
	}
	row.PasswordHash = pointer.To(passwordHash)
	row.ResetToken, row.ResetExpiry = nil, nil
	row.UpdatedAt = at
	return nil
}

func (m *memoryAccounts) RecordLogin(_ context.Context, accountID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recordLoginErr != nil {
		return m.recordLoginErr
	}
	if row, ok := m.rows[accountID]; ok {
		row.LastLoginAt = pointer.To(at)
		row.IsActive = true
	}
	return nil
}

func (m *memoryAccounts) UpdateProfile(_ context.Context, accountID string, update auth.ProfileUpdate, at time.Time) (*auth.Account, error) {
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
	return clone(row), nil
}

func (m *memoryAccounts) SetActive(_ context.Context, accountID string, active bool, at time.Time) error {
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

func (m *memoryAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// byEmail reads a row without going through the hideOnce hook.
func (m *memoryAccounts) byEmail(t *testing.T, email string) *auth.Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.Email == email {
			return clone(row)
		}
	}
	t.Fatalf("no account for %s", email)
	return nil
}

// # In-memory Sessions

type memorySessions struct {
	mu   sync.Mutex
	rows map[string]*auth.Session
}

func newMemorySessions() *memorySessions {
	return &memorySessions{rows: map[string]*auth.Session{}}
}

func (m *memorySessions) Create(_ context.Context, session *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *session
	m.rows[session.ID] = &copied
	return nil
}

func (m *memorySessions) FindByTokenHash(_ context.Context, tokenHash string, now time.Time) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.TokenHash == tokenHash && !row.IsRevoked && row.ExpiresAt.After(now) {
			copied := *row
			return &copied, nil
		}
	}
	return nil, auth.ErrSessionNotFound
}

func (m *memorySessions) Revoke(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[sessionID]
	if !ok || row.IsRevoked {
		return auth.ErrSessionNotFound
	}
	row.IsRevoked = true
	return nil
}

func (m *memorySessions) RevokeAll(_ context.Context, accountID string) error {
	return m.RevokeOthers(context.Background(), accountID, "")
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

func (m *memorySessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, row := range m.rows {
		if !row.ExpiresAt.After(now) {
			delete(m.rows, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memorySessions) live(accountID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, row := range m.rows {
		if row.AccountID == accountID && !row.IsRevoked {
			n++
		}
	}
	return n
}

// # Collaborator Fakes

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

func (c *fakeClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

type fakeTokens struct{}

func (fakeTokens) GenerateAccessToken(principal sec.Principal, _ time.Duration) (string, error) {
	return "access-" + principal.UserID, nil
}

type recordingMail struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (r *recordingMail) Enqueue(message mailer.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return true
}

func (r *recordingMail) all() []mailer.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mailer.Message(nil), r.messages...)
}

// lastToken extracts the token query value from the last queued email.
func (r *recordingMail) lastToken(t *testing.T) string {
	t.Helper()
	messages := r.all()
	require.NotEmpty(t, messages)

	text := messages[len(messages)-1].Text
	_, after, found := strings.Cut(text, "?token=")
	require.True(t, found)
	token, _, _ := strings.Cut(after, "\n")
	return token
}

type recordingEvents struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *recordingEvents) AuthEvent(event, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[event+"/"+outcome]++
}

func (r *recordingEvents) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

// countingHasher wraps the real bcrypt hasher and counts derivations.
type countingHasher struct {
	*sec.Hasher
	hashes atomic.Int64
}

func (h *countingHasher) Hash(context context.Context, plain string) (string, error) {
	h.hashes.Add(1)
	return h.Hasher.Hash(context, plain)
}

// # Harness

type harness struct {
	accounts *memoryAccounts
	sessions *memorySessions
	mail     *recordingMail
	events   *recordingEvents
	clock    *fakeClock
	hasher   *countingHasher
	service  *auth.Service
}

func newHarness() *harness {
	h := &harness{
		accounts: newMemoryAccounts(),
		sessions: newMemorySessions(),
		mail:     &recordingMail{},
		events:   &recordingEvents{},
		clock:    newFakeClock(),
		hasher:   &countingHasher{Hasher: sec.NewHasher(bcrypt.MinCost, 4)},
	}

	h.service = auth.NewService(auth.ServiceDependencies{
		Accounts:      h.accounts,
		Sessions:      h.sessions,
		Hasher:        h.hasher,
		Tokens:        fakeTokens{},
		Mailer:        h.mail,
		Events:        h.events,
		PublicBaseURL: "https://lms.test",
		Now:           h.clock.Now,
	})
	return h
}

func (h *harness) register(t *testing.T, name, email, password string) *auth.Account {
	t.Helper()
	account, err := h.service.Register(context.Background(), auth.RegisterInput{
		Name:     name,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return account
}

func (h *harness) login(email, password string) (*auth.LoginSession, error) {
	return h.service.Login(context.Background(), auth.LoginInput{Email: email, Password: password})
}

// appErr asserts err carries an AppError and returns it.
func appErr(t *testing.T, err error) *apperr.AppError {
	t.Helper()
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae, "expected *apperr.AppError, got %v", err)
	return ae
}

var errStorage = errors.New("storage unavailable")
