package suppression_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/service/suppression"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu           sync.RWMutex
	unsubscribes map[string]*domain.Unsubscribe
	bounces      map[string]*domain.BounceRecord
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		unsubscribes: make(map[string]*domain.Unsubscribe),
		bounces:      make(map[string]*domain.BounceRecord),
	}
}

func (m *mockRepo) IsUnsubscribed(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.unsubscribes[email]
	return ok, nil
}

func (m *mockRepo) Unsubscribe(_ context.Context, u *domain.Unsubscribe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.unsubscribes[u.Email]; exists {
		return nil
	}
	m.unsubscribes[u.Email] = u
	return nil
}

func (m *mockRepo) GetBounce(_ context.Context, email string) (*domain.BounceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bounces[email]
	if !ok {
		return nil, suppression.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockRepo) UpsertBounce(_ context.Context, b *domain.BounceRecord) (*domain.BounceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.bounces[b.Email]
	if !ok {
		cp := *b
		cp.Attempts = 0
		if cp.Type == domain.BounceSoft {
			cp.Attempts = 1
		}
		m.bounces[b.Email] = &cp
		out := cp
		return &out, nil
	}
	existing.Type = b.Type
	existing.LastReason = b.LastReason
	existing.LastSeenAt = b.LastSeenAt
	if b.Type == domain.BounceSoft {
		existing.Attempts++
	}
	cp := *existing
	return &cp, nil
}

func (m *mockRepo) ClearBounce(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bounces[email]; !ok {
		return suppression.ErrNotFound
	}
	delete(m.bounces, email)
	return nil
}

// mockAccounts records SetEmailActive calls.
type mockAccounts struct {
	mu    sync.Mutex
	flags map[string]bool
}

func (m *mockAccounts) SetEmailActive(_ context.Context, email string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flags == nil {
		m.flags = make(map[string]bool)
	}
	m.flags[email] = active
	return nil
}

func (m *mockAccounts) active(email string) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.flags[email]
	return v, ok
}

func TestUnsubscribeSuppresses(t *testing.T) {
	svc := suppression.NewService(newMockRepo(), nil)
	ctx := context.Background()

	ok, err := svc.IsSuppressed(ctx, "user@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Unsubscribe(ctx, "User@Example.com ", nil))

	// Lookup normalizes the same way the write did.
	ok, err = svc.IsSuppressed(ctx, "user@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	// Idempotent.
	require.NoError(t, svc.Unsubscribe(ctx, "user@example.com", nil))
}

func TestUnsubscribeDeactivatesAccount(t *testing.T) {
	accounts := &mockAccounts{}
	svc := suppression.NewService(newMockRepo(), accounts)

	require.NoError(t, svc.Unsubscribe(context.Background(), "user@example.com", nil))

	active, set := accounts.active("user@example.com")
	require.True(t, set)
	assert.False(t, active)
}

func TestHardBounceSuppressesImmediately(t *testing.T) {
	accounts := &mockAccounts{}
	svc := suppression.NewService(newMockRepo(), accounts)
	ctx := context.Background()

	rec, err := svc.RecordBounce(ctx, "gone@example.com", domain.BounceHard, "550 no such user")
	require.NoError(t, err)
	assert.True(t, rec.Suppresses())

	ok, err := svc.IsSuppressed(ctx, "gone@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	active, set := accounts.active("gone@example.com")
	assert.True(t, set, "account flag should have been flipped")
	assert.False(t, active)
}

func TestSoftBounceThreshold(t *testing.T) {
	accounts := &mockAccounts{}
	svc := suppression.NewService(newMockRepo(), accounts)
	ctx := context.Background()
	email := "full@example.com"

	for i := 1; i < domain.SoftBounceThreshold; i++ {
		rec, err := svc.RecordBounce(ctx, email, domain.BounceSoft, "452 mailbox full")
		require.NoError(t, err)
		assert.Equal(t, i, rec.Attempts)

		ok, err := svc.IsSuppressed(ctx, email)
		require.NoError(t, err)
		assert.False(t, ok, "attempt %d should not suppress yet", i)
	}

	rec, err := svc.RecordBounce(ctx, email, domain.BounceSoft, "452 mailbox full")
	require.NoError(t, err)
	assert.Equal(t, domain.SoftBounceThreshold, rec.Attempts)

	ok, err := svc.IsSuppressed(ctx, email)
	require.NoError(t, err)
	assert.True(t, ok)

	active, set := accounts.active(email)
	assert.True(t, set)
	assert.False(t, active)
}

func TestOnlySoftBouncesCountTowardThreshold(t *testing.T) {
	svc := suppression.NewService(newMockRepo(), nil)
	ctx := context.Background()
	email := "flaky@example.com"

	// A run of unknown bounces must not advance the soft counter.
	for i := 0; i < domain.SoftBounceThreshold-1; i++ {
		rec, err := svc.RecordBounce(ctx, email, domain.BounceUnknown, "weird dsn")
		require.NoError(t, err)
		assert.Zero(t, rec.Attempts)
	}

	rec, err := svc.RecordBounce(ctx, email, domain.BounceSoft, "452 mailbox full")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)

	ok, err := svc.IsSuppressed(ctx, email)
	require.NoError(t, err)
	assert.False(t, ok, "a single soft bounce after unknown bounces must not suppress")
}

func TestComplaintSuppresses(t *testing.T) {
	svc := suppression.NewService(newMockRepo(), nil)
	ctx := context.Background()

	_, err := svc.RecordBounce(ctx, "angry@example.com", domain.BounceComplaint, "fbl report")
	require.NoError(t, err)

	ok, err := svc.IsSuppressed(ctx, "angry@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClearBounceReactivates(t *testing.T) {
	accounts := &mockAccounts{}
	svc := suppression.NewService(newMockRepo(), accounts)
	ctx := context.Background()

	_, err := svc.RecordBounce(ctx, "gone@example.com", domain.BounceHard, "550")
	require.NoError(t, err)

	require.NoError(t, svc.ClearBounce(ctx, "gone@example.com"))

	ok, err := svc.IsSuppressed(ctx, "gone@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	active, _ := accounts.active("gone@example.com")
	assert.True(t, active)

	assert.ErrorIs(t, svc.ClearBounce(ctx, "never@example.com"), suppression.ErrNotFound)
}

func TestRecordBounceUnknownType(t *testing.T) {
	svc := suppression.NewService(newMockRepo(), nil)
	ctx := context.Background()

	rec, err := svc.RecordBounce(ctx, "odd@example.com", "", "weird dsn")
	require.NoError(t, err)
	assert.Equal(t, domain.BounceUnknown, rec.Type)

	ok, err := svc.IsSuppressed(ctx, "odd@example.com")
	require.NoError(t, err)
	assert.False(t, ok, "unknown bounces do not suppress")
}
