package tracker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/service/tracker"
)

// memRepo is an in-memory recipient repository for unit testing.
type memRepo struct {
	mu         sync.Mutex
	recipients map[string]*domain.Recipient
	clicks     []domain.LinkClick
}

func newMemRepo() *memRepo {
	return &memRepo{recipients: make(map[string]*domain.Recipient)}
}

func (m *memRepo) add(r *domain.Recipient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients[r.ID] = r
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) GetByToken(_ context.Context, token string) (*domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recipients {
		if r.UnsubscribeToken == token {
			cp := *r
			return &cp, nil
		}
	}
	return nil, tracker.ErrNotFound
}

func (m *memRepo) MarkDelivery(_ context.Context, id string, status domain.RecipientStatus, errorDetail string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok {
		return false, tracker.ErrNotFound
	}
	if r.Status != domain.RecipientPending {
		return false, nil
	}
	r.Status = status
	r.ErrorDetail = errorDetail
	if status == domain.RecipientSent {
		r.SentAt = &at
	}
	return true, nil
}

func (m *memRepo) RecordOpen(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok {
		return tracker.ErrNotFound
	}
	r.OpenCount++
	if !r.Opened {
		r.Opened = true
		r.OpenedAt = &at
	}
	return nil
}

func (m *memRepo) InsertClick(_ context.Context, c *domain.LinkClick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicks = append(m.clicks, *c)
	return nil
}

func pendingRecipient(id string) *domain.Recipient {
	return &domain.Recipient{
		ID:               id,
		CampaignID:       "camp-1",
		Email:            id + "@example.com",
		Status:           domain.RecipientPending,
		UnsubscribeToken: "tok-" + id,
	}
}

func TestMarkSentIdempotent(t *testing.T) {
	repo := newMemRepo()
	repo.add(pendingRecipient("r1"))
	svc := tracker.NewService(repo)
	ctx := context.Background()

	sentAt := time.Now().UTC()
	require.NoError(t, svc.MarkSent(ctx, "r1", sentAt))

	r, _ := repo.Get(ctx, "r1")
	assert.Equal(t, domain.RecipientSent, r.Status)
	require.NotNil(t, r.SentAt)

	// A later failure report must not overwrite the terminal state.
	require.NoError(t, svc.MarkFailed(ctx, "r1", "late timeout", time.Now()))
	r, _ = repo.Get(ctx, "r1")
	assert.Equal(t, domain.RecipientSent, r.Status)
	assert.Empty(t, r.ErrorDetail)
}

func TestMarkFailedCapturesReason(t *testing.T) {
	repo := newMemRepo()
	repo.add(pendingRecipient("r1"))
	svc := tracker.NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.MarkFailed(ctx, "r1", "suppressed", time.Now()))

	r, _ := repo.Get(ctx, "r1")
	assert.Equal(t, domain.RecipientFailed, r.Status)
	assert.Equal(t, "suppressed", r.ErrorDetail)

	assert.ErrorIs(t, svc.MarkFailed(ctx, "missing", "x", time.Now()), tracker.ErrNotFound)
}

func TestRecordOpenFirstOpenOnly(t *testing.T) {
	repo := newMemRepo()
	repo.add(pendingRecipient("r1"))
	svc := tracker.NewService(repo)
	ctx := context.Background()

	first := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RecordOpen(ctx, "r1", first))

	r, _ := repo.Get(ctx, "r1")
	assert.True(t, r.Opened)
	assert.Equal(t, 1, r.OpenCount)
	require.NotNil(t, r.OpenedAt)
	assert.Equal(t, first, *r.OpenedAt)

	// Second open bumps the count but keeps the first timestamp.
	require.NoError(t, svc.RecordOpen(ctx, "r1", first.Add(time.Hour)))
	r, _ = repo.Get(ctx, "r1")
	assert.Equal(t, 2, r.OpenCount)
	assert.Equal(t, first, *r.OpenedAt)
}

func TestRecordClickAppendsAlways(t *testing.T) {
	repo := newMemRepo()
	repo.add(pendingRecipient("r1"))
	svc := tracker.NewService(repo)
	ctx := context.Background()

	in := tracker.ClickInput{
		CampaignID:  "camp-1",
		RecipientID: "r1",
		URL:         "https://example.com/offer",
		LinkID:      "l0",
		UserAgent:   "Mozilla/5.0",
	}
	require.NoError(t, svc.RecordClick(ctx, in, time.Now()))
	require.NoError(t, svc.RecordClick(ctx, in, time.Now()))

	require.Len(t, repo.clicks, 2, "repeat clicks are not deduplicated")
	assert.Equal(t, "r1@example.com", repo.clicks[0].Email)
	require.NotNil(t, repo.clicks[0].RecipientID)

	// A click can land before any open was recorded.
	r, _ := repo.Get(ctx, "r1")
	assert.False(t, r.Opened)
}

func TestRecordClickUnknownRecipient(t *testing.T) {
	repo := newMemRepo()
	svc := tracker.NewService(repo)

	in := tracker.ClickInput{
		CampaignID:  "camp-1",
		RecipientID: "ghost",
		URL:         "https://example.com",
		LinkID:      "l1",
	}
	require.NoError(t, svc.RecordClick(context.Background(), in, time.Now()))

	require.Len(t, repo.clicks, 1)
	assert.Nil(t, repo.clicks[0].RecipientID)
	assert.Empty(t, repo.clicks[0].Email)
}

func TestResolveByUnsubscribeToken(t *testing.T) {
	repo := newMemRepo()
	repo.add(pendingRecipient("r1"))
	svc := tracker.NewService(repo)
	ctx := context.Background()

	r, err := svc.ResolveByUnsubscribeToken(ctx, "tok-r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)

	_, err = svc.ResolveByUnsubscribeToken(ctx, "bogus")
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	_, err = svc.ResolveByUnsubscribeToken(ctx, "")
	assert.ErrorIs(t, err, tracker.ErrNotFound)
}
