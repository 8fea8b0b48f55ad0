package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/service/suppression"
)

func newSuppressionMock(t *testing.T) (*SuppressionRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSuppressionRepo(db), mock
}

func TestUpsertBounceIncrementsAttempts(t *testing.T) {
	repo, mock := newSuppressionMock(t)
	now := time.Now().UTC()

	// The counter advances only for soft bounces, in both the insert and
	// the conflict branch.
	mock.ExpectQuery(`(?s)INSERT INTO bounce_records (.+)CASE WHEN EXCLUDED.bounce_type = 'soft' THEN 1 ELSE 0 END`).
		WithArgs("soft@example.com", string(domain.BounceSoft), "mailbox full", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"email", "bounce_type", "last_reason", "attempts", "last_seen_at"}).
			AddRow("soft@example.com", "soft", "mailbox full", 3, now))

	out, err := repo.UpsertBounce(context.Background(), &domain.BounceRecord{
		Email: "soft@example.com", Type: domain.BounceSoft, LastReason: "mailbox full", LastSeenAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, domain.BounceSoft, out.Type)
}

func TestUpsertBounceNonSoftKeepsAttempts(t *testing.T) {
	repo, mock := newSuppressionMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)INSERT INTO bounce_records (.+)attempts(.+)CASE WHEN EXCLUDED.bounce_type = 'soft'`).
		WithArgs("flaky@example.com", string(domain.BounceUnknown), "weird dsn", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"email", "bounce_type", "last_reason", "attempts", "last_seen_at"}).
			AddRow("flaky@example.com", "unknown", "weird dsn", 2, now))

	out, err := repo.UpsertBounce(context.Background(), &domain.BounceRecord{
		Email: "flaky@example.com", Type: domain.BounceUnknown, LastReason: "weird dsn", LastSeenAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts, "prior soft attempts survive a non-soft bounce untouched")
	assert.Equal(t, domain.BounceUnknown, out.Type)
}

func TestGetBounceNotFound(t *testing.T) {
	repo, mock := newSuppressionMock(t)

	mock.ExpectQuery("SELECT (.+) FROM bounce_records").
		WithArgs("clean@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"email"}))

	_, err := repo.GetBounce(context.Background(), "clean@example.com")
	assert.ErrorIs(t, err, suppression.ErrNotFound)
}

func TestClearBounceMissing(t *testing.T) {
	repo, mock := newSuppressionMock(t)

	mock.ExpectExec("DELETE FROM bounce_records").
		WithArgs("clean@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ClearBounce(context.Background(), "clean@example.com")
	assert.ErrorIs(t, err, suppression.ErrNotFound)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	repo, mock := newSuppressionMock(t)

	// ON CONFLICT DO NOTHING: zero rows affected is still success.
	mock.ExpectExec("INSERT INTO unsubscribes").
		WithArgs("gone@example.com", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Unsubscribe(context.Background(), &domain.Unsubscribe{Email: "gone@example.com"})
	assert.NoError(t, err)
}

func TestIsUnsubscribed(t *testing.T) {
	repo, mock := newSuppressionMock(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("gone@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	out, err := repo.IsUnsubscribed(context.Background(), "gone@example.com")
	require.NoError(t, err)
	assert.True(t, out)
}
