package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/service/campaign"
)

func newMock(t *testing.T) (*CampaignRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCampaignRepo(db), mock
}

func campaignRows(id string, status domain.CampaignStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "subject", "html_content", "schedule_type", "scheduled_at",
		"recurrence", "audience", "template_id", "parent_id", "winner_id",
		"status", "created_by", "total_recipients", "sent_count",
		"failed_count", "opened_count", "click_count", "completed_at", "created_at", "updated_at",
	}).AddRow(id, "Subject", "<p>Hi</p>", "immediate", nil,
		"", "all", nil, nil, nil,
		status, "ops", 100, 90, 10, 40, 12, nil, now, now)
}

func TestCampaignGet(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM campaigns").
		WithArgs("camp-1").
		WillReturnRows(campaignRows("camp-1", domain.CampaignActive))

	c, err := repo.Get(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, "camp-1", c.ID)
	assert.Equal(t, domain.CampaignActive, c.Status)
	assert.Equal(t, 90, c.SentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignGetNotFound(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM campaigns").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestCampaignUpdateStatusCAS(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec("UPDATE campaigns SET status").
		WithArgs(string(domain.CampaignActive), "camp-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "camp-1",
		[]domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignActive)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignUpdateStatusWrongState(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec("UPDATE campaigns SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.UpdateStatus(context.Background(), "camp-1",
		[]domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignActive)
	assert.ErrorIs(t, err, campaign.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignUpdateStatusMissing(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec("UPDATE campaigns SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.UpdateStatus(context.Background(), "ghost",
		[]domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignActive)
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestCampaignDeleteActiveConflict(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec("DELETE FROM campaigns").
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.Delete(context.Background(), "camp-1")
	assert.ErrorIs(t, err, campaign.ErrConflict)
}

func TestCampaignRecomputeCounters(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec("UPDATE campaigns c SET").
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.RecomputeCounters(context.Background(), "camp-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignMarkCompletedOnlyActive(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec("UPDATE campaigns SET status = 'completed'").
		WithArgs(sqlmock.AnyArg(), "camp-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.MarkCompleted(context.Background(), "camp-1", time.Now().UTC())
	assert.ErrorIs(t, err, campaign.ErrInvalidState)
}
