// Package postgres implements the service repository contracts against
// PostgreSQL via database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/service/campaign"
)

const campaignColumns = `id, subject, html_content, schedule_type, scheduled_at,
	       COALESCE(recurrence,''), audience, template_id, parent_id, winner_id,
	       status, COALESCE(created_by,''), total_recipients, sent_count,
	       failed_count, opened_count, click_count, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.Subject, &c.HTMLContent, &c.ScheduleType, &c.ScheduledAt,
		&c.Recurrence, &c.Audience, &c.TemplateID, &c.ParentID, &c.WinnerID,
		&c.Status, &c.CreatedBy, &c.TotalRecipients, &c.SentCount,
		&c.FailedCount, &c.OpenedCount, &c.ClickCount, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	countQ := `SELECT COUNT(*) FROM campaigns`
	args := []any{}
	if f.Status != "" {
		countQ += ` WHERE status = $1`
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM campaigns`
	qArgs := []any{}
	idx := 1
	if f.Status != "" {
		q += fmt.Sprintf(" WHERE status = $%d", idx)
		qArgs = append(qArgs, f.Status)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	qArgs = append(qArgs, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, qArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, subject, html_content, schedule_type, scheduled_at, recurrence,
			 audience, template_id, parent_id, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`, c.ID, c.Subject, c.HTMLContent, c.ScheduleType, c.ScheduledAt, c.Recurrence,
		c.Audience, c.TemplateID, c.ParentID, c.Status, c.CreatedBy)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	// Recipients, batches, and clicks go with it via ON DELETE CASCADE.
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaigns
		WHERE id = $1 AND status IN ('draft','cancelled')
	`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOr(ctx, id, campaign.ErrConflict)
	}
	return nil
}

func (r *CampaignRepo) UpdateStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`, to, id, pq.Array(statuses))
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOr(ctx, id, campaign.ErrInvalidState)
	}
	return nil
}

func (r *CampaignRepo) SetTotalRecipients(ctx context.Context, id string, n int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET total_recipients = $1, updated_at = NOW()
		WHERE id = $2
	`, n, id)
	if err != nil {
		return fmt.Errorf("set total recipients: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) RecomputeCounters(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns c SET
			sent_count   = agg.sent,
			failed_count = agg.failed,
			opened_count = agg.opened,
			click_count  = (SELECT COUNT(*) FROM link_clicks WHERE campaign_id = $1),
			updated_at   = NOW()
		FROM (
			SELECT COUNT(*) FILTER (WHERE status = 'sent')                 AS sent,
			       COUNT(*) FILTER (WHERE status IN ('failed','bounced'))  AS failed,
			       COUNT(*) FILTER (WHERE opened)                          AS opened
			FROM recipients WHERE campaign_id = $1
		) agg
		WHERE c.id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("recompute counters: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = 'completed', completed_at = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'active'
	`, at, id)
	if err != nil {
		return fmt.Errorf("complete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOr(ctx, id, campaign.ErrInvalidState)
	}
	return nil
}

// missingOr distinguishes a zero-row conditional update: ErrNotFound when
// the campaign does not exist, otherwise the given state error.
func (r *CampaignRepo) missingOr(ctx context.Context, id string, stateErr error) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return stateErr
}
