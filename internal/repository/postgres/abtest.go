package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/contacttable/mailer/internal/abtest"
	"github.com/contacttable/mailer/internal/domain"
)

// ABTestRepo implements abtest.Repository against PostgreSQL.
type ABTestRepo struct{ db *sql.DB }

// NewABTestRepo creates a Postgres-backed A/B test repository.
func NewABTestRepo(db *sql.DB) *ABTestRepo { return &ABTestRepo{db: db} }

func (r *ABTestRepo) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, abtest.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *ABTestRepo) Variants(ctx context.Context, testID string) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE parent_id = $1
		ORDER BY created_at ASC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *ABTestRepo) VariantMetrics(ctx context.Context, campaignID string) (sent, opened, clicks int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE opened),
			(SELECT COUNT(*) FROM link_clicks WHERE campaign_id = $1)
		FROM recipients
		WHERE campaign_id = $1
	`, campaignID).Scan(&sent, &opened, &clicks)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("variant metrics: %w", err)
	}
	return sent, opened, clicks, nil
}

func (r *ABTestRepo) UpsertResult(ctx context.Context, res *domain.ABTestResult) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ab_test_results (test_id, variant_id, metric, value, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (test_id, variant_id, metric) DO UPDATE SET
			value       = EXCLUDED.value,
			recorded_at = EXCLUDED.recorded_at
	`, res.TestID, res.VariantID, res.Metric, res.Value, res.RecordedAt)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func (r *ABTestRepo) SetWinner(ctx context.Context, testID, variantID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET winner_id = $1, updated_at = NOW()
		WHERE id = $2
	`, variantID, testID)
	if err != nil {
		return fmt.Errorf("set winner: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return abtest.ErrNotFound
	}
	return nil
}
