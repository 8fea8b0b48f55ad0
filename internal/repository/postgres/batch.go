package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contacttable/mailer/internal/domain"
)

// BatchRepo implements worker.BatchRepo and campaign.BatchStore against
// PostgreSQL.
type BatchRepo struct{ db *sql.DB }

// NewBatchRepo creates a Postgres-backed batch repository.
func NewBatchRepo(db *sql.DB) *BatchRepo { return &BatchRepo{db: db} }

const batchColumns = `id, campaign_id, scheduled_at, status, recipient_count, completed_at, created_at`

// ErrBatchNotFound is returned when a batch id does not exist.
var ErrBatchNotFound = errors.New("batch not found")

func (r *BatchRepo) Get(ctx context.Context, id string) (*domain.Batch, error) {
	b := &domain.Batch{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE id = $1
	`, id).Scan(&b.ID, &b.CampaignID, &b.ScheduledAt, &b.Status, &b.RecipientCount, &b.CompletedAt, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

func (r *BatchRepo) CreateBatches(ctx context.Context, batches []domain.Batch) error {
	if len(batches) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO batches (id, campaign_id, scheduled_at, status, recipient_count, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`)
	if err != nil {
		return fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for i := range batches {
		b := &batches[i]
		if b.ID == "" {
			b.ID = uuid.New().String()
		}
		if b.Status == "" {
			b.Status = domain.BatchPending
		}
		if _, err := stmt.ExecContext(ctx, b.ID, b.CampaignID, b.ScheduledAt, b.Status, b.RecipientCount); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
	}
	return tx.Commit()
}

func (r *BatchRepo) Due(ctx context.Context, now time.Time, limit int) ([]domain.Batch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC, created_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due batches: %w", err)
	}
	defer rows.Close()

	var out []domain.Batch
	for rows.Next() {
		var b domain.Batch
		if err := rows.Scan(&b.ID, &b.CampaignID, &b.ScheduledAt, &b.Status, &b.RecipientCount, &b.CompletedAt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BatchRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE batches SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("claim batch: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *BatchRepo) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE batches SET status = 'completed', completed_at = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'processing'
	`, at, id)
	if err != nil {
		return fmt.Errorf("complete batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete batch %s: not in processing", id)
	}
	return nil
}

func (r *BatchRepo) MarkFailed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE batches SET status = 'failed', completed_at = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('pending','processing')
	`, at, id)
	if err != nil {
		return fmt.Errorf("fail batch: %w", err)
	}
	return nil
}

func (r *BatchRepo) FailStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE batches SET status = 'failed', completed_at = NOW()
		WHERE status = 'processing' AND updated_at < $1
		RETURNING campaign_id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("fail stale batches: %w", err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	var campaigns []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale batch: %w", err)
		}
		if !seen[id] {
			seen[id] = true
			campaigns = append(campaigns, id)
		}
	}
	return campaigns, rows.Err()
}

func (r *BatchRepo) HasOpenBatches(ctx context.Context, campaignID string) (bool, error) {
	var open bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM batches
			WHERE campaign_id = $1 AND status IN ('pending','processing')
		)
	`, campaignID).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("open batches: %w", err)
	}
	return open, nil
}

// FailPending satisfies campaign.BatchStore: cancelling a campaign stops
// its not-yet-started batches.
func (r *BatchRepo) FailPending(ctx context.Context, campaignID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE batches SET status = 'failed', completed_at = NOW()
		WHERE campaign_id = $1 AND status = 'pending'
	`, campaignID)
	if err != nil {
		return 0, fmt.Errorf("fail pending batches: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
