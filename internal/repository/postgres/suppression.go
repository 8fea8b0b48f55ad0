package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsUnsubscribed(ctx context.Context, email string) (bool, error) {
	var out bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM unsubscribes WHERE email = $1)`, email).Scan(&out)
	if err != nil {
		return false, fmt.Errorf("check unsubscribe: %w", err)
	}
	return out, nil
}

func (r *SuppressionRepo) Unsubscribe(ctx context.Context, u *domain.Unsubscribe) error {
	at := u.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO unsubscribes (email, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
	`, u.Email, u.UserID, at)
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) GetBounce(ctx context.Context, email string) (*domain.BounceRecord, error) {
	b := &domain.BounceRecord{}
	err := r.db.QueryRowContext(ctx, `
		SELECT email, bounce_type, COALESCE(last_reason,''), attempts, last_seen_at
		FROM bounce_records
		WHERE email = $1
	`, email).Scan(&b.Email, &b.Type, &b.LastReason, &b.Attempts, &b.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, suppression.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bounce: %w", err)
	}
	return b, nil
}

// UpsertBounce records a bounce for an email. The attempts column counts
// soft bounces only; other bounce types refresh the record without
// advancing the counter.
func (r *SuppressionRepo) UpsertBounce(ctx context.Context, b *domain.BounceRecord) (*domain.BounceRecord, error) {
	out := &domain.BounceRecord{}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO bounce_records (email, bounce_type, last_reason, attempts, last_seen_at)
		VALUES ($1, $2, $3, CASE WHEN $2 = 'soft' THEN 1 ELSE 0 END, $4)
		ON CONFLICT (email) DO UPDATE SET
			bounce_type  = EXCLUDED.bounce_type,
			last_reason  = EXCLUDED.last_reason,
			attempts     = bounce_records.attempts + CASE WHEN EXCLUDED.bounce_type = 'soft' THEN 1 ELSE 0 END,
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING email, bounce_type, COALESCE(last_reason,''), attempts, last_seen_at
	`, b.Email, b.Type, b.LastReason, b.LastSeenAt).Scan(
		&out.Email, &out.Type, &out.LastReason, &out.Attempts, &out.LastSeenAt)
	if err != nil {
		return nil, fmt.Errorf("upsert bounce: %w", err)
	}
	return out, nil
}

func (r *SuppressionRepo) ClearBounce(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bounce_records WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("clear bounce: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}
