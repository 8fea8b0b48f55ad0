package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/service/tracker"
)

// RecipientRepo implements tracker.Repository and worker.RecipientRepo
// against PostgreSQL.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

const recipientColumns = `id, campaign_id, batch_id, user_id, email, COALESCE(first_name,''),
	       status, sent_at, opened, opened_at, open_count, unsubscribe_token,
	       COALESCE(error_detail,''), created_at`

func scanRecipient(row rowScanner) (*domain.Recipient, error) {
	rec := &domain.Recipient{}
	err := row.Scan(
		&rec.ID, &rec.CampaignID, &rec.BatchID, &rec.UserID, &rec.Email, &rec.FirstName,
		&rec.Status, &rec.SentAt, &rec.Opened, &rec.OpenedAt, &rec.OpenCount,
		&rec.UnsubscribeToken, &rec.ErrorDetail, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *RecipientRepo) Get(ctx context.Context, id string) (*domain.Recipient, error) {
	rec, err := scanRecipient(r.db.QueryRowContext(ctx, `
		SELECT `+recipientColumns+`
		FROM recipients
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, tracker.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	return rec, nil
}

func (r *RecipientRepo) GetByToken(ctx context.Context, token string) (*domain.Recipient, error) {
	rec, err := scanRecipient(r.db.QueryRowContext(ctx, `
		SELECT `+recipientColumns+`
		FROM recipients
		WHERE unsubscribe_token = $1
	`, token))
	if err == sql.ErrNoRows {
		return nil, tracker.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient by token: %w", err)
	}
	return rec, nil
}

func (r *RecipientRepo) MarkDelivery(ctx context.Context, id string, status domain.RecipientStatus, errorDetail string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recipients SET
			status       = $1,
			error_detail = $2,
			sent_at      = CASE WHEN $1 = 'sent' THEN $3 ELSE sent_at END
		WHERE id = $4 AND status = 'pending'
	`, status, errorDetail, at, id)
	if err != nil {
		return false, fmt.Errorf("mark delivery: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM recipients WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check recipient: %w", err)
	}
	if !exists {
		return false, tracker.ErrNotFound
	}
	return false, nil
}

func (r *RecipientRepo) RecordOpen(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recipients SET
			open_count = open_count + 1,
			opened     = TRUE,
			opened_at  = COALESCE(opened_at, $1)
		WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tracker.ErrNotFound
	}
	return nil
}

func (r *RecipientRepo) InsertClick(ctx context.Context, c *domain.LinkClick) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_clicks (id, campaign_id, recipient_id, email, url, link_id, user_agent, clicked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.CampaignID, c.RecipientID, c.Email, c.URL, c.LinkID, c.UserAgent, c.ClickedAt)
	if err != nil {
		return fmt.Errorf("insert click: %w", err)
	}
	return nil
}

func (r *RecipientRepo) CreateRecipients(ctx context.Context, recipients []domain.Recipient) error {
	if len(recipients) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recipients
			(id, campaign_id, batch_id, user_id, email, first_name, status, unsubscribe_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`)
	if err != nil {
		return fmt.Errorf("prepare recipient insert: %w", err)
	}
	defer stmt.Close()

	for i := range recipients {
		rec := &recipients[i]
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.Status == "" {
			rec.Status = domain.RecipientPending
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.CampaignID, rec.BatchID, rec.UserID,
			rec.Email, rec.FirstName, rec.Status, rec.UnsubscribeToken); err != nil {
			return fmt.Errorf("insert recipient %s: %w", rec.Email, err)
		}
	}
	return tx.Commit()
}

func (r *RecipientRepo) PendingInBatch(ctx context.Context, batchID string) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recipientColumns+`
		FROM recipients
		WHERE batch_id = $1 AND status = 'pending'
		ORDER BY created_at ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("pending recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
