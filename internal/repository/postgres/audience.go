package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/contacttable/mailer/internal/worker"
)

// AudienceRepo resolves campaign audiences from the users table and
// carries the email_active flag suppression flips. It implements
// worker.AudienceSource and suppression.AccountStore.
type AudienceRepo struct{ db *sql.DB }

// NewAudienceRepo creates a Postgres-backed audience source.
func NewAudienceRepo(db *sql.DB) *AudienceRepo { return &AudienceRepo{db: db} }

// Resolve returns the targets matching the audience descriptor: "all"
// selects every active user, anything else is treated as a tag. Users
// whose email has been deactivated by suppression are excluded here;
// the per-send suppression check still runs on top.
func (r *AudienceRepo) Resolve(ctx context.Context, audience string) ([]worker.Target, error) {
	q := `
		SELECT id, email, COALESCE(first_name,'')
		FROM users
		WHERE email_active = TRUE`
	args := []any{}
	if audience != "" && audience != "all" {
		q += ` AND $1 = ANY(tags)`
		args = append(args, audience)
	}
	q += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve audience %q: %w", audience, err)
	}
	defer rows.Close()

	var out []worker.Target
	for rows.Next() {
		var t worker.Target
		var userID string
		if err := rows.Scan(&userID, &t.Email, &t.FirstName); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.UserID = &userID
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetEmailActive flips the user's email_active flag. Unknown emails are
// a no-op: bounces can arrive for addresses with no user record.
func (r *AudienceRepo) SetEmailActive(ctx context.Context, email string, active bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET email_active = $1, updated_at = NOW()
		WHERE LOWER(email) = LOWER($2)
	`, active, email)
	if err != nil {
		return fmt.Errorf("set email active: %w", err)
	}
	return nil
}
