package suppression

import (
	"context"

	"github.com/contacttable/mailer/internal/domain"
)

// Repository defines the data access contract for the suppression store.
type Repository interface {
	// IsUnsubscribed returns true if the email is on the unsubscribe list.
	IsUnsubscribed(ctx context.Context, email string) (bool, error)

	// Unsubscribe adds an email to the unsubscribe list. If it already
	// exists, the existing record is preserved (idempotent).
	Unsubscribe(ctx context.Context, u *domain.Unsubscribe) error

	// GetBounce returns the bounce record for an email, or ErrNotFound.
	GetBounce(ctx context.Context, email string) (*domain.BounceRecord, error)

	// UpsertBounce inserts or updates a bounce record. On conflict it
	// overwrites type and reason, increments attempts for soft bounces,
	// and refreshes last_seen_at. Returns the resulting record.
	UpsertBounce(ctx context.Context, b *domain.BounceRecord) (*domain.BounceRecord, error)

	// ClearBounce removes the bounce record for an email (manual reset).
	// Returns ErrNotFound if no record exists.
	ClearBounce(ctx context.Context, email string) error
}

// AccountStore is the user/profile store whose "email active" flag the
// suppression service flips when a bounce crosses the suppression
// threshold.
type AccountStore interface {
	SetEmailActive(ctx context.Context, email string, active bool) error
}
