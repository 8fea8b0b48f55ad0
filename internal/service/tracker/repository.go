package tracker

import (
	"context"
	"time"

	"github.com/contacttable/mailer/internal/domain"
)

// Repository defines the data access contract for recipients and click
// events. Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single recipient. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Recipient, error)

	// GetByToken looks a recipient up by its unsubscribe token.
	// Returns ErrNotFound on unknown token.
	GetByToken(ctx context.Context, token string) (*domain.Recipient, error)

	// MarkDelivery moves a pending recipient to the given terminal status.
	// The update is conditional on status = pending; updated reports
	// whether a row changed. Returns ErrNotFound if the recipient does
	// not exist at all.
	MarkDelivery(ctx context.Context, id string, status domain.RecipientStatus, errorDetail string, at time.Time) (updated bool, err error)

	// RecordOpen increments the open counter and sets opened/opened_at on
	// first open only. Returns ErrNotFound if the recipient doesn't exist.
	RecordOpen(ctx context.Context, id string, at time.Time) error

	// InsertClick appends a click event. Never deduplicates.
	InsertClick(ctx context.Context, c *domain.LinkClick) error
}
