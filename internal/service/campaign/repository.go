package campaign

import (
	"context"
	"time"

	"github.com/contacttable/mailer/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Delete removes a campaign along with its recipients and batches.
	// Returns ErrConflict if the campaign is active or completed,
	// ErrNotFound if it doesn't exist.
	Delete(ctx context.Context, id string) error

	// UpdateStatus transitions a campaign from one of the given statuses
	// to the target status atomically. Returns ErrInvalidState if the
	// campaign exists but is not in any of the from statuses, ErrNotFound
	// otherwise.
	UpdateStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error

	// SetTotalRecipients records the resolved audience size after partitioning.
	SetTotalRecipients(ctx context.Context, id string, n int) error

	// RecomputeCounters refreshes the campaign's sent/failed/opened/click
	// counters by aggregating its recipient and link-click rows. Safe to
	// call repeatedly and concurrently.
	RecomputeCounters(ctx context.Context, id string) error

	// MarkCompleted sets status to completed and stamps completed_at.
	// Returns ErrInvalidState unless the campaign is active.
	MarkCompleted(ctx context.Context, id string, at time.Time) error
}

// BatchStore is the slice of batch persistence the campaign service needs:
// cancelling a campaign fails its not-yet-started batches.
type BatchStore interface {
	// FailPending marks all pending batches of the campaign failed and
	// returns how many were affected.
	FailPending(ctx context.Context, campaignID string) (int, error)
}

// Partitioner splits an activated campaign's audience into scheduled
// batches. The worker package provides the production implementation.
type Partitioner interface {
	// Partition resolves the campaign's audience, creates recipient rows
	// (deduplicated by email, each with a fresh unsubscribe token), and
	// groups them into batches with spaced scheduled times. Returns the
	// number of batches and recipients created.
	Partition(ctx context.Context, c *domain.Campaign, now time.Time) (batches, recipients int, err error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}
