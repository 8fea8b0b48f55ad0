package worker

import (
	"context"
	"time"

	"github.com/contacttable/mailer/internal/domain"
)

// Target is one resolved audience member.
type Target struct {
	UserID    *string
	Email     string
	FirstName string
}

// AudienceSource resolves a campaign's audience descriptor ("all", a
// tag, a segment name) into concrete targets.
type AudienceSource interface {
	Resolve(ctx context.Context, audience string) ([]Target, error)
}

// BatchRepo is the batch persistence contract.
type BatchRepo interface {
	// Get returns a batch or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Batch, error)

	// CreateBatches inserts batch rows.
	CreateBatches(ctx context.Context, batches []domain.Batch) error

	// Due returns pending batches with scheduled_at <= now, oldest first,
	// capped at limit. Combined with serial processing under the tick
	// lock this keeps batches of one campaign in scheduled-time order;
	// batches of different campaigns interleave freely.
	Due(ctx context.Context, now time.Time, limit int) ([]domain.Batch, error)

	// MarkProcessing flips pending -> processing. The update is
	// conditional on the current status; claimed reports whether this
	// caller won the transition.
	MarkProcessing(ctx context.Context, id string) (claimed bool, err error)

	// MarkCompleted flips processing -> completed and stamps completed_at.
	MarkCompleted(ctx context.Context, id string, at time.Time) error

	// MarkFailed moves the batch to failed and stamps completed_at.
	MarkFailed(ctx context.Context, id string, at time.Time) error

	// FailStale fails batches stuck in processing since before the
	// cutoff and returns the distinct campaign ids affected.
	FailStale(ctx context.Context, cutoff time.Time) ([]string, error)

	// HasOpenBatches reports whether the campaign still has batches in a
	// non-terminal status.
	HasOpenBatches(ctx context.Context, campaignID string) (bool, error)
}

// RecipientRepo is the recipient persistence the scheduler needs.
type RecipientRepo interface {
	// CreateRecipients bulk-inserts recipient rows.
	CreateRecipients(ctx context.Context, recipients []domain.Recipient) error

	// PendingInBatch returns the batch's recipients still in pending.
	PendingInBatch(ctx context.Context, batchID string) ([]domain.Recipient, error)
}

// CampaignSource is the slice of the campaign service the scheduler
// needs. *campaign.Service satisfies it.
type CampaignSource interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	Complete(ctx context.Context, id string, at time.Time) error
	UpdateStats(ctx context.Context, id string) error
}

// DeliveryTracker is the slice of the tracker service the scheduler
// needs. *tracker.Service satisfies it.
type DeliveryTracker interface {
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error
}

// SuppressionChecker gates every send attempt.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

// ContentRenderer renders campaign HTML with recipient bindings.
// *content.Renderer satisfies it.
type ContentRenderer interface {
	RenderForRecipient(source string, rec *domain.Recipient) (string, error)
}

// TrackingWrapper rewrites rendered HTML for per-recipient tracking.
// *tracking.Codec satisfies it.
type TrackingWrapper interface {
	WrapForTracking(html, campaignID, recipientID, unsubscribeToken string) string
	UnsubscribeURL(token string) string
}
