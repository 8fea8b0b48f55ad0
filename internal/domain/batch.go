package domain

import "time"

// BatchStatus enumerates the lifecycle of a dispatch batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Batch is a time-sliced subset of a campaign's recipients, the unit of
// dispatch work. Batches for one campaign are processed in ascending
// scheduled-time order; at most one processing attempt may be in flight
// per batch (enforced by a conditional status update in the store).
type Batch struct {
	ID             string      `json:"id" db:"id"`
	CampaignID     string      `json:"campaign_id" db:"campaign_id"`
	ScheduledAt    time.Time   `json:"scheduled_at" db:"scheduled_at"`
	Status         BatchStatus `json:"status" db:"status"`
	RecipientCount int         `json:"recipient_count" db:"recipient_count"`
	CompletedAt    *time.Time  `json:"completed_at" db:"completed_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// IsTerminal returns true once the batch has finished, successfully or not.
func (b *Batch) IsTerminal() bool {
	return b.Status == BatchCompleted || b.Status == BatchFailed
}
