package domain

import "time"

// RecipientStatus enumerates the delivery lifecycle of one recipient
// within one campaign.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
	RecipientBounced RecipientStatus = "bounced"
)

// Recipient is one target address's delivery and engagement record for one
// campaign. Delivery-status fields are owned by batch processing;
// open/click fields are owned exclusively by tracking callbacks.
type Recipient struct {
	ID               string          `json:"id" db:"id"`
	CampaignID       string          `json:"campaign_id" db:"campaign_id"`
	BatchID          *string         `json:"batch_id" db:"batch_id"`
	UserID           *string         `json:"user_id" db:"user_id"`
	Email            string          `json:"email" db:"email"`
	FirstName        string          `json:"first_name" db:"first_name"`
	Status           RecipientStatus `json:"status" db:"status"`
	SentAt           *time.Time      `json:"sent_at" db:"sent_at"`
	Opened           bool            `json:"opened" db:"opened"`
	OpenedAt         *time.Time      `json:"opened_at" db:"opened_at"`
	OpenCount        int             `json:"open_count" db:"open_count"`
	UnsubscribeToken string          `json:"-" db:"unsubscribe_token"`
	ErrorDetail      string          `json:"error_detail,omitempty" db:"error_detail"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// IsTerminal returns true once the recipient has left the pending state.
func (r *Recipient) IsTerminal() bool { return r.Status != RecipientPending }
