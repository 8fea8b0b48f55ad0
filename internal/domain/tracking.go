package domain

import "time"

// LinkClick is an append-only click event. Repeat clicks by the same
// recipient on the same link are all recorded; there is no uniqueness
// constraint. Email is denormalized so reports survive recipient deletion.
type LinkClick struct {
	ID          string    `json:"id" db:"id"`
	CampaignID  string    `json:"campaign_id" db:"campaign_id"`
	RecipientID *string   `json:"recipient_id" db:"recipient_id"`
	Email       string    `json:"email" db:"email"`
	URL         string    `json:"url" db:"url"`
	LinkID      string    `json:"link_id" db:"link_id"`
	UserAgent   string    `json:"user_agent" db:"user_agent"`
	ClickedAt   time.Time `json:"clicked_at" db:"clicked_at"`
}
