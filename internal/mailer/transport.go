// Package mailer defines the outbound mail transport contract and the
// HTTP provider implementation.
package mailer

import (
	"context"
	"fmt"
	"time"
)

// Message is one outbound email.
type Message struct {
	To        string            `json:"to"`
	ToName    string            `json:"to_name,omitempty"`
	FromEmail string            `json:"from_email"`
	FromName  string            `json:"from_name,omitempty"`
	Subject   string            `json:"subject"`
	HTML      string            `json:"html"`
	Headers   map[string]string `json:"headers,omitempty"`

	// Correlation ids for provider-side reporting.
	CampaignID  string `json:"campaign_id,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
}

// SendResult reports a successful hand-off to the provider.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Transport delivers messages through an external mail provider.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(ctx context.Context, msg *Message) (*SendResult, error)
}

// SendError is a per-message delivery failure. Permanent failures
// (rejected address, malformed message) should not be retried;
// temporary ones (rate limit, provider outage) may be.
type SendError struct {
	Reason    string
	Permanent bool
}

func (e *SendError) Error() string {
	kind := "temporary"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("send failed (%s): %s", kind, e.Reason)
}
