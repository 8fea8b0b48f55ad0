package domain

import "time"

// BounceType classifies a delivery bounce.
type BounceType string

const (
	BounceHard      BounceType = "hard"
	BounceSoft      BounceType = "soft"
	BounceComplaint BounceType = "complaint"
	BounceUnknown   BounceType = "unknown"
)

// SoftBounceThreshold is the number of soft bounces after which an address
// is suppressed the same as a hard bounce.
const SoftBounceThreshold = 5

// BounceRecord tracks bounce history for one email address. A hard bounce,
// a complaint, or SoftBounceThreshold soft bounces suppress the address
// until the record is manually cleared.
type BounceRecord struct {
	Email      string     `json:"email" db:"email"`
	Type       BounceType `json:"type" db:"bounce_type"`
	LastReason string     `json:"last_reason" db:"last_reason"`
	Attempts   int        `json:"attempts" db:"attempts"`
	LastSeenAt time.Time  `json:"last_seen_at" db:"last_seen_at"`
}

// Suppresses reports whether this bounce history blocks further sends.
func (b *BounceRecord) Suppresses() bool {
	switch b.Type {
	case BounceHard, BounceComplaint:
		return true
	case BounceSoft:
		return b.Attempts >= SoftBounceThreshold
	}
	return false
}

// Unsubscribe is one entry in the unsubscribe list. Entries are permanent
// until manually cleared; there is no automated re-subscription flow.
type Unsubscribe struct {
	Email     string    `json:"email" db:"email"`
	UserID    *string   `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
