package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// ScheduleType enumerates how a campaign's sends are triggered.
type ScheduleType string

const (
	ScheduleImmediate ScheduleType = "immediate"
	ScheduleScheduled ScheduleType = "scheduled"
	ScheduleRecurring ScheduleType = "recurring"
)

// Campaign represents a single email-marketing send definition: subject,
// content, targeting, and schedule. A campaign with a non-nil ParentID is
// an A/B variant of that parent; it inherits the parent's audience scope
// but carries its own content and its own recipient records.
type Campaign struct {
	ID           string         `json:"id" db:"id"`
	Subject      string         `json:"subject" db:"subject"`
	HTMLContent  string         `json:"html_content" db:"html_content"`
	ScheduleType ScheduleType   `json:"schedule_type" db:"schedule_type"`
	ScheduledAt  *time.Time     `json:"scheduled_at" db:"scheduled_at"`
	Recurrence   string         `json:"recurrence" db:"recurrence"`
	Audience     string         `json:"audience" db:"audience"`
	TemplateID   *string        `json:"template_id" db:"template_id"`
	ParentID     *string        `json:"parent_id" db:"parent_id"`
	WinnerID     *string        `json:"winner_id" db:"winner_id"`
	Status       CampaignStatus `json:"status" db:"status"`
	CreatedBy    string         `json:"created_by" db:"created_by"`

	// Counters (updated by stats aggregation)
	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	SentCount       int `json:"sent_count" db:"sent_count"`
	FailedCount     int `json:"failed_count" db:"failed_count"`
	OpenedCount     int `json:"opened_count" db:"opened_count"`
	ClickCount      int `json:"click_count" db:"click_count"`

	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsVariant reports whether this campaign is an A/B variant of another.
func (c *Campaign) IsVariant() bool { return c.ParentID != nil && *c.ParentID != "" }

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignCancelled
}

// ValidateSchedule checks the schedule-type-specific required fields.
// A scheduled campaign needs a scheduled time, a recurring campaign needs
// a recurrence rule. Returns a human-readable reason or "".
func (c *Campaign) ValidateSchedule() string {
	switch c.ScheduleType {
	case ScheduleImmediate:
		return ""
	case ScheduleScheduled:
		if c.ScheduledAt == nil {
			return "scheduled campaign requires scheduled_at"
		}
	case ScheduleRecurring:
		if c.Recurrence == "" {
			return "recurring campaign requires a recurrence rule"
		}
	default:
		return "unknown schedule_type: " + string(c.ScheduleType)
	}
	return ""
}

// CampaignStats provides computed campaign statistics. Rates are
// percentages in [0, 100].
type CampaignStats struct {
	TotalRecipients int     `json:"total_recipients"`
	SentCount       int     `json:"sent_count"`
	FailedCount     int     `json:"failed_count"`
	OpenedCount     int     `json:"opened_count"`
	ClickCount      int     `json:"click_count"`
	DeliveryRate    float64 `json:"delivery_rate"`
	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
}

// CalculateStats derives rates from the campaign's counters.
// Open rate is opens over sends, click rate is clicks over opens,
// delivery rate is sends over total recipients.
func (c *Campaign) CalculateStats() CampaignStats {
	stats := CampaignStats{
		TotalRecipients: c.TotalRecipients,
		SentCount:       c.SentCount,
		FailedCount:     c.FailedCount,
		OpenedCount:     c.OpenedCount,
		ClickCount:      c.ClickCount,
	}
	if c.TotalRecipients > 0 {
		stats.DeliveryRate = float64(c.SentCount) / float64(c.TotalRecipients) * 100
	}
	if c.SentCount > 0 {
		stats.OpenRate = float64(c.OpenedCount) / float64(c.SentCount) * 100
	}
	if c.OpenedCount > 0 {
		stats.ClickRate = float64(c.ClickCount) / float64(c.OpenedCount) * 100
	}
	return stats
}
