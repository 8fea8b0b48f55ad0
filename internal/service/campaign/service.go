package campaign

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/contacttable/mailer/internal/domain"
)

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo    Repository
	batches BatchStore
	parts   Partitioner
}

// NewService creates a campaign service. The partitioner may be nil in
// contexts that never activate campaigns (the tracking server, tests of
// read paths); Activate returns an error if it is missing.
func NewService(repo Repository, batches BatchStore, parts Partitioner) *Service {
	return &Service{repo: repo, batches: batches, parts: parts}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Subject      string              `json:"subject"`
	HTMLContent  string              `json:"html_content"`
	ScheduleType domain.ScheduleType `json:"schedule_type"`
	ScheduledAt  *time.Time          `json:"scheduled_at"`
	Recurrence   string              `json:"recurrence"`
	Audience     string              `json:"audience"`
	TemplateID   string              `json:"template_id"`
	ParentID     string              `json:"parent_id"`
	CreatedBy    string              `json:"created_by"`
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if input.HTMLContent == "" && input.TemplateID == "" {
		return nil, fmt.Errorf("%w: html_content or template_id is required", ErrValidation)
	}
	if input.Audience == "" && input.ParentID == "" {
		return nil, fmt.Errorf("%w: audience is required", ErrValidation)
	}

	now := time.Now().UTC()
	c := &domain.Campaign{
		ID:           uuid.New().String(),
		Subject:      input.Subject,
		HTMLContent:  input.HTMLContent,
		ScheduleType: input.ScheduleType,
		ScheduledAt:  input.ScheduledAt,
		Recurrence:   input.Recurrence,
		Audience:     input.Audience,
		Status:       domain.CampaignDraft,
		CreatedBy:    input.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if c.ScheduleType == "" {
		c.ScheduleType = domain.ScheduleImmediate
	}
	if input.TemplateID != "" {
		c.TemplateID = &input.TemplateID
	}
	if input.ParentID != "" {
		// Variants must point at an existing parent.
		parent, err := s.repo.Get(ctx, input.ParentID)
		if err != nil {
			return nil, fmt.Errorf("%w: parent campaign %s", ErrValidation, input.ParentID)
		}
		// Variants target the parent's audience so their results stay
		// comparable; a divergent audience is rejected.
		if input.Audience != "" && input.Audience != parent.Audience {
			return nil, fmt.Errorf("%w: variant audience must match parent audience %q",
				ErrValidation, parent.Audience)
		}
		c.Audience = parent.Audience
		c.ParentID = &input.ParentID
	}
	if reason := c.ValidateSchedule(); reason != "" {
		return nil, fmt.Errorf("%w: %s", ErrValidation, reason)
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ActivateResult reports what activation produced.
type ActivateResult struct {
	Batches    int `json:"batches"`
	Recipients int `json:"recipients"`
}

// Activate transitions a draft campaign to active and partitions its
// audience into scheduled batches. Activating a campaign in any other
// status returns ErrInvalidState; re-activating an active campaign never
// duplicates batches.
func (s *Service) Activate(ctx context.Context, id string, now time.Time) (*ActivateResult, error) {
	if s.parts == nil {
		return nil, fmt.Errorf("activate campaign %s: no partitioner configured", id)
	}

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if reason := c.ValidateSchedule(); reason != "" {
		return nil, fmt.Errorf("%w: %s", ErrValidation, reason)
	}
	if c.ScheduleType == domain.ScheduleScheduled && !c.ScheduledAt.After(now) {
		return nil, fmt.Errorf("%w: scheduled_at must be in the future", ErrValidation)
	}

	// Status CAS is the activation gate: concurrent activations race on
	// this update and exactly one wins.
	if err := s.repo.UpdateStatus(ctx, id, []domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignActive); err != nil {
		return nil, err
	}

	batches, recipients, err := s.parts.Partition(ctx, c, now)
	if err != nil {
		// Roll back so the campaign can be fixed and re-activated.
		if rbErr := s.repo.UpdateStatus(ctx, id, []domain.CampaignStatus{domain.CampaignActive}, domain.CampaignDraft); rbErr != nil {
			log.Printf("[campaign.Service] rollback of %s failed: %v", id, rbErr)
		}
		return nil, fmt.Errorf("partition campaign %s: %w", id, err)
	}
	if err := s.repo.SetTotalRecipients(ctx, id, recipients); err != nil {
		return nil, err
	}

	log.Printf("[campaign.Service] Campaign %s activated: %d recipients in %d batches", id, recipients, batches)
	return &ActivateResult{Batches: batches, Recipients: recipients}, nil
}

// UpdateStats refreshes the campaign's counters from its recipient and
// link-click rows. Read-only aggregation over those rows, so it is safe
// to call repeatedly and concurrently.
func (s *Service) UpdateStats(ctx context.Context, id string) error {
	return s.repo.RecomputeCounters(ctx, id)
}

// Complete marks an active campaign completed. The worker calls this once
// all of a campaign's batches are in a terminal status.
func (s *Service) Complete(ctx context.Context, id string, at time.Time) error {
	return s.repo.MarkCompleted(ctx, id, at)
}

// Cancel moves a draft or active campaign to cancelled and fails any
// batches that have not started. Batches already processing run to
// completion; their recipients keep whatever status they reached.
func (s *Service) Cancel(ctx context.Context, id string) (int, error) {
	err := s.repo.UpdateStatus(ctx, id,
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignActive},
		domain.CampaignCancelled)
	if err != nil {
		return 0, err
	}
	n, err := s.batches.FailPending(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("fail pending batches of %s: %w", id, err)
	}
	log.Printf("[campaign.Service] Campaign %s cancelled, %d pending batches stopped", id, n)
	return n, nil
}

// Delete removes a campaign (only draft/cancelled).
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Stats recomputes and returns the campaign's statistics.
func (s *Service) Stats(ctx context.Context, id string) (*domain.CampaignStats, error) {
	if err := s.repo.RecomputeCounters(ctx, id); err != nil {
		return nil, err
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stats := c.CalculateStats()
	return &stats, nil
}
