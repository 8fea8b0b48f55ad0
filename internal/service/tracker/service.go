package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/contacttable/mailer/internal/domain"
)

// Service implements recipient lifecycle tracking.
type Service struct {
	repo Repository
}

// NewService creates a tracker service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single recipient.
func (s *Service) Get(ctx context.Context, id string) (*domain.Recipient, error) {
	return s.repo.Get(ctx, id)
}

// MarkSent records a successful delivery. No-op if the recipient already
// left the pending state.
func (s *Service) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := s.repo.MarkDelivery(ctx, id, domain.RecipientSent, "", at)
	return err
}

// MarkFailed records a failed delivery with the captured reason. No-op if
// the recipient already left the pending state.
func (s *Service) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	_, err := s.repo.MarkDelivery(ctx, id, domain.RecipientFailed, reason, at)
	return err
}

// MarkBounced records a bounce reported by the transport. No-op if the
// recipient already left the pending state.
func (s *Service) MarkBounced(ctx context.Context, id, reason string, at time.Time) error {
	_, err := s.repo.MarkDelivery(ctx, id, domain.RecipientBounced, reason, at)
	return err
}

// RecordOpen increments the recipient's open count. The opened flag and
// opened_at are set on the first open only; later pixel fetches bump the
// count without moving the timestamp.
func (s *Service) RecordOpen(ctx context.Context, recipientID string, at time.Time) error {
	return s.repo.RecordOpen(ctx, recipientID, at)
}

// ClickInput carries the decoded click-callback parameters.
type ClickInput struct {
	CampaignID  string
	RecipientID string
	URL         string
	LinkID      string
	UserAgent   string
}

// RecordClick appends a click event. Clicks are recorded even when the
// open pixel never fired (image-blocking clients), and repeat clicks are
// never deduplicated. An unknown recipient id still produces an event
// with a nil recipient reference.
func (s *Service) RecordClick(ctx context.Context, in ClickInput, at time.Time) error {
	click := &domain.LinkClick{
		ID:         uuid.New().String(),
		CampaignID: in.CampaignID,
		URL:        in.URL,
		LinkID:     in.LinkID,
		UserAgent:  in.UserAgent,
		ClickedAt:  at,
	}

	if in.RecipientID != "" {
		r, err := s.repo.Get(ctx, in.RecipientID)
		switch {
		case err == nil:
			click.RecipientID = &r.ID
			click.Email = r.Email
		case errors.Is(err, ErrNotFound):
			// keep the event, just unresolved
		default:
			return err
		}
	}

	return s.repo.InsertClick(ctx, click)
}

// ResolveByUnsubscribeToken looks up the recipient behind an unsubscribe
// link. Tokens never expire; unknown means ErrNotFound.
func (s *Service) ResolveByUnsubscribeToken(ctx context.Context, token string) (*domain.Recipient, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.repo.GetByToken(ctx, token)
}
