package suppression

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/pkg/logger"
)

// Service implements suppression business logic. It is safe for concurrent
// use. All methods take typed inputs and return typed outputs.
type Service struct {
	repo     Repository
	accounts AccountStore
}

// NewService creates a suppression service. The account store may be nil
// if no user profile store is attached; bounce suppression then only
// affects the send gate.
func NewService(repo Repository, accounts AccountStore) *Service {
	return &Service{repo: repo, accounts: accounts}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsSuppressed checks whether an email address should be blocked from
// sending: unsubscribed, hard bounced, complained, or soft bounced past
// the threshold.
func (s *Service) IsSuppressed(ctx context.Context, email string) (bool, error) {
	email = normalize(email)
	unsubscribed, err := s.repo.IsUnsubscribed(ctx, email)
	if err != nil {
		return false, err
	}
	if unsubscribed {
		return true, nil
	}

	b, err := s.repo.GetBounce(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return b.Suppresses(), nil
}

// RecordBounce upserts the bounce record for an email, incrementing the
// attempt counter on soft bounces. Once the record crosses the
// suppression threshold the associated account's email-active flag is
// flipped off.
func (s *Service) RecordBounce(ctx context.Context, email string, t domain.BounceType, reason string) (*domain.BounceRecord, error) {
	email = normalize(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if t == "" {
		t = domain.BounceUnknown
	}

	// The repository owns the attempt counter: it advances only on soft
	// bounces, so hard and unknown bounces never count toward the
	// soft-bounce threshold.
	rec, err := s.repo.UpsertBounce(ctx, &domain.BounceRecord{
		Email:      email,
		Type:       t,
		LastReason: reason,
		LastSeenAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if rec.Suppresses() {
		logger.Info("address suppressed",
			"email", email, "type", string(rec.Type), "attempts", rec.Attempts)
	}
	if rec.Suppresses() && s.accounts != nil {
		if err := s.accounts.SetEmailActive(ctx, email, false); err != nil {
			// The bounce record itself is the suppression source of truth;
			// a failed flag flip only affects the profile view.
			log.Printf("[suppression.Service] deactivate %s failed: %v", email, err)
		}
	}
	return rec, nil
}

// Unsubscribe adds an email to the unsubscribe list. Idempotent: repeat
// calls preserve the original entry. Suppression is permanent until the
// entry is manually cleared.
func (s *Service) Unsubscribe(ctx context.Context, email string, userID *string) error {
	email = normalize(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if err := s.repo.Unsubscribe(ctx, &domain.Unsubscribe{
		Email:     email,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	if s.accounts != nil {
		// Also drop the address out of future audience resolution.
		if err := s.accounts.SetEmailActive(ctx, email, false); err != nil {
			log.Printf("[suppression.Service] deactivate %s failed: %v", email, err)
		}
	}
	return nil
}

// ClearBounce manually resets bounce history for an email and restores
// the account's email-active flag.
func (s *Service) ClearBounce(ctx context.Context, email string) error {
	email = normalize(email)
	if err := s.repo.ClearBounce(ctx, email); err != nil {
		return err
	}
	if s.accounts != nil {
		if err := s.accounts.SetEmailActive(ctx, email, true); err != nil {
			log.Printf("[suppression.Service] reactivate %s failed: %v", email, err)
		}
	}
	return nil
}
