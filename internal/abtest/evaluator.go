// Package abtest evaluates A/B test campaigns and commits winners.
//
// A test is a parent campaign with one or more variant campaigns whose
// parent_id points at it. Once the parent has completed, a winner is
// committed: the variant's open and click rates are computed from its
// recipient and click rows and persisted, and the parent records the
// winning variant id.
package abtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/contacttable/mailer/internal/domain"
)

// Sentinel errors for the evaluator.
var (
	ErrNotFound     = errors.New("test or variant not found")
	ErrInvalidState = errors.New("test campaign is not completed")
)

// Repository defines the data access the evaluator needs.
type Repository interface {
	// GetCampaign returns a campaign or ErrNotFound.
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)

	// Variants returns the variant campaigns of a test.
	Variants(ctx context.Context, testID string) ([]domain.Campaign, error)

	// VariantMetrics aggregates a variant's recipient and click rows.
	VariantMetrics(ctx context.Context, campaignID string) (sent, opened, clicks int, err error)

	// UpsertResult writes one metric row, overwriting a previous commit
	// for the same (test, variant, metric).
	UpsertResult(ctx context.Context, r *domain.ABTestResult) error

	// SetWinner records the winning variant on the parent campaign.
	SetWinner(ctx context.Context, testID, variantID string) error
}

// Evaluator implements winner selection and commit.
type Evaluator struct {
	repo Repository
}

// NewEvaluator creates an evaluator backed by the given repository.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo}
}

// Outcome reports the metrics persisted for the committed winner.
type Outcome struct {
	TestID    string  `json:"test_id"`
	WinnerID  string  `json:"winner_id"`
	OpenRate  float64 `json:"open_rate"`
	ClickRate float64 `json:"click_rate"`
}

// CommitWinner persists winner_variant_id as the winner of testID.
// The parent campaign must be completed and the variant must belong to
// the test. Committing twice overwrites the previous result rows.
func (e *Evaluator) CommitWinner(ctx context.Context, testID, winnerVariantID string) (*Outcome, error) {
	parent, err := e.repo.GetCampaign(ctx, testID)
	if err != nil {
		return nil, err
	}
	if parent.Status != domain.CampaignCompleted {
		return nil, fmt.Errorf("%w: status %s", ErrInvalidState, parent.Status)
	}

	variant, err := e.repo.GetCampaign(ctx, winnerVariantID)
	if err != nil {
		return nil, err
	}
	if !variant.IsVariant() || *variant.ParentID != testID {
		return nil, fmt.Errorf("%w: %s is not a variant of %s", ErrNotFound, winnerVariantID, testID)
	}

	sent, opened, clicks, err := e.repo.VariantMetrics(ctx, winnerVariantID)
	if err != nil {
		return nil, fmt.Errorf("variant metrics for %s: %w", winnerVariantID, err)
	}

	var openRate, clickRate float64
	if sent > 0 {
		openRate = float64(opened) / float64(sent) * 100
	}
	if opened > 0 {
		clickRate = float64(clicks) / float64(opened) * 100
	}

	now := time.Now().UTC()
	results := []domain.ABTestResult{
		{TestID: testID, VariantID: winnerVariantID, Metric: domain.MetricOpenRate, Value: openRate, RecordedAt: now},
		{TestID: testID, VariantID: winnerVariantID, Metric: domain.MetricClickRate, Value: clickRate, RecordedAt: now},
	}
	for i := range results {
		if err := e.repo.UpsertResult(ctx, &results[i]); err != nil {
			return nil, fmt.Errorf("persist %s result: %w", results[i].Metric, err)
		}
	}

	if err := e.repo.SetWinner(ctx, testID, winnerVariantID); err != nil {
		return nil, err
	}

	log.Printf("[abtest.Evaluator] Test %s winner %s: open=%.2f%% click=%.2f%%",
		testID, winnerVariantID, openRate, clickRate)
	return &Outcome{
		TestID:    testID,
		WinnerID:  winnerVariantID,
		OpenRate:  openRate,
		ClickRate: clickRate,
	}, nil
}

// PickWinner chooses the best-performing variant of a completed test by
// the given metric without committing it. Useful for previewing before
// commit.
func (e *Evaluator) PickWinner(ctx context.Context, testID, metric string) (string, float64, error) {
	parent, err := e.repo.GetCampaign(ctx, testID)
	if err != nil {
		return "", 0, err
	}
	if parent.Status != domain.CampaignCompleted {
		return "", 0, fmt.Errorf("%w: status %s", ErrInvalidState, parent.Status)
	}

	variants, err := e.repo.Variants(ctx, testID)
	if err != nil {
		return "", 0, err
	}
	if len(variants) == 0 {
		return "", 0, fmt.Errorf("%w: test %s has no variants", ErrNotFound, testID)
	}

	var bestID string
	var bestValue float64
	for _, v := range variants {
		sent, opened, clicks, err := e.repo.VariantMetrics(ctx, v.ID)
		if err != nil {
			return "", 0, err
		}
		var value float64
		switch metric {
		case domain.MetricClickRate:
			if opened > 0 {
				value = float64(clicks) / float64(opened) * 100
			}
		default:
			if sent > 0 {
				value = float64(opened) / float64(sent) * 100
			}
		}
		if bestID == "" || value > bestValue {
			bestID, bestValue = v.ID, value
		}
	}
	return bestID, bestValue, nil
}
