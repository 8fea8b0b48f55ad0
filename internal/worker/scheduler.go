package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/mailer"
	"github.com/contacttable/mailer/internal/pkg/distlock"
	"github.com/contacttable/mailer/internal/pkg/logger"
	"github.com/contacttable/mailer/internal/service/campaign"
)

// Partition strategies.
const (
	StrategySpread = "spread" // batches spaced Spacing apart
	StrategyFixed  = "fixed"  // all batches share the base time
)

// ErrBatchBusy is returned when a batch is already claimed by another
// processing attempt or has finished.
var ErrBatchBusy = errors.New("batch already processing or finished")

// Config holds the scheduler's partitioning and dispatch settings.
type Config struct {
	BatchSize         int
	Spacing           time.Duration
	Strategy          string
	MaxBatchesPerTick int
	SendConcurrency   int
	Staleness         time.Duration
	FromEmail         string
	FromName          string
}

// Scheduler partitions campaigns into batches and dispatches due batches
// per tick.
type Scheduler struct {
	cfg         Config
	batches     BatchRepo
	recipients  RecipientRepo
	audience    AudienceSource
	campaigns   CampaignSource
	tracker     DeliveryTracker
	suppression SuppressionChecker
	renderer    ContentRenderer
	wrapper     TrackingWrapper
	transport   mailer.Transport
	tickLock    distlock.DistLock
}

// NewScheduler wires a scheduler. tickLock serializes overlapping tick
// invocations across processes; pass nil to run unguarded (tests).
func NewScheduler(cfg Config, batches BatchRepo, recipients RecipientRepo, audience AudienceSource,
	campaigns CampaignSource, tracker DeliveryTracker, suppression SuppressionChecker,
	renderer ContentRenderer, wrapper TrackingWrapper, transport mailer.Transport,
	tickLock distlock.DistLock) *Scheduler {

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Spacing <= 0 {
		cfg.Spacing = 5 * time.Minute
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategySpread
	}
	if cfg.MaxBatchesPerTick <= 0 {
		cfg.MaxBatchesPerTick = 5
	}
	if cfg.SendConcurrency <= 0 {
		cfg.SendConcurrency = 4
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = 30 * time.Minute
	}

	return &Scheduler{
		cfg:         cfg,
		batches:     batches,
		recipients:  recipients,
		audience:    audience,
		campaigns:   campaigns,
		tracker:     tracker,
		suppression: suppression,
		renderer:    renderer,
		wrapper:     wrapper,
		transport:   transport,
		tickLock:    tickLock,
	}
}

// newToken mints an opaque unsubscribe token.
func newToken() string {
	return strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}

// Partition resolves the campaign's audience into recipient rows,
// deduplicated by email, and carves them into batches with ascending
// scheduled times. Satisfies campaign.Partitioner.
func (s *Scheduler) Partition(ctx context.Context, c *domain.Campaign, now time.Time) (int, int, error) {
	targets, err := s.audience.Resolve(ctx, c.Audience)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve audience %q: %w", c.Audience, err)
	}

	seen := make(map[string]bool, len(targets))
	recipients := make([]domain.Recipient, 0, len(targets))
	for _, t := range targets {
		email := strings.ToLower(strings.TrimSpace(t.Email))
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		recipients = append(recipients, domain.Recipient{
			ID:               uuid.New().String(),
			CampaignID:       c.ID,
			UserID:           t.UserID,
			Email:            email,
			FirstName:        t.FirstName,
			Status:           domain.RecipientPending,
			UnsubscribeToken: newToken(),
			CreatedAt:        now,
		})
	}
	if len(recipients) == 0 {
		return 0, 0, fmt.Errorf("audience %q resolved to no recipients", c.Audience)
	}

	base := now
	if c.ScheduleType == domain.ScheduleScheduled && c.ScheduledAt != nil {
		base = *c.ScheduledAt
	}

	var batches []domain.Batch
	for start := 0; start < len(recipients); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(recipients) {
			end = len(recipients)
		}

		scheduledAt := base
		if s.cfg.Strategy == StrategySpread {
			scheduledAt = base.Add(time.Duration(len(batches)) * s.cfg.Spacing)
		}
		b := domain.Batch{
			ID:             uuid.New().String(),
			CampaignID:     c.ID,
			ScheduledAt:    scheduledAt,
			Status:         domain.BatchPending,
			RecipientCount: end - start,
			CreatedAt:      now,
		}
		for i := start; i < end; i++ {
			id := b.ID
			recipients[i].BatchID = &id
		}
		batches = append(batches, b)
	}

	if err := s.batches.CreateBatches(ctx, batches); err != nil {
		return 0, 0, fmt.Errorf("create batches: %w", err)
	}
	if err := s.recipients.CreateRecipients(ctx, recipients); err != nil {
		return 0, 0, fmt.Errorf("create recipients: %w", err)
	}

	log.Printf("[Scheduler] Campaign %s partitioned: %d recipients into %d batches (%s)",
		c.ID, len(recipients), len(batches), s.cfg.Strategy)
	return len(batches), len(recipients), nil
}

// TickResult summarizes one tick invocation.
type TickResult struct {
	Skipped     bool `json:"skipped"`
	StaleFailed int  `json:"stale_failed"`
	Batches     int  `json:"batches"`
	Sent        int  `json:"sent"`
	Failed      int  `json:"failed"`
	Suppressed  int  `json:"suppressed"`
}

// Tick selects due batches and processes them. Called by the external
// time trigger; a tick that finds the lock held reports Skipped and does
// nothing.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (*TickResult, error) {
	if s.tickLock != nil {
		acquired, err := s.tickLock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire tick lock: %w", err)
		}
		if !acquired {
			return &TickResult{Skipped: true}, nil
		}
		defer func() {
			if err := s.tickLock.Release(ctx); err != nil {
				log.Printf("[Scheduler] tick lock release: %v", err)
			}
		}()
	}

	result := &TickResult{}

	// A batch stuck in processing past the staleness window has lost its
	// worker; fail it so the campaign can still settle.
	staleCampaigns, err := s.batches.FailStale(ctx, now.Add(-s.cfg.Staleness))
	if err != nil {
		return nil, fmt.Errorf("reconcile stale batches: %w", err)
	}
	result.StaleFailed = len(staleCampaigns)
	for _, cid := range staleCampaigns {
		s.maybeComplete(ctx, cid, now)
	}

	due, err := s.batches.Due(ctx, now, s.cfg.MaxBatchesPerTick)
	if err != nil {
		return nil, fmt.Errorf("load due batches: %w", err)
	}

	for _, b := range due {
		br, err := s.ProcessBatch(ctx, b.ID)
		if errors.Is(err, ErrBatchBusy) {
			continue
		}
		if err != nil {
			log.Printf("[Scheduler] batch %s failed: %v", b.ID, err)
			continue
		}
		result.Batches++
		result.Sent += br.Sent
		result.Failed += br.Failed
		result.Suppressed += br.Suppressed
	}

	if result.Batches > 0 || result.StaleFailed > 0 {
		log.Printf("[Scheduler] tick: %d batches, %d sent, %d failed (%d suppressed), %d stale",
			result.Batches, result.Sent, result.Failed, result.Suppressed, result.StaleFailed)
	}
	return result, nil
}

// BatchResult summarizes one processed batch.
type BatchResult struct {
	BatchID    string `json:"batch_id"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Suppressed int    `json:"suppressed"`
}

// ProcessBatch claims a pending batch and delivers to its recipients
// with bounded concurrency. Per-recipient failures are recorded and
// never abort the rest of the batch; the batch completes even when some
// recipients failed. A batch-level failure marks the batch failed
// without touching recipients already marked sent.
func (s *Scheduler) ProcessBatch(ctx context.Context, batchID string) (*BatchResult, error) {
	claimed, err := s.batches.MarkProcessing(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("claim batch %s: %w", batchID, err)
	}
	if !claimed {
		return nil, ErrBatchBusy
	}

	b, err := s.batches.Get(ctx, batchID)
	if err != nil {
		s.failBatch(ctx, batchID)
		return nil, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	c, err := s.campaigns.Get(ctx, b.CampaignID)
	if err != nil {
		s.failBatch(ctx, batchID)
		return nil, fmt.Errorf("load campaign %s: %w", b.CampaignID, err)
	}
	if c.Status != domain.CampaignActive {
		// Cancelled while this batch waited its turn.
		s.failBatch(ctx, batchID)
		return nil, fmt.Errorf("campaign %s is %s, not active", c.ID, c.Status)
	}

	recipients, err := s.recipients.PendingInBatch(ctx, batchID)
	if err != nil {
		s.failBatch(ctx, batchID)
		return nil, fmt.Errorf("load recipients of %s: %w", batchID, err)
	}

	var sent, failed, suppressed int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.SendConcurrency)

	for i := range recipients {
		rec := recipients[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			switch s.deliver(ctx, c, &rec) {
			case deliverSent:
				atomic.AddInt64(&sent, 1)
			case deliverSuppressed:
				atomic.AddInt64(&suppressed, 1)
				atomic.AddInt64(&failed, 1)
			default:
				atomic.AddInt64(&failed, 1)
			}
		}()
	}
	wg.Wait()

	now := time.Now().UTC()
	if err := s.batches.MarkCompleted(ctx, batchID, now); err != nil {
		return nil, fmt.Errorf("complete batch %s: %w", batchID, err)
	}
	if err := s.campaigns.UpdateStats(ctx, c.ID); err != nil {
		log.Printf("[Scheduler] refresh stats of %s: %v", c.ID, err)
	}
	s.maybeComplete(ctx, c.ID, now)

	return &BatchResult{
		BatchID:    batchID,
		Sent:       int(sent),
		Failed:     int(failed),
		Suppressed: int(suppressed),
	}, nil
}

type deliverOutcome int

const (
	deliverSent deliverOutcome = iota
	deliverFailed
	deliverSuppressed
)

// deliver sends to one recipient, recording the outcome on the
// recipient row. Always returns; errors are captured, not propagated.
func (s *Scheduler) deliver(ctx context.Context, c *domain.Campaign, rec *domain.Recipient) deliverOutcome {
	now := time.Now().UTC()

	blocked, err := s.suppression.IsSuppressed(ctx, rec.Email)
	if err != nil {
		s.markFailed(ctx, rec.ID, "suppression check: "+err.Error())
		return deliverFailed
	}
	if blocked {
		s.markFailed(ctx, rec.ID, "suppressed")
		return deliverSuppressed
	}

	html, err := s.renderer.RenderForRecipient(c.HTMLContent, rec)
	if err != nil {
		s.markFailed(ctx, rec.ID, "render: "+err.Error())
		return deliverFailed
	}
	html = s.wrapper.WrapForTracking(html, c.ID, rec.ID, rec.UnsubscribeToken)

	msg := &mailer.Message{
		To:          rec.Email,
		ToName:      rec.FirstName,
		FromEmail:   s.cfg.FromEmail,
		FromName:    s.cfg.FromName,
		Subject:     c.Subject,
		HTML:        html,
		CampaignID:  c.ID,
		RecipientID: rec.ID,
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + s.wrapper.UnsubscribeURL(rec.UnsubscribeToken) + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
	}
	if _, err := s.transport.Send(ctx, msg); err != nil {
		logger.Warn("send failed",
			"campaign", c.ID, "recipient", rec.ID, "email", rec.Email, "reason", err.Error())
		s.markFailed(ctx, rec.ID, err.Error())
		return deliverFailed
	}

	if err := s.tracker.MarkSent(ctx, rec.ID, now); err != nil {
		log.Printf("[Scheduler] mark sent %s: %v", rec.ID, err)
	}
	return deliverSent
}

func (s *Scheduler) markFailed(ctx context.Context, recipientID, reason string) {
	if err := s.tracker.MarkFailed(ctx, recipientID, reason, time.Now().UTC()); err != nil {
		log.Printf("[Scheduler] mark failed %s: %v", recipientID, err)
	}
}

func (s *Scheduler) failBatch(ctx context.Context, batchID string) {
	if err := s.batches.MarkFailed(ctx, batchID, time.Now().UTC()); err != nil {
		log.Printf("[Scheduler] mark batch %s failed: %v", batchID, err)
	}
}

// maybeComplete completes the campaign once every batch is terminal.
func (s *Scheduler) maybeComplete(ctx context.Context, campaignID string, now time.Time) {
	open, err := s.batches.HasOpenBatches(ctx, campaignID)
	if err != nil {
		log.Printf("[Scheduler] open-batch check for %s: %v", campaignID, err)
		return
	}
	if open {
		return
	}
	err = s.campaigns.Complete(ctx, campaignID, now)
	if err != nil && !errors.Is(err, campaign.ErrInvalidState) {
		log.Printf("[Scheduler] complete campaign %s: %v", campaignID, err)
	}
}
