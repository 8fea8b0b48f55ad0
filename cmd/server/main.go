package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/contacttable/mailer/internal/abtest"
	"github.com/contacttable/mailer/internal/api"
	"github.com/contacttable/mailer/internal/config"
	"github.com/contacttable/mailer/internal/content"
	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/mailer"
	"github.com/contacttable/mailer/internal/pkg/distlock"
	"github.com/contacttable/mailer/internal/repository/postgres"
	"github.com/contacttable/mailer/internal/service/campaign"
	"github.com/contacttable/mailer/internal/service/suppression"
	"github.com/contacttable/mailer/internal/service/tracker"
	"github.com/contacttable/mailer/internal/tracking"
	"github.com/contacttable/mailer/internal/worker"
)

// partitionerHook breaks the construction cycle between the campaign
// service (which needs a Partitioner to activate) and the scheduler
// (which needs the campaign service to update stats and complete).
type partitionerHook struct{ s *worker.Scheduler }

func (h *partitionerHook) Partition(ctx context.Context, c *domain.Campaign, now time.Time) (int, int, error) {
	return h.s.Partition(ctx, c, now)
}

func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.Ping(); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	log.Println("[main] Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("[main] Redis unreachable (%v), falling back to advisory locks", err)
			redisClient = nil
		}
		cancel()
	}

	campaignRepo := postgres.NewCampaignRepo(db)
	batchRepo := postgres.NewBatchRepo(db)
	recipientRepo := postgres.NewRecipientRepo(db)
	suppressionRepo := postgres.NewSuppressionRepo(db)
	abtestRepo := postgres.NewABTestRepo(db)
	audienceRepo := postgres.NewAudienceRepo(db)

	suppressionSvc := suppression.NewService(suppressionRepo, audienceRepo)
	trackerSvc := tracker.NewService(recipientRepo)
	evaluator := abtest.NewEvaluator(abtestRepo)

	codec := tracking.NewCodec(cfg.Tracking.BaseURL, cfg.Tracking.SigningKey)
	renderer := content.NewRenderer()
	transport := mailer.NewHTTPTransport(cfg.Transport.BaseURL, cfg.Transport.APIKey,
		cfg.Transport.FromEmail, cfg.Transport.FromName, cfg.TransportTimeout())

	hook := &partitionerHook{}
	campaignSvc := campaign.NewService(campaignRepo, batchRepo, hook)

	tickLock := distlock.NewLock(redisClient, db, "scheduler:tick", 2*time.Minute)
	scheduler := worker.NewScheduler(worker.Config{
		BatchSize:         cfg.Scheduler.BatchSize,
		Spacing:           cfg.BatchSpacing(),
		MaxBatchesPerTick: cfg.Scheduler.MaxBatchesPerTick,
		SendConcurrency:   cfg.Scheduler.SendConcurrency,
		Staleness:         cfg.StalenessWindow(),
		FromEmail:         cfg.Transport.FromEmail,
		FromName:          cfg.Transport.FromName,
	}, batchRepo, recipientRepo, audienceRepo, campaignSvc, trackerSvc, suppressionSvc,
		renderer, codec, transport, tickLock)
	hook.s = scheduler

	trackingHandler := tracking.NewHandler(codec, trackerSvc, suppressionSvc)

	server := api.NewServer(cfg.Server, campaignSvc, evaluator, suppressionSvc, scheduler,
		trackingHandler.Routes())

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		log.Printf("[main] Listening on %s", addr)
		if err := server.ListenAndServe(addr, cfg.Auth.TriggerSecret); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("[main] Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[main] Shutdown error: %v", err)
	}
}
