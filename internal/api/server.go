// Package api exposes the admin HTTP surface: campaign lifecycle
// operations, the tick trigger, bounce intake, and stats.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/contacttable/mailer/internal/abtest"
	"github.com/contacttable/mailer/internal/auth"
	"github.com/contacttable/mailer/internal/config"
	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/service/campaign"
	"github.com/contacttable/mailer/internal/worker"
)

// CampaignService is the slice of the campaign service the API needs.
type CampaignService interface {
	Create(ctx context.Context, input campaign.CreateInput) (*domain.Campaign, error)
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Activate(ctx context.Context, id string, now time.Time) (*campaign.ActivateResult, error)
	Cancel(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, id string) (*domain.CampaignStats, error)
}

// WinnerCommitter is the slice of the A/B evaluator the API needs.
type WinnerCommitter interface {
	CommitWinner(ctx context.Context, testID, winnerVariantID string) (*abtest.Outcome, error)
	PickWinner(ctx context.Context, testID, metric string) (string, float64, error)
}

// SuppressionService is the slice of the suppression service the API needs.
type SuppressionService interface {
	RecordBounce(ctx context.Context, email string, t domain.BounceType, reason string) (*domain.BounceRecord, error)
	Unsubscribe(ctx context.Context, email string, userID *string) error
	ClearBounce(ctx context.Context, email string) error
}

// Ticker runs one scheduler tick.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (*worker.TickResult, error)
}

// Server is the admin API server.
type Server struct {
	cfg        config.ServerConfig
	campaigns  CampaignService
	evaluator  WinnerCommitter
	suppressor SuppressionService
	ticker     Ticker
	public     http.Handler // recipient-facing tracking routes
	httpServer *http.Server
}

// NewServer wires the admin API. public carries the recipient-facing
// tracking routes mounted without auth; may be nil.
func NewServer(cfg config.ServerConfig, campaigns CampaignService, evaluator WinnerCommitter,
	suppressor SuppressionService, ticker Ticker, public http.Handler) *Server {
	return &Server{
		cfg:        cfg,
		campaigns:  campaigns,
		evaluator:  evaluator,
		suppressor: suppressor,
		ticker:     ticker,
		public:     public,
	}
}

// Routes builds the full router.
func (s *Server) Routes(triggerSecret string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Role"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	// Recipient-facing endpoints stay unauthenticated.
	if s.public != nil {
		r.Mount("/", s.public)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireSecret(triggerSecret))

		r.Route("/campaigns", func(r chi.Router) {
			r.With(auth.RequireCapability(auth.CapViewStats)).Get("/", s.handleListCampaigns)
			r.With(auth.RequireCapability(auth.CapViewStats)).Get("/{id}", s.handleGetCampaign)
			r.With(auth.RequireCapability(auth.CapViewStats)).Get("/{id}/stats", s.handleCampaignStats)

			r.With(auth.RequireCapability(auth.CapManageCampaigns)).Post("/", s.handleCreateCampaign)
			r.With(auth.RequireCapability(auth.CapManageCampaigns)).Post("/{id}/activate", s.handleActivateCampaign)
			r.With(auth.RequireCapability(auth.CapManageCampaigns)).Post("/{id}/cancel", s.handleCancelCampaign)
			r.With(auth.RequireCapability(auth.CapManageCampaigns)).Delete("/{id}", s.handleDeleteCampaign)
		})

		r.Route("/tests/{id}", func(r chi.Router) {
			r.With(auth.RequireCapability(auth.CapCommitWinners)).Post("/winner", s.handleCommitWinner)
			r.With(auth.RequireCapability(auth.CapViewStats)).Get("/winner/preview", s.handlePreviewWinner)
		})

		r.With(auth.RequireCapability(auth.CapReportBounces)).Post("/bounces", s.handleRecordBounce)
		r.With(auth.RequireCapability(auth.CapReportBounces)).Delete("/bounces/{email}", s.handleClearBounce)
		r.With(auth.RequireCapability(auth.CapReportBounces)).Post("/suppressions", s.handleAddSuppression)

		r.With(auth.RequireCapability(auth.CapTriggerTick)).Post("/tick", s.handleTick)
	})

	return r
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr, triggerSecret string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Routes(triggerSecret),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
