package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contacttable/mailer/internal/abtest"
	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/pkg/httputil"
	"github.com/contacttable/mailer/internal/service/campaign"
	"github.com/contacttable/mailer/internal/service/suppression"
)

// writeServiceError maps service-layer sentinel errors onto the HTTP
// error envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound), errors.Is(err, abtest.ErrNotFound),
		errors.Is(err, suppression.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, campaign.ErrValidation):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, campaign.ErrInvalidState), errors.Is(err, abtest.ErrInvalidState):
		httputil.Error(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, campaign.ErrConflict):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	c, err := s.campaigns.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := campaign.ListFilter{Status: q.Get("status")}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	items, total, err := s.campaigns.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []domain.Campaign{}
	}
	httputil.OK(w, map[string]any{"campaigns": items, "total": total})
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (s *Server) handleActivateCampaign(w http.ResponseWriter, r *http.Request) {
	res, err := s.campaigns.Activate(r.Context(), chi.URLParam(r, "id"), time.Now().UTC())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

func (s *Server) handleCancelCampaign(w http.ResponseWriter, r *http.Request) {
	stopped, err := s.campaigns.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"cancelled": true, "batches_stopped": stopped})
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCampaignStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.campaigns.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, stats)
}

type commitWinnerRequest struct {
	VariantID string `json:"variant_id"`
}

func (s *Server) handleCommitWinner(w http.ResponseWriter, r *http.Request) {
	var req commitWinnerRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.VariantID == "" {
		httputil.BadRequest(w, "variant_id is required")
		return
	}
	out, err := s.evaluator.CommitWinner(r.Context(), chi.URLParam(r, "id"), req.VariantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, out)
}

func (s *Server) handlePreviewWinner(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = domain.MetricOpenRate
	}
	id, value, err := s.evaluator.PickWinner(r.Context(), chi.URLParam(r, "id"), metric)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"variant_id": id, "metric": metric, "value": value})
}

type bounceRequest struct {
	Email  string `json:"email"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (s *Server) handleRecordBounce(w http.ResponseWriter, r *http.Request) {
	var req bounceRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.BadRequest(w, "email is required")
		return
	}
	rec, err := s.suppressor.RecordBounce(r.Context(), req.Email, domain.BounceType(req.Type), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, rec)
}

func (s *Server) handleClearBounce(w http.ResponseWriter, r *http.Request) {
	if err := s.suppressor.ClearBounce(r.Context(), chi.URLParam(r, "email")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type suppressionRequest struct {
	Email  string  `json:"email"`
	UserID *string `json:"user_id"`
}

func (s *Server) handleAddSuppression(w http.ResponseWriter, r *http.Request) {
	var req suppressionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.BadRequest(w, "email is required")
		return
	}
	if err := s.suppressor.Unsubscribe(r.Context(), req.Email, req.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, map[string]any{"suppressed": true})
}

// handleTick runs one scheduler tick. The external cron posts here with
// no body.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	res, err := s.ticker.Tick(r.Context(), time.Now().UTC())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}
