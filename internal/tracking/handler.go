package tracking

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/pkg/httputil"
	"github.com/contacttable/mailer/internal/service/tracker"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// EventRecorder is the slice of the tracker service the callback
// endpoints need.
type EventRecorder interface {
	RecordOpen(ctx context.Context, recipientID string, at time.Time) error
	RecordClick(ctx context.Context, in tracker.ClickInput, at time.Time) error
	ResolveByUnsubscribeToken(ctx context.Context, token string) (*domain.Recipient, error)
}

// Unsubscriber adds an address to the suppression store's unsubscribe
// list.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, email string, userID *string) error
}

// Handler serves the recipient-facing tracking endpoints. These degrade
// silently: a failure to record an event must never break the pixel or
// the redirect in the recipient's mail client.
type Handler struct {
	codec       *Codec
	events      EventRecorder
	unsubscribe Unsubscriber
}

// NewHandler creates a tracking handler.
func NewHandler(codec *Codec, events EventRecorder, unsub Unsubscriber) *Handler {
	return &Handler{codec: codec, events: events, unsubscribe: unsub}
}

// Routes returns the public tracking router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/tracking/open", h.HandleOpen)
	r.Get("/tracking/link", h.HandleClick)
	r.Get("/unsubscribe", h.HandleUnsubscribe)
	return r
}

// HandleOpen records an open and always serves the pixel, whatever went
// wrong.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	evt, err := h.codec.DecodeOpen(r.URL.Query())
	if err != nil {
		log.Printf("[tracking] open decode rejected: %v", err)
		h.servePixel(w)
		return
	}
	if IsBot(r.UserAgent()) {
		h.servePixel(w)
		return
	}

	if err := h.events.RecordOpen(r.Context(), evt.RecipientID, time.Now().UTC()); err != nil {
		log.Printf("[tracking] OPEN record failed campaign=%s recipient=%s: %v",
			evt.CampaignID, evt.RecipientID, err)
	}
	h.servePixel(w)
}

// HandleClick records a click and redirects to the destination. On any
// internal error it still redirects, falling back to the raw url query
// parameter.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	evt, err := h.codec.DecodeClick(r.URL.Query())
	if err != nil {
		log.Printf("[tracking] click decode rejected: %v", err)
		if raw := r.URL.Query().Get("url"); raw != "" {
			http.Redirect(w, r, raw, http.StatusFound)
			return
		}
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}

	in := tracker.ClickInput{
		CampaignID:  evt.CampaignID,
		RecipientID: evt.RecipientID,
		URL:         evt.URL,
		LinkID:      evt.LinkID,
		UserAgent:   r.UserAgent(),
	}
	if err := h.events.RecordClick(r.Context(), in, time.Now().UTC()); err != nil {
		log.Printf("[tracking] CLICK record failed campaign=%s recipient=%s url=%s: %v",
			evt.CampaignID, evt.RecipientID, evt.URL, err)
	}
	http.Redirect(w, r, evt.URL, http.StatusFound)
}

type unsubscribeResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

// HandleUnsubscribe resolves the token and adds the recipient's email to
// the unsubscribe list. Unlike the pixel and redirect this is a direct
// user action, so failure is reported explicitly.
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	rec, err := h.events.ResolveByUnsubscribeToken(r.Context(), token)
	if err != nil {
		httputil.JSON(w, http.StatusNotFound, unsubscribeResponse{
			OK:      false,
			Message: "unknown unsubscribe link",
		})
		return
	}

	if err := h.unsubscribe.Unsubscribe(r.Context(), rec.Email, rec.UserID); err != nil {
		log.Printf("[tracking] unsubscribe failed recipient=%s: %v", rec.ID, err)
		httputil.JSON(w, http.StatusInternalServerError, unsubscribeResponse{
			OK:      false,
			Message: "could not process unsubscribe, please try again",
		})
		return
	}

	httputil.JSON(w, http.StatusOK, unsubscribeResponse{
		OK:      true,
		Message: "you will no longer receive these emails",
		Email:   rec.Email,
	})
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}
