package tracking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/service/tracker"
)

type fakeEvents struct {
	opens      []string
	clicks     []tracker.ClickInput
	recipient  *domain.Recipient
	recordErr  error
	resolveErr error
}

func (f *fakeEvents) RecordOpen(_ context.Context, recipientID string, _ time.Time) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.opens = append(f.opens, recipientID)
	return nil
}

func (f *fakeEvents) RecordClick(_ context.Context, in tracker.ClickInput, _ time.Time) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.clicks = append(f.clicks, in)
	return nil
}

func (f *fakeEvents) ResolveByUnsubscribeToken(_ context.Context, token string) (*domain.Recipient, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.recipient, nil
}

type fakeUnsub struct {
	emails []string
	err    error
}

func (f *fakeUnsub) Unsubscribe(_ context.Context, email string, _ *string) error {
	if f.err != nil {
		return f.err
	}
	f.emails = append(f.emails, email)
	return nil
}

func newTestHandler(events *fakeEvents, unsub *fakeUnsub) (*Handler, *Codec) {
	codec := NewCodec("https://mail.example.com", "test-signing-key")
	return NewHandler(codec, events, unsub), codec
}

func TestHandleOpenServesPixel(t *testing.T) {
	events := &fakeEvents{}
	h, codec := newTestHandler(events, &fakeUnsub{})

	u, _ := url.Parse(codec.OpenPixelURL("camp-1", "rcpt-1"))
	req := httptest.NewRequest(http.MethodGet, "/tracking/open?"+u.RawQuery, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone)")
	rr := httptest.NewRecorder()

	h.HandleOpen(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/gif", rr.Header().Get("Content-Type"))
	assert.Equal(t, pixelGIF, rr.Body.Bytes())
	assert.Equal(t, []string{"rcpt-1"}, events.opens)
}

func TestHandleOpenBadSignatureStillServesPixel(t *testing.T) {
	events := &fakeEvents{}
	h, _ := newTestHandler(events, &fakeUnsub{})

	req := httptest.NewRequest(http.MethodGet, "/tracking/open?cid=c&rid=r&sig=forged", nil)
	rr := httptest.NewRecorder()

	h.HandleOpen(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, pixelGIF, rr.Body.Bytes())
	assert.Empty(t, events.opens, "forged callbacks record nothing")
}

func TestHandleOpenRecordErrorStillServesPixel(t *testing.T) {
	events := &fakeEvents{recordErr: errors.New("db down")}
	h, codec := newTestHandler(events, &fakeUnsub{})

	u, _ := url.Parse(codec.OpenPixelURL("camp-1", "rcpt-1"))
	req := httptest.NewRequest(http.MethodGet, "/tracking/open?"+u.RawQuery, nil)
	rr := httptest.NewRecorder()

	h.HandleOpen(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, pixelGIF, rr.Body.Bytes())
}

func TestHandleOpenIgnoresBots(t *testing.T) {
	events := &fakeEvents{}
	h, codec := newTestHandler(events, &fakeUnsub{})

	u, _ := url.Parse(codec.OpenPixelURL("camp-1", "rcpt-1"))
	req := httptest.NewRequest(http.MethodGet, "/tracking/open?"+u.RawQuery, nil)
	req.Header.Set("User-Agent", "Barracuda Sentinel (EE)")
	rr := httptest.NewRecorder()

	h.HandleOpen(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, events.opens)
}

func TestHandleClickRedirects(t *testing.T) {
	events := &fakeEvents{}
	h, codec := newTestHandler(events, &fakeUnsub{})

	dest := "https://shop.example.com/offer?x=1"
	u, _ := url.Parse(codec.ClickURL("camp-1", "rcpt-1", "l0", dest))
	req := httptest.NewRequest(http.MethodGet, "/tracking/link?"+u.RawQuery, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rr := httptest.NewRecorder()

	h.HandleClick(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, dest, rr.Header().Get("Location"))
	require.Len(t, events.clicks, 1)
	assert.Equal(t, "l0", events.clicks[0].LinkID)
	assert.Equal(t, "Mozilla/5.0", events.clicks[0].UserAgent)
}

func TestHandleClickRecordErrorStillRedirects(t *testing.T) {
	events := &fakeEvents{recordErr: errors.New("db down")}
	h, codec := newTestHandler(events, &fakeUnsub{})

	dest := "https://shop.example.com/offer"
	u, _ := url.Parse(codec.ClickURL("camp-1", "rcpt-1", "l0", dest))
	req := httptest.NewRequest(http.MethodGet, "/tracking/link?"+u.RawQuery, nil)
	rr := httptest.NewRecorder()

	h.HandleClick(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, dest, rr.Header().Get("Location"))
}

func TestHandleClickBadSignatureFallsBackToRawURL(t *testing.T) {
	events := &fakeEvents{}
	h, _ := newTestHandler(events, &fakeUnsub{})

	req := httptest.NewRequest(http.MethodGet,
		"/tracking/link?cid=c&rid=r&lid=l0&url="+url.QueryEscape("https://example.com")+"&sig=forged", nil)
	rr := httptest.NewRecorder()

	h.HandleClick(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://example.com", rr.Header().Get("Location"))
	assert.Empty(t, events.clicks)
}

func TestHandleUnsubscribe(t *testing.T) {
	events := &fakeEvents{recipient: &domain.Recipient{
		ID:    "rcpt-1",
		Email: "user@example.com",
	}}
	unsub := &fakeUnsub{}
	h, _ := newTestHandler(events, unsub)

	req := httptest.NewRequest(http.MethodGet, "/unsubscribe?token=tok-1", nil)
	rr := httptest.NewRecorder()

	h.HandleUnsubscribe(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok":true`)
	assert.Contains(t, rr.Body.String(), "user@example.com")
	assert.Equal(t, []string{"user@example.com"}, unsub.emails)
}

func TestHandleUnsubscribeUnknownToken(t *testing.T) {
	events := &fakeEvents{resolveErr: tracker.ErrNotFound}
	h, _ := newTestHandler(events, &fakeUnsub{})

	req := httptest.NewRequest(http.MethodGet, "/unsubscribe?token=bogus", nil)
	rr := httptest.NewRecorder()

	h.HandleUnsubscribe(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok":false`)
}
