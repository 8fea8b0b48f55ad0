// Package tracking implements the link and open tracking codec and the
// public HTTP endpoints that decode tracking callbacks.
package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var hrefRe = regexp.MustCompile(`href="(https?://[^"]+)"`)

// Codec rewrites outbound HTML for per-recipient tracking and decodes
// the resulting callback parameters. Wrapped content is recipient
// specific and must never be cached across recipients.
type Codec struct {
	baseURL    string
	signingKey []byte
}

// NewCodec creates a codec. baseURL is the public origin the tracking
// endpoints are served from, without a trailing slash.
func NewCodec(baseURL, signingKey string) *Codec {
	return &Codec{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: []byte(signingKey),
	}
}

// sign creates a truncated HMAC signature over the pipe-joined fields.
func (c *Codec) sign(fields ...string) string {
	h := hmac.New(sha256.New, c.signingKey)
	h.Write([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (c *Codec) verify(sig string, fields ...string) bool {
	return hmac.Equal([]byte(c.sign(fields...)), []byte(sig))
}

// OpenPixelURL returns the open-tracking pixel URL for one recipient.
func (c *Codec) OpenPixelURL(campaignID, recipientID string) string {
	q := url.Values{}
	q.Set("cid", campaignID)
	q.Set("rid", recipientID)
	q.Set("sig", c.sign(campaignID, recipientID))
	return c.baseURL + "/tracking/open?" + q.Encode()
}

// ClickURL returns the redirect-through-tracking URL for one link.
func (c *Codec) ClickURL(campaignID, recipientID, linkID, originalURL string) string {
	q := url.Values{}
	q.Set("cid", campaignID)
	q.Set("rid", recipientID)
	q.Set("lid", linkID)
	q.Set("url", originalURL)
	q.Set("sig", c.sign(campaignID, recipientID, linkID, originalURL))
	return c.baseURL + "/tracking/link?" + q.Encode()
}

// UnsubscribeURL returns the unsubscribe link for a recipient token.
func (c *Codec) UnsubscribeURL(token string) string {
	return c.baseURL + "/unsubscribe?token=" + url.QueryEscape(token)
}

// WrapForTracking rewrites every absolute href into a tracked redirect,
// appends the unsubscribe footer, and inserts the open pixel before
// </body> (or at the end when no body tag is present). Link ids are
// assigned in document order: l0, l1, ...
func (c *Codec) WrapForTracking(html, campaignID, recipientID, unsubscribeToken string) string {
	n := 0
	html = hrefRe.ReplaceAllStringFunc(html, func(m string) string {
		orig := hrefRe.FindStringSubmatch(m)[1]
		linkID := fmt.Sprintf("l%d", n)
		n++
		return `href="` + c.ClickURL(campaignID, recipientID, linkID, orig) + `"`
	})

	footer := fmt.Sprintf(
		`<p style="font-size:12px;color:#888;"><a href="%s">Unsubscribe</a></p>`,
		c.UnsubscribeURL(unsubscribeToken))
	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" />`,
		c.OpenPixelURL(campaignID, recipientID))
	suffix := footer + pixel

	if idx := strings.LastIndex(strings.ToLower(html), "</body>"); idx >= 0 {
		return html[:idx] + suffix + html[idx:]
	}
	return html + suffix
}

// OpenEvent is a decoded open callback.
type OpenEvent struct {
	CampaignID  string
	RecipientID string
}

// DecodeOpen parses and verifies open-callback query parameters.
func (c *Codec) DecodeOpen(q url.Values) (*OpenEvent, error) {
	cid, rid, sig := q.Get("cid"), q.Get("rid"), q.Get("sig")
	if cid == "" || rid == "" {
		return nil, fmt.Errorf("missing cid/rid")
	}
	if !c.verify(sig, cid, rid) {
		return nil, fmt.Errorf("invalid signature")
	}
	return &OpenEvent{CampaignID: cid, RecipientID: rid}, nil
}

// ClickEvent is a decoded click callback.
type ClickEvent struct {
	CampaignID  string
	RecipientID string
	LinkID      string
	URL         string
}

// DecodeClick parses and verifies click-callback query parameters.
func (c *Codec) DecodeClick(q url.Values) (*ClickEvent, error) {
	cid, rid, lid, u, sig := q.Get("cid"), q.Get("rid"), q.Get("lid"), q.Get("url"), q.Get("sig")
	if cid == "" || rid == "" || u == "" {
		return nil, fmt.Errorf("missing cid/rid/url")
	}
	if !c.verify(sig, cid, rid, lid, u) {
		return nil, fmt.Errorf("invalid signature")
	}
	return &ClickEvent{CampaignID: cid, RecipientID: rid, LinkID: lid, URL: u}, nil
}
