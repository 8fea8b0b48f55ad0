package tracking

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec() *Codec {
	return NewCodec("https://mail.example.com", "test-signing-key")
}

func TestWrapForTrackingRewritesLinks(t *testing.T) {
	c := newTestCodec()
	html := `<html><body>
		<a href="https://shop.example.com/offer">Offer</a>
		<a href="http://example.com/about">About</a>
	</body></html>`

	out := c.WrapForTracking(html, "camp-1", "rcpt-1", "tok-1")

	assert.NotContains(t, out, `href="https://shop.example.com/offer"`)
	assert.NotContains(t, out, `href="http://example.com/about"`)
	assert.Contains(t, out, "/tracking/link?")
	// Link ids assigned in document order.
	assert.Contains(t, out, "lid=l0")
	assert.Contains(t, out, "lid=l1")
	// Original URLs survive percent-encoded.
	assert.Contains(t, out, url.QueryEscape("https://shop.example.com/offer"))
}

func TestWrapForTrackingPixelBeforeBody(t *testing.T) {
	c := newTestCodec()
	out := c.WrapForTracking("<html><body><p>hi</p></body></html>", "camp-1", "rcpt-1", "tok-1")

	pixelAt := strings.Index(out, "/tracking/open?")
	bodyAt := strings.Index(out, "</body>")
	require.Greater(t, pixelAt, 0)
	require.Greater(t, bodyAt, 0)
	assert.Less(t, pixelAt, bodyAt, "pixel belongs inside the body")
	assert.Contains(t, out, "/unsubscribe?token=tok-1")
}

func TestWrapForTrackingNoBodyTag(t *testing.T) {
	c := newTestCodec()
	out := c.WrapForTracking("<p>plain fragment</p>", "camp-1", "rcpt-1", "tok-1")

	assert.True(t, strings.HasPrefix(out, "<p>plain fragment</p>"))
	assert.Contains(t, out, "/tracking/open?")
	assert.Contains(t, out, "/unsubscribe?token=tok-1")
}

func TestWrapForTrackingIsRecipientSpecific(t *testing.T) {
	c := newTestCodec()
	html := `<body><a href="https://example.com">x</a></body>`

	a := c.WrapForTracking(html, "camp-1", "rcpt-a", "tok-a")
	b := c.WrapForTracking(html, "camp-1", "rcpt-b", "tok-b")

	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "rid=rcpt-a")
	assert.Contains(t, b, "rid=rcpt-b")
}

func TestDecodeOpenRoundTrip(t *testing.T) {
	c := newTestCodec()
	u, err := url.Parse(c.OpenPixelURL("camp-1", "rcpt-1"))
	require.NoError(t, err)

	evt, err := c.DecodeOpen(u.Query())
	require.NoError(t, err)
	assert.Equal(t, "camp-1", evt.CampaignID)
	assert.Equal(t, "rcpt-1", evt.RecipientID)
}

func TestDecodeOpenRejectsTampering(t *testing.T) {
	c := newTestCodec()
	u, err := url.Parse(c.OpenPixelURL("camp-1", "rcpt-1"))
	require.NoError(t, err)

	q := u.Query()
	q.Set("rid", "rcpt-2")
	_, err = c.DecodeOpen(q)
	assert.Error(t, err)

	_, err = c.DecodeOpen(url.Values{})
	assert.Error(t, err)
}

func TestDecodeClickRoundTrip(t *testing.T) {
	c := newTestCodec()
	orig := "https://example.com/path?x=1&y=2"
	u, err := url.Parse(c.ClickURL("camp-1", "rcpt-1", "l3", orig))
	require.NoError(t, err)

	evt, err := c.DecodeClick(u.Query())
	require.NoError(t, err)
	assert.Equal(t, orig, evt.URL)
	assert.Equal(t, "l3", evt.LinkID)
	assert.Equal(t, "rcpt-1", evt.RecipientID)
}

func TestDecodeClickRejectsSwappedURL(t *testing.T) {
	c := newTestCodec()
	u, err := url.Parse(c.ClickURL("camp-1", "rcpt-1", "l0", "https://example.com"))
	require.NoError(t, err)

	q := u.Query()
	q.Set("url", "https://evil.example.net")
	_, err = c.DecodeClick(q)
	assert.Error(t, err)
}

func TestIsBot(t *testing.T) {
	assert.True(t, IsBot("Barracuda Sentinel (EE)"))
	assert.True(t, IsBot("python-requests/2.31"))
	assert.True(t, IsBot("Mozilla/5.0 (compatible; Googlebot/2.1)"))
	assert.False(t, IsBot("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"))
	assert.False(t, IsBot(""))
}
