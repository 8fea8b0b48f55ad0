// Package content renders campaign HTML with per-recipient data using
// the Liquid template language.
package content

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"github.com/contacttable/mailer/internal/domain"
	"github.com/contacttable/mailer/internal/pkg/cache"
)

// Renderer parses and renders Liquid templates. Parsed templates are
// cached by content hash; bindings are applied per recipient, so the
// rendered output is never cached.
type Renderer struct {
	engine *liquid.Engine
	parsed *cache.Cache
}

// NewRenderer creates a renderer with the standard filter set.
func NewRenderer() *Renderer {
	r := &Renderer{
		engine: liquid.NewEngine(),
		parsed: cache.New(time.Hour),
	}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// {{ first_name | default: "Friend" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ name | capitalize }}
	r.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// {{ email | urlencode }}
	r.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	// {{ user_input | escape }}
	r.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})
}

// Render renders the template source with the given bindings.
func (r *Renderer) Render(source string, bindings map[string]interface{}) (string, error) {
	tmpl, err := r.parse(source)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	out, err := tmpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// RenderForRecipient renders campaign content with the recipient's
// standard bindings.
func (r *Renderer) RenderForRecipient(source string, rec *domain.Recipient) (string, error) {
	bindings := map[string]interface{}{
		"email":      rec.Email,
		"first_name": rec.FirstName,
	}
	if rec.UserID != nil {
		bindings["user_id"] = *rec.UserID
	}
	return r.Render(source, bindings)
}

func (r *Renderer) parse(source string) (*liquid.Template, error) {
	sum := md5.Sum([]byte(source))
	key := hex.EncodeToString(sum[:])
	if v, ok := r.parsed.Get(key); ok {
		return v.(*liquid.Template), nil
	}
	tmpl, err := r.engine.ParseString(source)
	if err != nil {
		return nil, err
	}
	r.parsed.Set(key, tmpl)
	return tmpl, nil
}
