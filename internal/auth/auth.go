// Package auth provides the shared-secret check for admin and trigger
// endpoints and a small role/capability model for admin operations.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/contacttable/mailer/internal/pkg/httputil"
)

// Role is a coarse caller role, carried on requests via the X-Role
// header once the shared secret has been verified.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Capability names an admin-gated operation class.
type Capability string

const (
	CapManageCampaigns Capability = "manage_campaigns" // create/activate/cancel/delete
	CapCommitWinners   Capability = "commit_winners"
	CapReportBounces   Capability = "report_bounces"
	CapTriggerTick     Capability = "trigger_tick"
	CapViewStats       Capability = "view_stats"
)

var grants = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapManageCampaigns: true,
		CapCommitWinners:   true,
		CapReportBounces:   true,
		CapTriggerTick:     true,
		CapViewStats:       true,
	},
	RoleOperator: {
		CapManageCampaigns: true,
		CapReportBounces:   true,
		CapTriggerTick:     true,
		CapViewStats:       true,
	},
	RoleViewer: {
		CapViewStats: true,
	},
}

// Can reports whether a role holds a capability.
func Can(role Role, cap Capability) bool {
	return grants[role][cap]
}

// RoleFromRequest reads the caller role, defaulting to operator.
func RoleFromRequest(r *http.Request) Role {
	switch Role(r.Header.Get("X-Role")) {
	case RoleAdmin:
		return RoleAdmin
	case RoleViewer:
		return RoleViewer
	default:
		return RoleOperator
	}
}

// RequireSecret is middleware enforcing "Authorization: Bearer <secret>".
func RequireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCapability is middleware gating a route on the caller's role.
// It assumes RequireSecret already ran.
func RequireCapability(cap Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Can(RoleFromRequest(r), cap) {
				httputil.Error(w, http.StatusForbidden, "forbidden", "role lacks "+string(cap))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
