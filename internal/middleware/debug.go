package middleware

import (
	"net/http"

	"github.com/standupbot/report-server-go/internal/audit"
	apperrors "github.com/standupbot/report-server-go/internal/errors"
	"github.com/standupbot/report-server-go/internal/httputil"
	"github.com/standupbot/report-server-go/internal/util"
)

const DebugPasswordHeader = "X-Debug-Password"

// DebugGuard hides debug endpoints unless debug mode is on. When a password
// hash is configured the caller must also present the password.
type DebugGuard struct {
	enabled      bool
	passwordHash string
}

func NewDebugGuard(enabled bool, passwordHash string) *DebugGuard {
	return &DebugGuard{enabled: enabled, passwordHash: passwordHash}
}

func (g *DebugGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.enabled {
			httputil.WriteError(w, apperrors.Forbidden("Debug endpoints are disabled"))
			return
		}

		if g.passwordHash != "" {
			password := r.Header.Get(DebugPasswordHeader)
			if password == "" || !util.CheckPasswordHash(password, g.passwordHash) {
				audit.LogFromRequest(r, audit.Event{
					Type:    audit.EventDebugAccess,
					Details: map[string]interface{}{"granted": false, "path": r.URL.Path},
				})
				httputil.WriteError(w, apperrors.Forbidden("Invalid debug password"))
				return
			}
		}

		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventDebugAccess,
			Details: map[string]interface{}{"granted": true, "path": r.URL.Path},
		})
		next.ServeHTTP(w, r)
	})
}
