package audit

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventLoginSuccess    EventType = "login_success"
	EventLoginFailure    EventType = "login_failure"
	EventTokenIssued     EventType = "token_issued"
	EventReportDelete    EventType = "report_delete"
	EventSessionOpen     EventType = "session_open"
	EventSessionClose    EventType = "session_close"
	EventRateLimitExceed EventType = "rate_limit_exceeded"
	EventDebugAccess     EventType = "debug_access"
)

// Event is one security-relevant action. Empty identity fields are
// omitted from the log line.
type Event struct {
	Type      EventType
	UserID    string
	SessionID string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

// Log writes ev through the logger carried by ctx.
func Log(ctx context.Context, ev Event) {
	e := log.Ctx(ctx).Info().
		Str("audit", string(ev.Type))

	for _, f := range []struct{ key, value string }{
		{"userId", ev.UserID},
		{"sessionId", ev.SessionID},
		{"ip", ev.IP},
		{"userAgent", ev.UserAgent},
	} {
		if f.value != "" {
			e = e.Str(f.key, f.value)
		}
	}

	if len(ev.Details) > 0 {
		e = e.Fields(ev.Details)
	}
	e.Msg("security event")
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP prefers proxy headers over the socket address. Only the first
// X-Forwarded-For hop is used.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
