package middleware

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/standupbot/report-server-go/internal/audit"
)

// IPRateLimitMiddleware limits unauthenticated endpoints per client address.
type IPRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
	prefix  string
}

func NewIPRateLimitMiddleware(limiter Limiter, limit int, window time.Duration, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteHost(r)

		key := fmt.Sprintf("ip:%s:%s", m.prefix, ip)
		res := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)

		if !res.Allowed {
			rejectRateLimited(w, r, audit.Event{
				Details: map[string]interface{}{"scope": m.prefix},
			}, res.ResetAt, "Too many requests. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// remoteHost drops the port so that one client maps to one key. RealIP
// middleware, when mounted, has already replaced RemoteAddr.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
