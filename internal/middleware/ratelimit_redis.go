package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/standupbot/report-server-go/internal/audit"
	"github.com/standupbot/report-server-go/internal/service"
)

const rateLimitWindow = 60 * time.Second

type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) service.RateLimitResult
}

// UserRateLimitMiddleware limits authenticated callers per user id. It must
// run after AuthMiddleware; requests without claims pass through.
type UserRateLimitMiddleware struct {
	limiter Limiter
	limit   int
}

func NewUserRateLimitMiddleware(limiter Limiter, limit int) *UserRateLimitMiddleware {
	return &UserRateLimitMiddleware{limiter: limiter, limit: limit}
}

func (m *UserRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		if claims == nil {
			next.ServeHTTP(w, r)
			return
		}

		res := m.limiter.CheckLimit(r.Context(), "user:"+claims.UserID, m.limit, rateLimitWindow)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			log.Warn().Str("userId", claims.UserID).Msg("rate limit exceeded")
			rejectRateLimited(w, r, audit.Event{
				UserID:  claims.UserID,
				Details: map[string]interface{}{"scope": "user"},
			}, res.ResetAt, "")
			return
		}

		next.ServeHTTP(w, r)
	})
}
