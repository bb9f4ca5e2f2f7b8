package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/standupbot/report-server-go/internal/audit"
	apperrors "github.com/standupbot/report-server-go/internal/errors"
	"github.com/standupbot/report-server-go/internal/httputil"
)

// rejectRateLimited records the event and answers 429 with Retry-After.
func rejectRateLimited(w http.ResponseWriter, r *http.Request, ev audit.Event, resetAt time.Time, message string) {
	ev.Type = audit.EventRateLimitExceed
	audit.LogFromRequest(r, ev)

	w.Header().Set("Retry-After", retryAfter(resetAt))
	err := apperrors.RateLimitExceeded()
	if message != "" {
		err.Message = message
	}
	httputil.WriteError(w, err)
}

func retryAfter(resetAt time.Time) string {
	secondsLeft := int(time.Until(resetAt).Seconds()) + 1
	if secondsLeft < 1 {
		secondsLeft = 1
	}
	return strconv.Itoa(secondsLeft)
}
