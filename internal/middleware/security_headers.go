package middleware

import (
	"net/http"
)

// apiHeaders suit a JSON-only API: nothing served here is rendered or framed.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

type SecurityHeadersMiddleware struct {
	headers [][2]string
}

func NewSecurityHeadersMiddleware(isProduction bool) *SecurityHeadersMiddleware {
	headers := append([][2]string(nil), apiHeaders...)
	if isProduction {
		headers = append(headers, [2]string{"Strict-Transport-Security", hstsValue})
	}
	return &SecurityHeadersMiddleware{headers: headers}
}

func (m *SecurityHeadersMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range m.headers {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}
