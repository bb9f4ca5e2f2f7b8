package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/standupbot/report-server-go/internal/errors"
	"github.com/standupbot/report-server-go/internal/httputil"
	"github.com/standupbot/report-server-go/internal/token"
	"github.com/standupbot/report-server-go/internal/util"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

func GetClaims(ctx context.Context) *token.Claims {
	if claims, ok := ctx.Value(ClaimsContextKey).(*token.Claims); ok {
		return claims
	}
	return nil
}

func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

type TokenVerifier interface {
	Verify(raw string) (*token.Claims, error)
}

// AuthMiddleware admits requests carrying a valid bearer token and stores
// its claims in the request context.
type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := extractBearer(r)
		if !ok {
			httputil.WriteError(w, apperrors.Unauthorized("Invalid token header"))
			return
		}

		claims, err := m.verifier.Verify(raw)
		if errors.Is(err, token.ErrExpired) {
			httputil.WriteError(w, apperrors.TokenExpired())
			return
		}
		if err != nil {
			log.Debug().Err(err).Msg("auth middleware: rejected token")
			httputil.WriteError(w, apperrors.InvalidToken("Invalid token"))
			return
		}
		if !util.IsValidUUID(claims.UserID) {
			log.Warn().Str("userId", claims.UserID).Msg("auth middleware: token with malformed user id")
			httputil.WriteError(w, apperrors.InvalidToken("Invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func extractBearer(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return raw, raw != ""
}
