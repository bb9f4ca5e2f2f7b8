package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/standupbot/report-server-go/internal/errors"
)

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Int("status", status).Msg("response write aborted")
	}
}

// WriteError answers with the status implied by the error code. Anything that
// is not an AppError is reported as a generic internal error so driver and
// library messages never reach the client.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	switch {
	case !ok:
		log.Error().Err(err).Msg("unhandled error")
		appErr = apperrors.Internal("An unexpected error occurred")
	case appErr.Code.Status() >= http.StatusInternalServerError:
		log.Error().Err(appErr).Str("code", string(appErr.Code)).Msg("request failed")
	}

	WriteJSON(w, appErr.Code.Status(), ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}
