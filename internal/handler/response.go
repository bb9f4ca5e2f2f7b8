package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/standupbot/report-server-go/internal/errors"
	"github.com/standupbot/report-server-go/internal/httputil"
	"github.com/standupbot/report-server-go/internal/model"
	"github.com/standupbot/report-server-go/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.BodyTooLarge()
		}
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func formatReport(rep model.Report) map[string]any {
	return map[string]any{
		"_id":        rep.ID,
		"user_id":    rep.UserID,
		"date":       rep.ReportDate.Format(service.DateLayout),
		"developer":  rep.Developer,
		"yesterday":  rep.Yesterday,
		"today":      rep.Today,
		"blockers":   rep.Blockers,
		"created_at": rep.CreatedAt.Format(time.RFC3339),
		"updated_at": formatTime(rep.UpdatedAt),
	}
}

func formatUser(user *model.User) map[string]any {
	return map[string]any{
		"user_id":     user.ID,
		"chat_id":     user.ChatID,
		"username":    user.Username,
		"full_name":   user.FullName,
		"referred_by": user.ReferredBy,
		"created_at":  user.CreatedAt.Format(time.RFC3339),
	}
}
