package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/standupbot/report-server-go/internal/errors"
	"github.com/standupbot/report-server-go/internal/service"
)

type UserHandler struct {
	users   *service.UserService
	reports *service.ReportService
}

func NewUserHandler(users *service.UserService, reports *service.ReportService) *UserHandler {
	return &UserHandler{users: users, reports: reports}
}

// Routes is mounted under /users behind the auth middleware.
func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/me", h.Me)

	return r
}

// GET /users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{
			"user_id":   u.ID,
			"full_name": u.FullName,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /users/me
// The developer name comes from the caller's most recent report.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	ctx := r.Context()

	user, err := h.users.FindByID(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	latest, err := h.reports.Latest(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	var developer *string
	if latest != nil {
		developer = &latest.Developer
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   user.ID,
		"full_name": user.FullName,
		"username":  user.Username,
		"chat_id":   user.ChatID,
		"developer": developer,
	})
}
