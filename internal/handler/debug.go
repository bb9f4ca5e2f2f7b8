package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/standupbot/report-server-go/internal/errors"
	"github.com/standupbot/report-server-go/internal/initdata"
	"github.com/standupbot/report-server-go/internal/model"
	"github.com/standupbot/report-server-go/internal/service"
	"github.com/standupbot/report-server-go/internal/util"
)

// DebugHandler serves development helpers. It is mounted behind
// middleware.DebugGuard.
type DebugHandler struct {
	users    *service.UserService
	auth     *service.AuthService
	pairing  *service.PairingService
	botToken string
}

func NewDebugHandler(
	users *service.UserService,
	auth *service.AuthService,
	pairing *service.PairingService,
	botToken string,
) *DebugHandler {
	return &DebugHandler{
		users:    users,
		auth:     auth,
		pairing:  pairing,
		botToken: botToken,
	}
}

func (h *DebugHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/token", h.Token)
	r.Get("/sessions", h.Sessions)
	r.Post("/init-data", h.InitData)

	return r
}

// POST /service/debug/token
// Mints a token for an existing user id, or for a chat id (creating the
// user when needed).
func (h *DebugHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string  `json:"user_id"`
		ChatID   chatID  `json:"chat_id"`
		Username *string `json:"username"`
		FullName *string `json:"full_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()

	var (
		user *model.User
		err  error
	)
	switch {
	case req.UserID != "" && !util.IsValidUUID(req.UserID):
		err = apperrors.ValidationError("user_id must be a UUID")
	case req.UserID != "":
		user, err = h.users.FindByID(ctx, req.UserID)
	case service.HasChatID(string(req.ChatID)):
		user, err = h.users.FindOrCreate(ctx, model.CreateUserParams{
			ChatID:   string(req.ChatID),
			Username: req.Username,
			FullName: req.FullName,
		})
	default:
		err = apperrors.ValidationError("user_id or chat_id is required")
	}
	if err != nil {
		writeError(w, err)
		return
	}

	accessToken, err := h.auth.IssueToken(user)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": accessToken,
		"user":         formatUser(user),
	})
}

// GET /service/debug/sessions
func (h *DebugHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    h.pairing.LiveCount(),
		"sessions": h.pairing.Sessions(r.Context()),
	})
}

// POST /service/debug/init-data
// Builds a signed launch payload for a fake Telegram user so that
// /service/auth can be exercised without a Telegram client.
func (h *DebugHandler) InitData(w http.ResponseWriter, r *http.Request) {
	if h.botToken == "" {
		writeError(w, apperrors.Internal("Telegram authentication is not configured"))
		return
	}

	var req struct {
		User     initdata.User `json:"user"`
		QueryID  string        `json:"query_id"`
		AuthDate int64         `json:"auth_date"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.User.ID == 0 {
		writeError(w, apperrors.MissingRequired("user.id"))
		return
	}
	if strings.ContainsRune(req.User.FirstName+req.User.LastName+req.User.Username, '&') {
		writeError(w, apperrors.InvalidInput("user", "names must not contain '&'"))
		return
	}

	userJSON, err := json.Marshal(req.User)
	if err != nil {
		writeError(w, apperrors.Internal("Failed to encode user"))
		return
	}

	authDate := req.AuthDate
	if authDate == 0 {
		authDate = time.Now().Unix()
	}

	fields := map[string]string{
		"user":      string(userJSON),
		"auth_date": strconv.FormatInt(authDate, 10),
	}
	if req.QueryID != "" {
		fields["query_id"] = req.QueryID
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"initData": initdata.Encode(fields, h.botToken),
	})
}
