package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/standupbot/report-server-go/internal/audit"
	apperrors "github.com/standupbot/report-server-go/internal/errors"
	"github.com/standupbot/report-server-go/internal/service"
	"github.com/standupbot/report-server-go/internal/util"
)

// chatID accepts a Telegram chat id sent either as a JSON string or as a
// JSON number.
type chatID string

func (c *chatID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = chatID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("chat_id must be a string or a number")
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("chat_id must be an integer")
	}
	*c = chatID(strconv.FormatInt(v, 10))
	return nil
}

type ServiceHandler struct {
	pairing *service.PairingService
	auth    *service.AuthService
}

func NewServiceHandler(pairing *service.PairingService, auth *service.AuthService) *ServiceHandler {
	return &ServiceHandler{pairing: pairing, auth: auth}
}

// POST /service/confirm-code
// Called by the bot once a chat user followed the deep link of a session.
func (h *ServiceHandler) ConfirmCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UUID       string  `json:"uuid"`
		ChatID     chatID  `json:"chat_id"`
		Username   *string `json:"username"`
		FullName   *string `json:"full_name"`
		ReferredBy *string `json:"referred_by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.pairing.Claim(r.Context(), service.ClaimParams{
		SessionID:  strings.TrimSpace(req.UUID),
		ChatID:     string(req.ChatID),
		Username:   req.Username,
		FullName:   req.FullName,
		ReferredBy: req.ReferredBy,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("sessionId", util.MaskID(req.UUID)).
			Msg("confirm code failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "sent",
		"access_token": result.AccessToken,
	})
}

// POST /service/auth
// Direct sign-in from inside the Mini App with its signed launch payload.
func (h *ServiceHandler) Auth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InitData string `json:"initData"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.AuthenticateInitData(r.Context(), req.InitData)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventLoginFailure,
			Details: map[string]interface{}{"reason": string(apperrors.GetCode(err))},
		})
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventLoginSuccess,
		UserID:  result.User.ID,
		Details: map[string]interface{}{"flow": "init_data"},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": result.AccessToken,
		"user":         formatUser(result.User),
	})
}
