package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/standupbot/report-server-go/internal/audit"
	apperrors "github.com/standupbot/report-server-go/internal/errors"
	"github.com/standupbot/report-server-go/internal/model"
	redisclient "github.com/standupbot/report-server-go/internal/redis"
	"github.com/standupbot/report-server-go/internal/token"
	"github.com/standupbot/report-server-go/internal/util"
	"github.com/standupbot/report-server-go/internal/ws"
)

// KVStore holds the expiring session records next to the live registry.
type KVStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, keys ...string) error
}

type PairingConfig struct {
	BotURL          string
	SessionTTL      time.Duration
	TokenTTL        time.Duration
	SingleUseClaims bool
}

type OpenResult struct {
	Conn      *ws.Conn
	SessionID string
	BotURL    string
}

type ClaimParams struct {
	SessionID  string
	ChatID     string
	Username   *string
	FullName   *string
	ReferredBy *string
}

type ClaimResult struct {
	AccessToken string
	User        *model.User
	Claims      int64
}

type SessionInfo struct {
	SessionID  string    `json:"session_id"`
	ReferredBy string    `json:"referred_by,omitempty"`
	OpenedAt   time.Time `json:"opened_at"`
	Claims     int64     `json:"claims"`
	HasJWT     bool      `json:"has_jwt"`
}

// PairingService runs the WebSocket login handshake. A browser opens a
// session and waits; the bot later claims it by id, and the minted token is
// pushed down the waiting socket. The registry decides whether a session is
// claimable. The store records are bookkeeping that expire on their own.
type PairingService struct {
	registry *ws.Registry
	store    KVStore
	users    *UserService
	issuer   *token.Issuer
	sealer   *util.Sealer
	cfg      PairingConfig
}

func NewPairingService(
	registry *ws.Registry,
	store KVStore,
	users *UserService,
	issuer *token.Issuer,
	sealer *util.Sealer,
	cfg PairingConfig,
) *PairingService {
	return &PairingService{
		registry: registry,
		store:    store,
		users:    users,
		issuer:   issuer,
		sealer:   sealer,
		cfg:      cfg,
	}
}

// Open registers a new login session on sock and sends the client its id
// and bot deep link.
func (s *PairingService) Open(ctx context.Context, sock ws.Socket, referredBy string) (*OpenResult, error) {
	sessionID := uuid.NewString()

	if err := s.store.Set(ctx, redisclient.SessionKey(sessionID), redisclient.SessionConnected, s.cfg.SessionTTL); err != nil {
		return nil, apperrors.External("redis", err)
	}

	conn := ws.NewConn(sessionID, referredBy, sock)
	if err := s.registry.Register(sessionID, conn); err != nil {
		_ = s.store.Del(ctx, redisclient.SessionKey(sessionID))
		return nil, apperrors.Internal("Failed to register session").WithCause(err)
	}

	botURL := BuildBotURL(s.cfg.BotURL, sessionID, referredBy)
	if err := conn.SendJSON(map[string]string{"uuid": sessionID, "bot_url": botURL}); err != nil {
		s.Close(ctx, sessionID)
		return nil, apperrors.External("websocket", err)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionOpen,
		SessionID: util.MaskID(sessionID),
		Details:   map[string]interface{}{"referred": referredBy != ""},
	})

	return &OpenResult{Conn: conn, SessionID: sessionID, BotURL: botURL}, nil
}

// HandleFrame answers one client frame. The returned value is written back
// to the socket.
func (s *PairingService) HandleFrame(ctx context.Context, sessionID string, frame []byte) any {
	if !json.Valid(frame) {
		return map[string]string{"error": "Invalid JSON"}
	}

	var msg struct {
		JWT json.RawMessage `json:"jwt"`
	}
	_ = json.Unmarshal(frame, &msg)

	raw, ok := clientToken(msg.JWT)
	if !ok {
		return map[string]string{"error": "JWT not found"}
	}

	sealed, err := s.sealer.Seal(raw)
	if err != nil {
		log.Error().Err(err).Str("sessionId", util.MaskID(sessionID)).Msg("failed to seal client token")
		return map[string]string{"error": "Failed to save JWT"}
	}
	if err := s.store.Set(ctx, redisclient.JWTKey(sessionID), sealed, s.cfg.SessionTTL); err != nil {
		log.Error().Err(err).Str("sessionId", util.MaskID(sessionID)).Msg("failed to store client token")
		return map[string]string{"error": "Failed to save JWT"}
	}

	return map[string]string{"status": "jwt_saved"}
}

// clientToken accepts any truthy jwt value. Strings are kept as sent and
// everything else as its JSON text. null, false, zero, "" and empty
// containers count as missing.
func clientToken(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case nil:
		return "", false
	case bool:
		if !t {
			return "", false
		}
	case float64:
		if t == 0 {
			return "", false
		}
	case string:
		return t, t != ""
	case []any:
		if len(t) == 0 {
			return "", false
		}
	case map[string]any:
		if len(t) == 0 {
			return "", false
		}
	}
	return string(raw), true
}

// HasChatID reports whether a chat id was given. Zero counts as missing.
func HasChatID(chatID string) bool {
	return chatID != "" && chatID != "0"
}

// Claim binds a live session to a chat user and delivers a fresh token both
// down the socket and to the caller.
func (s *PairingService) Claim(ctx context.Context, p ClaimParams) (*ClaimResult, error) {
	if p.SessionID == "" || !HasChatID(p.ChatID) {
		return nil, apperrors.ValidationError("uuid and chat_id are required")
	}

	conn, ok := s.registry.Lookup(p.SessionID)
	if !ok || conn.IsClosed() {
		return nil, apperrors.SessionNotFound()
	}

	if s.cfg.SingleUseClaims && !conn.Reserve() {
		return nil, apperrors.AlreadyClaimed()
	}

	result, err := s.claim(ctx, conn, p)
	if err != nil {
		if s.cfg.SingleUseClaims {
			conn.Release()
		}
		return nil, err
	}
	return result, nil
}

func (s *PairingService) claim(ctx context.Context, conn *ws.Conn, p ClaimParams) (*ClaimResult, error) {
	referredBy := p.ReferredBy
	if referredBy == nil && conn.ReferredBy != "" {
		ref := conn.ReferredBy
		referredBy = &ref
	}

	user, err := s.users.FindOrCreate(ctx, model.CreateUserParams{
		ChatID:     p.ChatID,
		Username:   p.Username,
		FullName:   p.FullName,
		ReferredBy: referredBy,
	})
	if err != nil {
		return nil, err
	}

	accessToken, err := issueUserToken(s.issuer, user, s.cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	if err := conn.SendJSON(map[string]string{"status": "success", "access_token": accessToken}); err != nil {
		log.Warn().Err(err).Str("sessionId", util.MaskID(conn.SessionID)).Msg("token push failed, closing session")
		s.Close(ctx, conn.SessionID)
		return nil, apperrors.SessionNotFound().WithCause(err)
	}

	claims := conn.RecordClaim()

	audit.Log(ctx, audit.Event{
		Type:      audit.EventTokenIssued,
		UserID:    user.ID,
		SessionID: util.MaskID(conn.SessionID),
		Details:   map[string]interface{}{"claims": claims, "flow": "confirm_code"},
	})

	return &ClaimResult{AccessToken: accessToken, User: user, Claims: claims}, nil
}

// Close tears a session down. It is safe to call more than once. The
// jwt record is left to expire.
func (s *PairingService) Close(ctx context.Context, sessionID string) {
	conn := s.registry.Unregister(sessionID)

	if err := s.store.Del(ctx, redisclient.SessionKey(sessionID)); err != nil {
		log.Warn().Err(err).Str("sessionId", util.MaskID(sessionID)).Msg("failed to delete session record")
	}

	if conn == nil {
		return
	}
	_ = conn.Close()

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionClose,
		SessionID: util.MaskID(sessionID),
		Details: map[string]interface{}{
			"claims":   conn.Claims(),
			"lifetime": time.Since(conn.OpenedAt).String(),
		},
	})
}

// StoredToken returns the token a client pushed for sessionID, if it has
// not expired.
func (s *PairingService) StoredToken(ctx context.Context, sessionID string) (string, bool, error) {
	sealed, ok, err := s.store.Get(ctx, redisclient.JWTKey(sessionID))
	if err != nil || !ok {
		return "", false, err
	}
	raw, err := s.sealer.Open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("open stored token: %w", err)
	}
	return raw, true, nil
}

func (s *PairingService) LiveCount() int {
	return s.registry.Count()
}

// Sessions lists the live sessions, oldest first.
func (s *PairingService) Sessions(ctx context.Context) []SessionInfo {
	sessions := []SessionInfo{}
	s.registry.Each(func(c *ws.Conn) {
		_, hasJWT, err := s.StoredToken(ctx, c.SessionID)
		if err != nil {
			log.Warn().Err(err).Str("sessionId", util.MaskID(c.SessionID)).Msg("failed to read stored token")
		}
		sessions = append(sessions, SessionInfo{
			SessionID:  c.SessionID,
			ReferredBy: c.ReferredBy,
			OpenedAt:   c.OpenedAt,
			Claims:     c.Claims(),
			HasJWT:     hasJWT,
		})
	})

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].OpenedAt.Before(sessions[j].OpenedAt)
	})
	return sessions
}

// BuildBotURL returns the deep link that starts the bot with the session id
// and, when present, the referrer.
func BuildBotURL(botURL, sessionID, referredBy string) string {
	start := "uuid_" + sessionID
	if referredBy != "" {
		start += "_ref_" + url.QueryEscape(referredBy)
	}
	return fmt.Sprintf("%s?start=%s", botURL, start)
}
