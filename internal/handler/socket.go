package handler

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/standupbot/report-server-go/internal/config"
	"github.com/standupbot/report-server-go/internal/service"
	"github.com/standupbot/report-server-go/internal/util"
)

const maxFrameSize = 64 << 10

// SocketHandler serves the login WebSocket. Each connection is one pairing
// session that lives until the client goes away.
type SocketHandler struct {
	pairing  *service.PairingService
	upgrader websocket.Upgrader
	active   sync.WaitGroup
}

func NewSocketHandler(pairing *service.PairingService, allowedOrigins []string) *SocketHandler {
	return &SocketHandler{
		pairing: pairing,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker admits requests without an Origin header (bots, CLI tools)
// and browsers whose origin is listed. "*" admits everyone.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Wait blocks until every socket served so far has finished its cleanup.
// http.Server.Shutdown does not track hijacked connections, so callers
// wait here before closing the stores those handlers write to.
func (h *SocketHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GET /ws/login
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.active.Add(1)
	defer h.active.Done()

	referredBy := r.URL.Query().Get("referred_by")

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	sock.SetReadLimit(maxFrameSize)

	ctx := r.Context()

	session, err := h.pairing.Open(ctx, sock, referredBy)
	if err != nil {
		log.Error().Err(err).Msg("failed to open login session")
		_ = sock.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(config.WSWriteTimeout))
		_ = sock.Close()
		return
	}
	defer h.pairing.Close(ctx, session.SessionID)

	log.Debug().
		Str("sessionId", util.MaskID(session.SessionID)).
		Bool("referred", referredBy != "").
		Msg("login socket opened")

	for {
		_, frame, err := sock.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				log.Debug().Err(err).Str("sessionId", util.MaskID(session.SessionID)).Msg("login socket read ended")
			}
			return
		}

		reply := h.pairing.HandleFrame(ctx, session.SessionID, frame)
		if err := session.Conn.SendJSON(reply); err != nil {
			log.Debug().Err(err).Str("sessionId", util.MaskID(session.SessionID)).Msg("login socket write failed")
			return
		}
	}
}
