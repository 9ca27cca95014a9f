package handler

import (
	"context"
	"net/http"
	"time"

	"script_console/internal/api/middleware"
	"script_console/internal/app/execution"
	"script_console/internal/common"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketHandler streams status events to connected observers.
type WebSocketHandler struct {
	hub           *execution.Hub
	logger        *zap.Logger
	frameInterval time.Duration
}

// NewWebSocketHandler paces each connection to one batch of frames per
// frameInterval; zero disables pacing. Events that arrive while a connection
// waits are coalesced by its subscription.
func NewWebSocketHandler(hub *execution.Hub, logger *zap.Logger, frameInterval time.Duration) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger, frameInterval: frameInterval}
}

func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !middleware.SessionFromContext(r.Context()).IsAuthenticated() {
		common.RespondWithErr(w, common.ErrUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection", zap.Error(err))
		return
	}

	sub := h.hub.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	readerDone := make(chan struct{})

	h.logger.Debug("websocket client connected", zap.Int("subscribers", h.hub.Subscribers()))

	defer func() {
		sub.Close()
		cancel()
		conn.Close()
		<-readerDone
		h.logger.Debug("websocket client disconnected", zap.Int("subscribers", h.hub.Subscribers()))
	}()

	// Read messages from client to notice disconnects and answer pings.
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Warn("websocket read error", zap.Error(err))
				}
				return
			}
		}
	}()

	var limiter *rate.Limiter
	if h.frameInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(h.frameInterval), 1)
	}
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-sub.Ready():
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}
			for _, ev := range sub.Drain() {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(WSMessage{Type: "scriptStatus", Payload: ev}); err != nil {
					h.logger.Debug("websocket write failed", zap.Error(err))
					return
				}
			}
		}
	}
}
