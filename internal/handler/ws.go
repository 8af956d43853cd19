package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/polychat/chat-platform/internal/dispatch"
	"github.com/polychat/chat-platform/internal/middleware"
	"github.com/polychat/chat-platform/internal/realtime"
	"github.com/polychat/chat-platform/internal/registry"
	"github.com/polychat/chat-platform/pkg/logger"
)

const (
	maxFrameSize = 64 * 1024
	pongWait     = 60 * time.Second
)

// WSHandler upgrades authenticated requests to WebSocket connections and
// feeds inbound frames to the dispatcher.
type WSHandler struct {
	hub        *realtime.Hub
	registry   registry.Registry
	dispatcher *dispatch.Dispatcher
	logger     *logger.Logger
	upgrader   websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(hub *realtime.Hub, reg registry.Registry, dispatcher *dispatch.Dispatcher, log *logger.Logger) *WSHandler {
	return &WSHandler{
		hub:        hub,
		registry:   reg,
		dispatcher: dispatcher,
		logger:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /ws.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	conn := realtime.NewConnection(userID, ws)
	h.hub.Attach(conn)
	if err := h.registry.Register(r.Context(), userID, conn.ID); err != nil {
		h.logger.Warn("failed to register connection",
			zap.String("connection_id", conn.ID), zap.Error(err))
	}
	h.logger.Info("websocket connected",
		zap.String("user_id", userID), zap.String("connection_id", conn.ID))

	go h.readLoop(conn, ws)
}

// readLoop consumes inbound frames until the peer goes away. Every frame
// refreshes the connection's registry lease alongside the read deadline.
func (h *WSHandler) readLoop(conn *realtime.Connection, ws *websocket.Conn) {
	defer func() {
		h.hub.Detach(conn.ID)
		if err := h.registry.Unregister(context.Background(), conn.ID); err != nil {
			h.logger.Warn("failed to unregister connection",
				zap.String("connection_id", conn.ID), zap.Error(err))
		}
		conn.Close(websocket.CloseNormalClosure, "")
		h.logger.Info("websocket disconnected",
			zap.String("user_id", conn.UserID), zap.String("connection_id", conn.ID))
	}()

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		// A silent reader stays alive through ping/pong alone, so pongs
		// must refresh the registry lease too or it expires mid-session.
		if err := h.registry.Register(context.Background(), conn.UserID, conn.ID); err != nil {
			h.logger.Warn("failed to refresh connection lease",
				zap.String("connection_id", conn.ID), zap.Error(err))
		}
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read error",
					zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}

		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		if err := h.registry.Register(context.Background(), conn.UserID, conn.ID); err != nil {
			h.logger.Warn("failed to refresh connection lease",
				zap.String("connection_id", conn.ID), zap.Error(err))
		}

		h.dispatcher.Dispatch(context.Background(), conn.UserID, data)
	}
}
