package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"stream-gateway/internal/api/middleware"
	"stream-gateway/internal/websocket"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
)

// PresenceReader lists subjects online across every gateway instance.
type PresenceReader interface {
	GetOnlineSubjects(ctx context.Context) ([]string, error)
}

// ConnectionsResponse is the local registry snapshot plus, when shared
// presence is configured, the subjects online cluster-wide.
type ConnectionsResponse struct {
	websocket.ConnectionStats
	OnlineSubjects []string `json:"onlineSubjects,omitempty"`
}

type StreamHandler struct {
	hub           *websocket.Hub
	upgrader      *gorilla.Upgrader
	access        StreamAccess
	lookupTimeout time.Duration
	topics        []string
	presence      PresenceReader
}

// NewStreamHandler serves the stream endpoints. Connection statistics are
// restricted to callers granted every stream in topics. presence may be nil.
func NewStreamHandler(hub *websocket.Hub, upgrader *gorilla.Upgrader, access StreamAccess, lookupTimeout time.Duration, topics []string, presence PresenceReader) *StreamHandler {
	return &StreamHandler{
		hub:           hub,
		upgrader:      upgrader,
		access:        access,
		lookupTimeout: lookupTimeout,
		topics:        topics,
		presence:      presence,
	}
}

// HandleWebSocket godoc
// @Summary Event stream connection
// @Description Upgrade to a WebSocket. The server sends auth_required; the client must reply with an authenticate message carrying its bearer token, then subscribe to streams.
// @Tags stream
// @Success 101 "Switching Protocols - WebSocket connection established"
// @Failure 400 {object} ErrorResponse "Not a WebSocket handshake or origin not allowed"
// @Router /stream [get]
func (h *StreamHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		slog.Warn("WebSocket upgrade failed", "clientIP", c.ClientIP(), "origin", c.GetHeader("Origin"), "error", err)
		return
	}

	connectionID, err := h.hub.Accept(conn)
	if err != nil {
		// the hub has stopped and already closed the socket with 1001
		slog.Warn("WebSocket rejected", "clientIP", c.ClientIP(), "error", err)
		return
	}
	slog.Debug("WebSocket upgrade success", "connectionID", connectionID, "clientIP", c.ClientIP())
}

// GetConnections godoc
// @Summary Connection statistics
// @Description Totals and a per-connection snapshot of the gateway registry. Requires access to every stream.
// @Tags stream
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ConnectionsResponse
// @Failure 401 {object} ErrorResponse "Missing, invalid or expired token"
// @Failure 403 {object} ErrorResponse "Caller lacks access to one or more streams"
// @Router /stream/connections [get]
func (h *StreamHandler) GetConnections(c *gin.Context) {
	granted := streamGrants(c, h.access, h.lookupTimeout)
	for _, topic := range h.topics {
		if !granted[topic] {
			slog.Warn("Connection statistics denied", "userID", c.GetString(middleware.ContextUserID), "missing", topic)
			forbidden(c, "connection statistics require access to every stream")
			return
		}
	}

	resp := ConnectionsResponse{ConnectionStats: h.hub.Stats()}
	if h.presence != nil {
		subjects, err := h.presence.GetOnlineSubjects(c.Request.Context())
		if err != nil {
			slog.Warn("Failed to read shared presence", "error", err)
		} else {
			resp.OnlineSubjects = subjects
		}
	}
	c.JSON(http.StatusOK, resp)
}
