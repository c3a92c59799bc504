package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"stream-gateway/internal/api/middleware"
	"stream-gateway/internal/websocket"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type TriggerEventRequest struct {
	Kind    string         `json:"kind" binding:"required" example:"job_status_changed"`
	Topic   string         `json:"topic" binding:"required" example:"job_updates"`
	Payload map[string]any `json:"payload" binding:"required"`
}

// TriggerEventResponse echoes the event as it was broadcast.
type TriggerEventResponse struct {
	EventID     string         `json:"eventId"`
	Kind        string         `json:"kind"`
	Topic       string         `json:"topic"`
	Payload     map[string]any `json:"payload"`
	Timestamp   time.Time      `json:"timestamp"`
	TriggeredBy string         `json:"triggeredBy"`
	Deliveries  int            `json:"deliveries"`
}

type EventHandler struct {
	hub           *websocket.Hub
	topics        []string
	access        StreamAccess
	lookupTimeout time.Duration
}

// NewEventHandler accepts events for the given topics only, and only from
// callers granted the target stream.
func NewEventHandler(hub *websocket.Hub, topics []string, access StreamAccess, lookupTimeout time.Duration) *EventHandler {
	return &EventHandler{
		hub:           hub,
		topics:        topics,
		access:        access,
		lookupTimeout: lookupTimeout,
	}
}

// TriggerEvent godoc
// @Summary Broadcast an event
// @Description Validate a domain event and deliver it to every authenticated connection subscribed to its topic. The caller must be granted the topic.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TriggerEventRequest true "Event envelope"
// @Success 200 {object} TriggerEventResponse
// @Failure 400 {object} ErrorResponse "Invalid event"
// @Failure 401 {object} ErrorResponse "Missing, invalid or expired token"
// @Failure 403 {object} ErrorResponse "Caller may not publish to the topic"
// @Failure 429 {object} ErrorResponse "Rate limit exceeded"
// @Router /events/trigger [post]
func (h *EventHandler) TriggerEvent(c *gin.Context) {
	var req TriggerEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if !slices.Contains(h.topics, req.Topic) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_topic", Message: "unknown stream: " + req.Topic})
		return
	}
	userID := c.GetString(middleware.ContextUserID)
	if !canPublish(c, h.access, h.lookupTimeout, req.Topic) {
		slog.Warn("Event trigger denied", "userID", userID, "topic", req.Topic)
		forbidden(c, "no access to stream: "+req.Topic)
		return
	}

	result, err := h.hub.Publish(websocket.Event{Kind: req.Kind, Topic: req.Topic, Payload: req.Payload})
	if err != nil {
		if errors.Is(err, websocket.ErrInvalidEvent) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_event", Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "broadcast_failed"})
		return
	}

	slog.Info("Event triggered over HTTP", "userID", userID, "eventID", result.EventID, "topic", result.Topic, "deliveries", result.Deliveries)
	c.JSON(http.StatusOK, TriggerEventResponse{
		EventID:     result.EventID,
		Kind:        req.Kind,
		Topic:       result.Topic,
		Payload:     req.Payload,
		Timestamp:   result.Timestamp,
		TriggeredBy: userID,
		Deliveries:  result.Deliveries,
	})
}

// ListStreams godoc
// @Summary Known streams
// @Description Stream topics accepted by the trigger endpoint
// @Tags events
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /events/streams [get]
func (h *EventHandler) ListStreams(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"streams": h.topics})
}

