package websocket

import (
	"context"
	"log/slog"
)

// lookupContext bounds an authorizer call by the connection's lifetime and the
// configured lookup timeout.
func (h *Hub) lookupContext(c *Connection) (context.Context, context.CancelFunc) {
	if h.settings.AuthzTimeout > 0 {
		return context.WithTimeout(c.ctx, h.settings.AuthzTimeout)
	}
	return context.WithCancel(c.ctx)
}

// authenticate validates token and, on success, moves c to the authenticated
// state and replies with the subject's available streams. A rejected token
// leaves the connection open so the client can retry.
func (h *Hub) authenticate(c *Connection, token string) {
	if c.IsAuthenticated() {
		c.sendMessage(NewErrorMessage("Already authenticated"))
		return
	}

	result := h.validator.Validate(token)
	if !result.Valid {
		if result.Expired {
			h.metrics.AuthAttempts.WithLabelValues(AuthResultExpired).Inc()
			slog.Info("Authentication rejected: token expired", "connectionID", c.id)
			c.sendMessage(NewAuthErrorMessage("Token expired"))
			return
		}
		h.metrics.AuthAttempts.WithLabelValues(AuthResultInvalid).Inc()
		slog.Info("Authentication rejected: invalid token", "connectionID", c.id)
		c.sendMessage(NewAuthErrorMessage("Invalid token"))
		return
	}

	ctx, cancel := h.lookupContext(c)
	topics := h.authorizer.AvailableTopics(ctx, result.SubjectID)
	cancel()

	// The connection may have been evicted while the lookup was in flight.
	if !h.isLive(c) {
		slog.Debug("Discarding authentication for closed connection", "connectionID", c.id)
		return
	}
	if !c.markAuthenticated(result.SubjectID, result.ExpiresAt) {
		return
	}

	h.metrics.AuthAttempts.WithLabelValues(AuthResultSuccess).Inc()
	h.metrics.AuthenticatedConnections.Inc()
	slog.Info("Connection authenticated", "connectionID", c.id, "userID", result.SubjectID, "streams", len(topics))

	c.sendMessage(NewAuthSuccessMessage(c.id, result.SubjectID, topics, result.ExpiresAt))
	h.emit(LifecycleEvent{
		ConnectionID: c.id,
		UserID:       result.SubjectID,
		Action:       ActionAuthenticated,
		Timestamp:    h.clock.Now(),
	})
}
