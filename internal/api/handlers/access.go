package handlers

import (
	"context"
	"net/http"
	"time"

	"stream-gateway/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

const defaultLookupTimeout = 5 * time.Second

// StreamAccess answers role-to-stream questions for HTTP callers.
type StreamAccess interface {
	AvailableTopics(ctx context.Context, subjectID string) []string
	HasAccess(ctx context.Context, subjectID, topic string) bool
}

func lookupContext(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

// canPublish reports whether the authenticated caller is granted topic.
func canPublish(c *gin.Context, access StreamAccess, timeout time.Duration, topic string) bool {
	if access == nil {
		return false
	}
	ctx, cancel := lookupContext(c, timeout)
	defer cancel()
	return access.HasAccess(ctx, c.GetString(middleware.ContextUserID), topic)
}

// streamGrants resolves the streams the authenticated caller may read with a
// single permission lookup. Without an authorizer nothing is granted.
func streamGrants(c *gin.Context, access StreamAccess, timeout time.Duration) map[string]bool {
	granted := make(map[string]bool)
	if access == nil {
		return granted
	}
	ctx, cancel := lookupContext(c, timeout)
	defer cancel()

	for _, topic := range access.AvailableTopics(ctx, c.GetString(middleware.ContextUserID)) {
		granted[topic] = true
	}
	return granted
}

func forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: message})
}
