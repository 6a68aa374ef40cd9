package ws

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"trade-market/internal/observability"
)

const deviceIDHeader = "X-Device-Id"

// ConnInfo identifies a live connection in ws lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// newConnInfo describes the handshake of userID. The client IP honours the
// engine's trusted proxy settings.
func newConnInfo(c *gin.Context, userID int64, traceID string) ConnInfo {
	requestID := observability.RequestIDFromContext(c.Request.Context())
	if requestID == "" {
		requestID = c.GetHeader("X-Request-ID")
	}
	return ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    c.GetHeader(deviceIDHeader),
		IP:          c.ClientIP(),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}
