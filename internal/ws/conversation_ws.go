package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"trade-market/internal/apperrors"
	"trade-market/internal/auth"
	"trade-market/internal/models"
)

// ConversationReader resolves a conversation for a viewer, enforcing membership.
type ConversationReader interface {
	Get(ctx context.Context, conversationID, viewerID int64) (models.ConversationView, error)
}

// ConversationWebSocketHandler streams new messages of one conversation.
type ConversationWebSocketHandler struct {
	hub           *Hub
	conversations ConversationReader
	verifier      *auth.Verifier
	log           *slog.Logger
}

// NewConversationWebSocketHandler constructs a ConversationWebSocketHandler.
func NewConversationWebSocketHandler(hub *Hub, conversations ConversationReader, verifier *auth.Verifier, log *slog.Logger) *ConversationWebSocketHandler {
	return &ConversationWebSocketHandler{hub: hub, conversations: conversations, verifier: verifier, log: log}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, checks membership, upgrades and registers the client.
func (h *ConversationWebSocketHandler) Handle(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("trade-market/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if _, err := h.conversations.Get(ctx, conversationID, userID); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		case errors.Is(err, apperrors.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for conversation"})
		default:
			h.log.Error("websocket membership check failed", "conversation_id", conversationID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := newConnInfo(c, userID, span.SpanContext().TraceID().String())
	h.hub.AddClient(conversationID, conn, info)
	h.hub.publishWSEvent(context.Background(), "ws_connect", conversationID, info, "")

	// Reads only detect the close; clients do not send messages over the socket.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				removed := h.hub.RemoveClient(conversationID, conn)
				if removed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.hub.publishWSEvent(context.Background(), "ws_error", conversationID, info, err.Error())
				}
				h.hub.publishWSEvent(context.Background(), "ws_disconnect", conversationID, info, err.Error())
				conn.Close()
				return
			}
		}
	}()
}

func (h *ConversationWebSocketHandler) authenticate(c *gin.Context) (int64, error) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	if token == "" {
		return 0, auth.ErrInvalidToken
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}
