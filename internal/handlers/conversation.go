package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trade-market/internal/models"
)

// ConversationService is implemented by services.ConversationRegistry.
type ConversationService interface {
	FindOrCreate(ctx context.Context, senderID, recipientID int64) (models.ConversationView, error)
	ListForUser(ctx context.Context, userID int64) ([]models.ConversationView, error)
	Get(ctx context.Context, conversationID, viewerID int64) (models.ConversationView, error)
}

// MessageService is implemented by services.MessageFeed.
type MessageService interface {
	Append(ctx context.Context, conversationID, authorID int64, body string) (models.MessageView, error)
	List(ctx context.Context, conversationID, viewerID int64, showAll bool) (models.MessagePage, error)
}

// Broadcaster pushes new messages to live subscribers.
type Broadcaster interface {
	BroadcastMessage(conversationID int64, msg models.MessageView)
}

// ConversationHandler manages conversation and message endpoints.
type ConversationHandler struct {
	conversations ConversationService
	messages      MessageService
	hub           Broadcaster
	log           *slog.Logger
}

// NewConversationHandler builds a ConversationHandler. hub may be nil.
func NewConversationHandler(conversations ConversationService, messages MessageService, hub Broadcaster, log *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		hub:           hub,
		log:           log,
	}
}

// Register mounts the conversation routes on an authenticated group.
func (h *ConversationHandler) Register(r gin.IRoutes) {
	r.GET("/conversations", h.ListConversations)
	r.POST("/conversations", h.StartConversation)
	r.GET("/conversations/:conversation_id", h.GetConversation)
	r.GET("/conversations/:conversation_id/messages", h.ListMessages)
	r.POST("/conversations/:conversation_id/messages", h.PostMessage)
}

// ListConversations returns the caller's conversations, newest first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt64("userID")

	convs, err := h.conversations.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// StartConversation finds or creates the conversation between the caller and a recipient.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		RecipientID int64 `json:"recipient_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.conversations.FindOrCreate(c.Request.Context(), c.GetInt64("userID"), req.RecipientID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// GetConversation returns one conversation of the caller.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conversationID, ok := parseID(c, "conversation_id", "conversation")
	if !ok {
		return
	}

	conv, err := h.conversations.Get(c.Request.Context(), conversationID, c.GetInt64("userID"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ListMessages returns the trailing window of the history, or all of it with ?all=true.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	conversationID, ok := parseID(c, "conversation_id", "conversation")
	if !ok {
		return
	}
	showAll, _ := strconv.ParseBool(c.DefaultQuery("all", "false"))

	page, err := h.messages.List(c.Request.Context(), conversationID, c.GetInt64("userID"), showAll)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// PostMessage stores a message and broadcasts it.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	conversationID, ok := parseID(c, "conversation_id", "conversation")
	if !ok {
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.Append(c.Request.Context(), conversationID, c.GetInt64("userID"), req.Body)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastMessage(conversationID, msg)
	}
	c.JSON(http.StatusCreated, msg)
}
