package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trade-market/internal/apperrors"
	"trade-market/internal/mocks"
	"trade-market/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type broadcastRecorder struct {
	conversationID int64
	msg            models.MessageView
	calls          int
}

func (b *broadcastRecorder) BroadcastMessage(conversationID int64, msg models.MessageView) {
	b.conversationID, b.msg = conversationID, msg
	b.calls++
}

func setupConversationRouter(handler *ConversationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	handler.Register(r)
	return r
}

func TestListConversationsSuccess(t *testing.T) {
	convs := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(convs, new(mocks.MessageServiceMock), nil, testLogger()))

	convs.On("ListForUser", mock.Anything, int64(1)).Return([]models.ConversationView{{
		Conversation: models.Conversation{ID: 3, SenderID: 1, RecipientID: 2},
		Sender:       models.User{ID: 1, Name: "ann"},
		Recipient:    models.User{ID: 2, Name: "bob"},
	}}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationView `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "bob", resp.Conversations[0].Recipient.Name)
	convs.AssertExpectations(t)
}

func TestListConversationsServiceError(t *testing.T) {
	convs := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(convs, new(mocks.MessageServiceMock), nil, testLogger()))

	convs.On("ListForUser", mock.Anything, int64(1)).Return(nil, assert.AnError).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestStartConversationUsesCallerAsSender(t *testing.T) {
	convs := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(convs, new(mocks.MessageServiceMock), nil, testLogger()))

	convs.On("FindOrCreate", mock.Anything, int64(1), int64(9)).
		Return(models.ConversationView{Conversation: models.Conversation{ID: 5, SenderID: 1, RecipientID: 9}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewBufferString(`{"recipient_id":9}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ConversationView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(5), resp.ID)
	convs.AssertExpectations(t)
}

func TestStartConversationWithSelfIsUnprocessable(t *testing.T) {
	convs := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(convs, new(mocks.MessageServiceMock), nil, testLogger()))

	convs.On("FindOrCreate", mock.Anything, int64(1), int64(1)).
		Return(nil, apperrors.NewValidationError("recipient_id", "cannot start a conversation with yourself")).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewBufferString(`{"recipient_id":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "cannot start a conversation with yourself", resp.Fields["recipient_id"])
}

func TestStartConversationMissingRecipient(t *testing.T) {
	router := setupConversationRouter(NewConversationHandler(new(mocks.ConversationServiceMock), new(mocks.MessageServiceMock), nil, testLogger()))

	req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConversationForbidden(t *testing.T) {
	convs := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(convs, new(mocks.MessageServiceMock), nil, testLogger()))

	convs.On("Get", mock.Anything, int64(4), int64(1)).Return(nil, apperrors.Forbidden("view conversation")).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/4", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListMessagesPassesShowAll(t *testing.T) {
	msgs := new(mocks.MessageServiceMock)
	router := setupConversationRouter(NewConversationHandler(new(mocks.ConversationServiceMock), msgs, nil, testLogger()))

	msgs.On("List", mock.Anything, int64(4), int64(1), false).
		Return(models.MessagePage{Messages: []models.MessageView{{Message: models.Message{ID: 2, Body: "m2"}}}, Truncated: true}, nil).Once()
	msgs.On("List", mock.Anything, int64(4), int64(1), true).
		Return(models.MessagePage{Messages: []models.MessageView{{Message: models.Message{ID: 1, Body: "m1"}}, {Message: models.Message{ID: 2, Body: "m2"}}}}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/4/messages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.MessagePage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.True(t, page.Truncated)
	assert.Len(t, page.Messages, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/4/messages?all=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.False(t, page.Truncated)
	assert.Len(t, page.Messages, 2)

	msgs.AssertExpectations(t)
}

func TestListMessagesInvalidID(t *testing.T) {
	router := setupConversationRouter(NewConversationHandler(new(mocks.ConversationServiceMock), new(mocks.MessageServiceMock), nil, testLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/abc/messages", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageBroadcasts(t *testing.T) {
	msgs := new(mocks.MessageServiceMock)
	hub := &broadcastRecorder{}
	router := setupConversationRouter(NewConversationHandler(new(mocks.ConversationServiceMock), msgs, hub, testLogger()))

	stored := models.MessageView{Message: models.Message{ID: 11, ConversationID: 4, AuthorID: 1, Body: "hello"}}
	msgs.On("Append", mock.Anything, int64(4), int64(1), "hello").Return(stored, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/4/messages", bytes.NewBufferString(`{"body":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, hub.calls)
	assert.Equal(t, int64(4), hub.conversationID)
	assert.Equal(t, int64(11), hub.msg.ID)
	msgs.AssertExpectations(t)
}

func TestPostMessageBlankBodyIsNotBroadcast(t *testing.T) {
	msgs := new(mocks.MessageServiceMock)
	hub := &broadcastRecorder{}
	router := setupConversationRouter(NewConversationHandler(new(mocks.ConversationServiceMock), msgs, hub, testLogger()))

	msgs.On("Append", mock.Anything, int64(4), int64(1), "  ").Return(nil, apperrors.NewValidationError("body", "can't be blank")).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/4/messages", bytes.NewBufferString(`{"body":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Zero(t, hub.calls)
}

func TestPostMessageMissingConversation(t *testing.T) {
	msgs := new(mocks.MessageServiceMock)
	router := setupConversationRouter(NewConversationHandler(new(mocks.ConversationServiceMock), msgs, nil, testLogger()))

	msgs.On("Append", mock.Anything, int64(99), int64(1), "hi").Return(nil, apperrors.NotFound("conversation", 99)).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/99/messages", bytes.NewBufferString(`{"body":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
