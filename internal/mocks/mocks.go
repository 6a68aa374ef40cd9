package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"trade-market/internal/models"
	"trade-market/internal/repositories"
	"trade-market/internal/services"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) UpsertUser(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) GetUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) FindConversationByPair(ctx context.Context, userA, userB int64) (models.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateConversation(ctx context.Context, senderID, recipientID int64) (models.Conversation, error) {
	args := m.Called(ctx, senderID, recipientID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListConversationsForUser(ctx context.Context, userID int64) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, conversationID, authorID int64, body string) (models.Message, error) {
	args := m.Called(ctx, conversationID, authorID, body)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListLatestMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type TradeRepositoryMock struct {
	mock.Mock
}

func (m *TradeRepositoryMock) CreateTrade(ctx context.Context, trade models.Trade) (models.Trade, error) {
	args := m.Called(ctx, trade)
	var out models.Trade
	if val := args.Get(0); val != nil {
		out = val.(models.Trade)
	}
	return out, args.Error(1)
}

func (m *TradeRepositoryMock) GetTrade(ctx context.Context, tradeID int64) (models.Trade, error) {
	args := m.Called(ctx, tradeID)
	var out models.Trade
	if val := args.Get(0); val != nil {
		out = val.(models.Trade)
	}
	return out, args.Error(1)
}

func (m *TradeRepositoryMock) GetTrades(ctx context.Context, tradeIDs []int64) ([]models.Trade, error) {
	args := m.Called(ctx, tradeIDs)
	var out []models.Trade
	if val := args.Get(0); val != nil {
		out = val.([]models.Trade)
	}
	return out, args.Error(1)
}

func (m *TradeRepositoryMock) ListTrades(ctx context.Context, ownerID int64) ([]models.Trade, error) {
	args := m.Called(ctx, ownerID)
	var out []models.Trade
	if val := args.Get(0); val != nil {
		out = val.([]models.Trade)
	}
	return out, args.Error(1)
}

func (m *TradeRepositoryMock) UpdateTrade(ctx context.Context, tradeID int64, changes repositories.TradeChanges) (models.Trade, []models.TradeImage, error) {
	args := m.Called(ctx, tradeID, changes)
	var out models.Trade
	if val := args.Get(0); val != nil {
		out = val.(models.Trade)
	}
	var removed []models.TradeImage
	if val := args.Get(1); val != nil {
		removed = val.([]models.TradeImage)
	}
	return out, removed, args.Error(2)
}

func (m *TradeRepositoryMock) DeleteTrade(ctx context.Context, tradeID int64) ([]models.TradeImage, error) {
	args := m.Called(ctx, tradeID)
	var out []models.TradeImage
	if val := args.Get(0); val != nil {
		out = val.([]models.TradeImage)
	}
	return out, args.Error(1)
}

type ConversationServiceMock struct {
	mock.Mock
}

func (m *ConversationServiceMock) FindOrCreate(ctx context.Context, senderID, recipientID int64) (models.ConversationView, error) {
	args := m.Called(ctx, senderID, recipientID)
	var view models.ConversationView
	if val := args.Get(0); val != nil {
		view = val.(models.ConversationView)
	}
	return view, args.Error(1)
}

func (m *ConversationServiceMock) ListForUser(ctx context.Context, userID int64) ([]models.ConversationView, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationView
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationView)
	}
	return list, args.Error(1)
}

func (m *ConversationServiceMock) Get(ctx context.Context, conversationID, viewerID int64) (models.ConversationView, error) {
	args := m.Called(ctx, conversationID, viewerID)
	var view models.ConversationView
	if val := args.Get(0); val != nil {
		view = val.(models.ConversationView)
	}
	return view, args.Error(1)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) Append(ctx context.Context, conversationID, authorID int64, body string) (models.MessageView, error) {
	args := m.Called(ctx, conversationID, authorID, body)
	var view models.MessageView
	if val := args.Get(0); val != nil {
		view = val.(models.MessageView)
	}
	return view, args.Error(1)
}

func (m *MessageServiceMock) List(ctx context.Context, conversationID, viewerID int64, showAll bool) (models.MessagePage, error) {
	args := m.Called(ctx, conversationID, viewerID, showAll)
	var page models.MessagePage
	if val := args.Get(0); val != nil {
		page = val.(models.MessagePage)
	}
	return page, args.Error(1)
}

type TradeServiceMock struct {
	mock.Mock
}

func (m *TradeServiceMock) Create(ctx context.Context, ownerID int64, in services.NewTrade) (models.TradeView, error) {
	args := m.Called(ctx, ownerID, in)
	var view models.TradeView
	if val := args.Get(0); val != nil {
		view = val.(models.TradeView)
	}
	return view, args.Error(1)
}

func (m *TradeServiceMock) Get(ctx context.Context, tradeID int64) (models.TradeView, error) {
	args := m.Called(ctx, tradeID)
	var view models.TradeView
	if val := args.Get(0); val != nil {
		view = val.(models.TradeView)
	}
	return view, args.Error(1)
}

func (m *TradeServiceMock) List(ctx context.Context, filter services.TradeFilter) ([]models.TradeView, error) {
	args := m.Called(ctx, filter)
	var list []models.TradeView
	if val := args.Get(0); val != nil {
		list = val.([]models.TradeView)
	}
	return list, args.Error(1)
}

func (m *TradeServiceMock) Update(ctx context.Context, tradeID, actorID int64, in services.TradeUpdate) (models.TradeView, error) {
	args := m.Called(ctx, tradeID, actorID, in)
	var view models.TradeView
	if val := args.Get(0); val != nil {
		view = val.(models.TradeView)
	}
	return view, args.Error(1)
}

func (m *TradeServiceMock) Delete(ctx context.Context, tradeID, actorID int64) error {
	args := m.Called(ctx, tradeID, actorID)
	return args.Error(0)
}

func (m *TradeServiceMock) OpenImage(ctx context.Context, tradeID, imageID int64) (io.ReadCloser, string, error) {
	args := m.Called(ctx, tradeID, imageID)
	var rc io.ReadCloser
	if val := args.Get(0); val != nil {
		rc = val.(io.ReadCloser)
	}
	return rc, args.String(1), args.Error(2)
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.TradeRepository = (*TradeRepositoryMock)(nil)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
