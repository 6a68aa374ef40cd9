package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"trade-market/internal/apperrors"
	"trade-market/internal/models"
	"trade-market/internal/observability"
	"trade-market/internal/repositories"
)

// DefaultHistoryWindow is how many trailing messages a default read returns.
const DefaultHistoryWindow = 10

// Renderer turns user-authored markdown into safe HTML.
type Renderer interface {
	Render(text string) string
}

// MessageFeed appends to and reads conversation histories.
type MessageFeed struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         *UserDirectory
	renderer      Renderer
	events        eventSink
	window        int
	log           *slog.Logger
}

// NewMessageFeed builds a MessageFeed. A non-positive window falls back to DefaultHistoryWindow.
func NewMessageFeed(conversations repositories.ConversationRepository, messages repositories.MessageRepository, users *UserDirectory, renderer Renderer, publisher EventPublisher, window int, log *slog.Logger) *MessageFeed {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &MessageFeed{
		conversations: conversations,
		messages:      messages,
		users:         users,
		renderer:      renderer,
		events:        eventSink{publisher: publisher, log: log},
		window:        window,
		log:           log,
	}
}

// Window reports the configured history window.
func (f *MessageFeed) Window() int {
	return f.window
}

// Append stores a message from a participant of the conversation.
func (f *MessageFeed) Append(ctx context.Context, conversationID, authorID int64, body string) (models.MessageView, error) {
	body = strings.TrimSpace(body)
	if err := validateStruct(messageInput{ConversationID: conversationID, AuthorID: authorID, Body: body}); err != nil {
		return models.MessageView{}, err
	}

	if _, err := f.memberConversation(ctx, conversationID, authorID, "post message"); err != nil {
		return models.MessageView{}, err
	}

	msg, err := f.messages.CreateMessage(ctx, conversationID, authorID, body)
	if err != nil {
		return models.MessageView{}, fmt.Errorf("create message: %w", err)
	}
	observability.IncMessageAppended()

	views, err := f.hydrate(ctx, []models.Message{msg})
	if err != nil {
		return models.MessageView{}, err
	}
	f.events.emit(ctx, RoutingMessageCreated, "messages", views[0])
	return views[0], nil
}

// List returns the history oldest first. Unless showAll is set only the last
// window messages are returned and Truncated reports that older ones exist.
func (f *MessageFeed) List(ctx context.Context, conversationID, viewerID int64, showAll bool) (models.MessagePage, error) {
	if _, err := f.memberConversation(ctx, conversationID, viewerID, "read messages"); err != nil {
		return models.MessagePage{}, err
	}

	var (
		msgs []models.Message
		err  error
	)
	if showAll {
		msgs, err = f.messages.ListMessages(ctx, conversationID)
	} else {
		msgs, err = f.messages.ListLatestMessages(ctx, conversationID, f.window+1)
	}
	if err != nil {
		return models.MessagePage{}, fmt.Errorf("list messages: %w", err)
	}

	truncated := !showAll && len(msgs) > f.window
	if truncated {
		msgs = msgs[len(msgs)-f.window:]
	}

	views, err := f.hydrate(ctx, msgs)
	if err != nil {
		return models.MessagePage{}, err
	}
	return models.MessagePage{Messages: views, Truncated: truncated}, nil
}

func (f *MessageFeed) memberConversation(ctx context.Context, conversationID, userID int64, action string) (models.Conversation, error) {
	conv, err := f.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, apperrors.Forbidden(action)
	}
	return conv, nil
}

func (f *MessageFeed) hydrate(ctx context.Context, msgs []models.Message) ([]models.MessageView, error) {
	authors, err := f.users.Lookup(ctx, lo.Map(msgs, func(m models.Message, _ int) int64 { return m.AuthorID }))
	if err != nil {
		return nil, err
	}
	return lo.Map(msgs, func(m models.Message, _ int) models.MessageView {
		return models.MessageView{Message: m, Author: authors[m.AuthorID], BodyHTML: f.renderer.Render(m.Body)}
	}), nil
}
