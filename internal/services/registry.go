package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"trade-market/internal/apperrors"
	"trade-market/internal/models"
	"trade-market/internal/observability"
	"trade-market/internal/repositories"
)

// maxPairAttempts bounds how often a lost creation race repeats the lookup.
const maxPairAttempts = 5

// ConversationRegistry resolves the single conversation between two users.
type ConversationRegistry struct {
	conversations repositories.ConversationRepository
	users         *UserDirectory
	events        eventSink
	log           *slog.Logger
}

// NewConversationRegistry builds a ConversationRegistry.
func NewConversationRegistry(conversations repositories.ConversationRepository, users *UserDirectory, publisher EventPublisher, log *slog.Logger) *ConversationRegistry {
	return &ConversationRegistry{
		conversations: conversations,
		users:         users,
		events:        eventSink{publisher: publisher, log: log},
		log:           log,
	}
}

// FindOrCreate returns the conversation between sender and recipient in either
// direction, creating it with this orientation on first contact.
func (r *ConversationRegistry) FindOrCreate(ctx context.Context, senderID, recipientID int64) (models.ConversationView, error) {
	if err := validateStruct(pairInput{SenderID: senderID, RecipientID: recipientID}); err != nil {
		return models.ConversationView{}, err
	}
	if senderID == recipientID {
		return models.ConversationView{}, apperrors.NewValidationError("recipient_id", "cannot start a conversation with yourself")
	}

	for attempt := 1; ; attempt++ {
		conv, err := r.conversations.FindConversationByPair(ctx, senderID, recipientID)
		if err == nil {
			return r.view(ctx, conv)
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return models.ConversationView{}, fmt.Errorf("find conversation: %w", err)
		}

		conv, err = r.conversations.CreateConversation(ctx, senderID, recipientID)
		if err == nil {
			observability.IncConversationCreated()
			r.log.Info("conversation created", "conversation_id", conv.ID, "sender_id", senderID, "recipient_id", recipientID)
			view, err := r.view(ctx, conv)
			if err != nil {
				return models.ConversationView{}, err
			}
			r.events.emit(ctx, RoutingConversationCreated, "conversations", view)
			return view, nil
		}
		if !errors.Is(err, repositories.ErrPairConflict) {
			return models.ConversationView{}, err
		}
		observability.IncConversationConflict()
		if attempt >= maxPairAttempts {
			return models.ConversationView{}, fmt.Errorf("create conversation after %d attempts: %w", attempt, err)
		}
		r.log.Debug("conversation pair conflict, retrying lookup", "sender_id", senderID, "recipient_id", recipientID, "attempt", attempt)
	}
}

// ListForUser returns every conversation the user takes part in, newest first.
func (r *ConversationRegistry) ListForUser(ctx context.Context, userID int64) ([]models.ConversationView, error) {
	convs, err := r.conversations.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	ids := lo.FlatMap(convs, func(c models.Conversation, _ int) []int64 { return []int64{c.SenderID, c.RecipientID} })
	users, err := r.users.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}
	return lo.Map(convs, func(c models.Conversation, _ int) models.ConversationView {
		return models.ConversationView{Conversation: c, Sender: users[c.SenderID], Recipient: users[c.RecipientID]}
	}), nil
}

// Get returns the conversation when viewerID takes part in it.
func (r *ConversationRegistry) Get(ctx context.Context, conversationID, viewerID int64) (models.ConversationView, error) {
	conv, err := r.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return models.ConversationView{}, err
	}
	if !conv.HasParticipant(viewerID) {
		return models.ConversationView{}, apperrors.Forbidden("view conversation")
	}
	return r.view(ctx, conv)
}

func (r *ConversationRegistry) view(ctx context.Context, conv models.Conversation) (models.ConversationView, error) {
	users, err := r.users.Lookup(ctx, []int64{conv.SenderID, conv.RecipientID})
	if err != nil {
		return models.ConversationView{}, err
	}
	return models.ConversationView{Conversation: conv, Sender: users[conv.SenderID], Recipient: users[conv.RecipientID]}, nil
}
