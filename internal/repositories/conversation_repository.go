package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"trade-market/internal/apperrors"
	"trade-market/internal/models"
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	FindConversationByPair(ctx context.Context, userA, userB int64) (models.Conversation, error)
	CreateConversation(ctx context.Context, senderID, recipientID int64) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID int64) ([]models.Conversation, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, sender_id, recipient_id, created_at`

// FindConversationByPair returns the conversation between two users in either direction.
func (r *ConversationRepo) FindConversationByPair(ctx context.Context, userA, userB int64) (models.Conversation, error) {
	low, high := models.CanonicalPair(userA, userB)
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations
        WHERE LEAST(sender_id, recipient_id)=$1 AND GREATEST(sender_id, recipient_id)=$2
        ORDER BY created_at ASC, id ASC LIMIT 1`, low, high)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, apperrors.ErrNotFound
	}
	return conv, err
}

// CreateConversation inserts a conversation. A concurrent insert for the same
// pair surfaces as ErrPairConflict through the unique pair index.
func (r *ConversationRepo) CreateConversation(ctx context.Context, senderID, recipientID int64) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `INSERT INTO conversations (sender_id, recipient_id) VALUES ($1, $2)
        RETURNING `+conversationColumns, senderID, recipientID)
	if err != nil {
		return models.Conversation{}, translatePQ(err, "conversation")
	}
	return conv, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, apperrors.NotFound("conversation", conversationID)
	}
	return conv, err
}

// ListConversationsForUser returns the user's conversations, newest first.
func (r *ConversationRepo) ListConversationsForUser(ctx context.Context, userID int64) ([]models.Conversation, error) {
	convs := []models.Conversation{}
	err := r.db.SelectContext(ctx, &convs, `SELECT `+conversationColumns+` FROM conversations
        WHERE sender_id=$1 OR recipient_id=$1
        ORDER BY created_at DESC, id DESC`, userID)
	return convs, err
}
