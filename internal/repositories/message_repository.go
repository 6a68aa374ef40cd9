package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"trade-market/internal/models"
)

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID, authorID int64, body string) (models.Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error)
	ListLatestMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, author_id, body, created_at`

// CreateMessage stores a message in a conversation.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID, authorID int64, body string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `INSERT INTO messages (conversation_id, author_id, body) VALUES ($1, $2, $3)
        RETURNING `+messageColumns, conversationID, authorID, body)
	if err != nil {
		return models.Message{}, translatePQ(err, "message")
	}
	return msg, nil
}

// ListMessages returns the whole history, oldest first.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1
        ORDER BY created_at ASC, id ASC`, conversationID)
	return msgs, err
}

// ListLatestMessages returns at most limit of the newest messages, oldest first.
func (r *MessageRepo) ListLatestMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM (
            SELECT `+messageColumns+` FROM messages
            WHERE conversation_id=$1
            ORDER BY created_at DESC, id DESC
            LIMIT $2
        ) latest
        ORDER BY created_at ASC, id ASC`, conversationID, limit)
	return msgs, err
}
