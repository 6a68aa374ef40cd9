package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"trade-market/internal/apperrors"
	"trade-market/internal/models"
)

// CreateMessage appends a message under its conversation prefix.
func (s *BadgerStore) CreateMessage(_ context.Context, conversationID, authorID int64, body string) (models.Message, error) {
	id, err := s.nextID("message")
	if err != nil {
		return models.Message{}, err
	}
	msg := models.Message{ID: id, ConversationID: conversationID, AuthorID: authorID, Body: body, CreatedAt: time.Now().UTC()}

	err = s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, fmt.Sprintf(conversationKeyFmt, conversationID))
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NotFound("conversation", conversationID)
		}
		ok, err = exists(txn, fmt.Sprintf(userKeyFmt, authorID))
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NotFound("user", authorID)
		}
		return setJSON(txn, fmt.Sprintf(messageKeyFmt, conversationID, id), msg)
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListMessages returns the whole history, oldest first.
func (s *BadgerStore) ListMessages(_ context.Context, conversationID int64) ([]models.Message, error) {
	return s.latestMessages(conversationID, 0)
}

// ListLatestMessages returns at most limit of the newest messages, oldest first.
func (s *BadgerStore) ListLatestMessages(_ context.Context, conversationID int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}
	return s.latestMessages(conversationID, limit)
}

func (s *BadgerStore) latestMessages(conversationID int64, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.View(func(txn *badger.Txn) error {
		return scanReverse(txn, fmt.Sprintf(messagePrefixFmt, conversationID), limit, func(_ []byte, item *badger.Item) error {
			return item.Value(func(val []byte) error {
				var m models.Message
				if err := json.Unmarshal(val, &m); err != nil {
					return err
				}
				msgs = append(msgs, m)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
