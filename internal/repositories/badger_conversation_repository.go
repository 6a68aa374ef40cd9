package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"trade-market/internal/apperrors"
	"trade-market/internal/models"
)

// FindConversationByPair resolves the canonical pair key to its conversation.
func (s *BadgerStore) FindConversationByPair(_ context.Context, userA, userB int64) (models.Conversation, error) {
	low, high := models.CanonicalPair(userA, userB)
	var conv models.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fmt.Sprintf(pairKeyFmt, low, high)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt pair key: %w", err)
		}
		return getJSON(txn, fmt.Sprintf(conversationKeyFmt, id), &conv)
	})
	return conv, err
}

// CreateConversation writes the conversation, its pair key and both user
// indexes in one transaction. Losing a race on the pair key yields ErrPairConflict.
func (s *BadgerStore) CreateConversation(_ context.Context, senderID, recipientID int64) (models.Conversation, error) {
	id, err := s.nextID("conversation")
	if err != nil {
		return models.Conversation{}, err
	}
	low, high := models.CanonicalPair(senderID, recipientID)
	pairKey := fmt.Sprintf(pairKeyFmt, low, high)
	conv := models.Conversation{ID: id, SenderID: senderID, RecipientID: recipientID, CreatedAt: time.Now().UTC()}

	err = s.db.Update(func(txn *badger.Txn) error {
		taken, err := exists(txn, pairKey)
		if err != nil {
			return err
		}
		if taken {
			return ErrPairConflict
		}
		for _, userID := range []int64{senderID, recipientID} {
			ok, err := exists(txn, fmt.Sprintf(userKeyFmt, userID))
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.NotFound("user", userID)
			}
		}
		if err := setJSON(txn, fmt.Sprintf(conversationKeyFmt, id), conv); err != nil {
			return err
		}
		if err := txn.Set([]byte(pairKey), []byte(strconv.FormatInt(id, 10))); err != nil {
			return err
		}
		if err := txn.Set([]byte(fmt.Sprintf(userConvKeyFmt, senderID, id)), nil); err != nil {
			return err
		}
		return txn.Set([]byte(fmt.Sprintf(userConvKeyFmt, recipientID, id)), nil)
	})
	if errors.Is(err, badger.ErrConflict) {
		return models.Conversation{}, ErrPairConflict
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// GetConversation fetches a conversation by id.
func (s *BadgerStore) GetConversation(_ context.Context, conversationID int64) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, fmt.Sprintf(conversationKeyFmt, conversationID), &conv)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Conversation{}, apperrors.NotFound("conversation", conversationID)
	}
	return conv, err
}

// ListConversationsForUser walks the user index newest first.
func (s *BadgerStore) ListConversationsForUser(_ context.Context, userID int64) ([]models.Conversation, error) {
	convs := []models.Conversation{}
	prefix := fmt.Sprintf(userConvPrefixFmt, userID)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanReverse(txn, prefix, 0, func(key []byte, _ *badger.Item) error {
			id, err := strconv.ParseInt(string(key[len(prefix):]), 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt conversation index: %w", err)
			}
			var conv models.Conversation
			if err := getJSON(txn, fmt.Sprintf(conversationKeyFmt, id), &conv); err != nil {
				return err
			}
			convs = append(convs, conv)
			return nil
		})
	})
	return convs, err
}
