package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"trade-market/internal/models"
)

// UpsertUser inserts the user or refreshes its name and email. An unchanged
// user is not rewritten, so repeated logins do not contend on its key.
func (s *BadgerStore) UpsertUser(_ context.Context, user models.User) (models.User, error) {
	key := fmt.Sprintf(userKeyFmt, user.ID)
	var out models.User
	err := s.update(func(txn *badger.Txn) error {
		now := time.Now().UTC()
		var current models.User
		switch err := getJSON(txn, key, &current); {
		case errors.Is(err, badger.ErrKeyNotFound):
			current = models.User{ID: user.ID, CreatedAt: now}
		case err != nil:
			return err
		case current.Name == user.Name && current.Email == user.Email:
			out = current
			return nil
		}
		current.Name = user.Name
		current.Email = user.Email
		current.UpdatedAt = now
		out = current
		return setJSON(txn, key, current)
	})
	return out, err
}

// GetUsers fetches the users that exist among ids; unknown ids are skipped.
func (s *BadgerStore) GetUsers(_ context.Context, ids []int64) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var u models.User
			err := getJSON(txn, fmt.Sprintf(userKeyFmt, id), &u)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users = append(users, u)
		}
		return nil
	})
	return users, err
}
