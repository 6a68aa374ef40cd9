package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"trade-market/internal/apperrors"
	"trade-market/internal/models"
)

// CreateTrade stores the trade record with its images embedded.
func (s *BadgerStore) CreateTrade(_ context.Context, trade models.Trade) (models.Trade, error) {
	id, err := s.nextID("trade")
	if err != nil {
		return models.Trade{}, err
	}
	now := time.Now().UTC()
	created := models.Trade{
		ID:          id,
		OwnerID:     trade.OwnerID,
		Title:       trade.Title,
		Description: trade.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created.Images, err = s.newImages(id, 0, trade.Images, now)
	if err != nil {
		return models.Trade{}, err
	}

	err = s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, fmt.Sprintf(userKeyFmt, trade.OwnerID))
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NotFound("user", trade.OwnerID)
		}
		return setJSON(txn, fmt.Sprintf(tradeKeyFmt, id), created)
	})
	if err != nil {
		return models.Trade{}, err
	}
	return created, nil
}

// GetTrade fetches a trade with its images.
func (s *BadgerStore) GetTrade(_ context.Context, tradeID int64) (models.Trade, error) {
	var trade models.Trade
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, fmt.Sprintf(tradeKeyFmt, tradeID), &trade)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Trade{}, apperrors.NotFound("trade", tradeID)
	}
	return trade, err
}

// GetTrades fetches the trades that still exist among tradeIDs.
func (s *BadgerStore) GetTrades(_ context.Context, tradeIDs []int64) ([]models.Trade, error) {
	trades := make([]models.Trade, 0, len(tradeIDs))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range tradeIDs {
			var t models.Trade
			err := getJSON(txn, fmt.Sprintf(tradeKeyFmt, id), &t)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			trades = append(trades, t)
		}
		return nil
	})
	return trades, err
}

// ListTrades returns trades newest first, restricted to one owner when ownerID is set.
func (s *BadgerStore) ListTrades(_ context.Context, ownerID int64) ([]models.Trade, error) {
	trades := []models.Trade{}
	err := s.db.View(func(txn *badger.Txn) error {
		return scanReverse(txn, tradePrefix, 0, func(_ []byte, item *badger.Item) error {
			return item.Value(func(val []byte) error {
				var t models.Trade
				if err := json.Unmarshal(val, &t); err != nil {
					return err
				}
				if ownerID == 0 || t.OwnerID == ownerID {
					trades = append(trades, t)
				}
				return nil
			})
		})
	})
	return trades, err
}

// UpdateTrade applies an owner's edit and returns the removed images.
func (s *BadgerStore) UpdateTrade(_ context.Context, tradeID int64, changes TradeChanges) (models.Trade, []models.TradeImage, error) {
	var (
		updated models.Trade
		removed []models.TradeImage
	)
	key := fmt.Sprintf(tradeKeyFmt, tradeID)
	err := s.update(func(txn *badger.Txn) error {
		var trade models.Trade
		if err := getJSON(txn, key, &trade); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperrors.NotFound("trade", tradeID)
			}
			return err
		}

		now := time.Now().UTC()
		drop := lo.SliceToMap(changes.RemoveImageIDs, func(id int64) (int64, struct{}) { return id, struct{}{} })
		kept, gone := lo.FilterReject(trade.Images, func(img models.TradeImage, _ int) bool {
			_, ok := drop[img.ID]
			return !ok
		})
		if err := checkImageLimit(len(kept)+len(changes.AddImages), changes.MaxImages); err != nil {
			return err
		}
		next := 0
		if len(trade.Images) > 0 {
			next = lo.MaxBy(trade.Images, func(a, b models.TradeImage) bool { return a.Position > b.Position }).Position + 1
		}
		added, err := s.newImages(tradeID, next, changes.AddImages, now)
		if err != nil {
			return err
		}

		trade.Title = changes.Title
		trade.Description = changes.Description
		trade.Images = append(kept, added...)
		trade.UpdatedAt = now
		updated, removed = trade, gone
		return setJSON(txn, key, trade)
	})
	if err != nil {
		return models.Trade{}, nil, err
	}
	return updated, removed, nil
}

// DeleteTrade removes the trade record and returns the images it owned.
func (s *BadgerStore) DeleteTrade(_ context.Context, tradeID int64) ([]models.TradeImage, error) {
	var images []models.TradeImage
	key := fmt.Sprintf(tradeKeyFmt, tradeID)
	err := s.update(func(txn *badger.Txn) error {
		var trade models.Trade
		if err := getJSON(txn, key, &trade); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperrors.NotFound("trade", tradeID)
			}
			return err
		}
		images = trade.Images
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (s *BadgerStore) newImages(tradeID int64, firstPosition int, images []models.TradeImage, now time.Time) ([]models.TradeImage, error) {
	out := make([]models.TradeImage, 0, len(images))
	for i, img := range images {
		id, err := s.nextID("trade_image")
		if err != nil {
			return nil, err
		}
		img.ID = id
		img.TradeID = tradeID
		img.Position = firstPosition + i
		img.CreatedAt = now
		out = append(out, img)
	}
	return out, nil
}
