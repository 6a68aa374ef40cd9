// Package search keeps a full-text index of trade titles and descriptions.
package search

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blugelabs/bluge"

	"trade-market/internal/models"
)

const idField = "_id"

// TradeIndex is a bluge index keyed by trade id.
type TradeIndex struct {
	writer *bluge.Writer
}

// OpenTradeIndex opens or creates the index at path.
func OpenTradeIndex(path string) (*TradeIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("open trade index: %w", err)
	}
	return &TradeIndex{writer: writer}, nil
}

// Index adds or replaces the document for a trade.
func (i *TradeIndex) Index(trade models.Trade) error {
	doc := bluge.NewDocument(strconv.FormatInt(trade.ID, 10)).
		AddField(bluge.NewTextField("title", trade.Title)).
		AddField(bluge.NewTextField("description", trade.Description)).
		AddField(bluge.NewKeywordField("owner_id", strconv.FormatInt(trade.OwnerID, 10)))
	return i.writer.Update(doc.ID(), doc)
}

// Remove drops the document for a trade.
func (i *TradeIndex) Remove(tradeID int64) error {
	return i.writer.Delete(bluge.Identifier(strconv.FormatInt(tradeID, 10)))
}

// Search returns trade ids matching text in title or description, best first.
func (i *TradeIndex) Search(ctx context.Context, text string, limit int) ([]int64, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	query := bluge.NewBooleanQuery().
		AddShould(bluge.NewMatchQuery(text).SetField("title").SetBoost(2)).
		AddShould(bluge.NewMatchQuery(text).SetField("description")).
		SetMinShould(1)

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	ids := []int64{}
	match, err := matches.Next()
	for err == nil && match != nil {
		var parseErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field != idField {
				return true
			}
			id, perr := strconv.ParseInt(string(value), 10, 64)
			if perr != nil {
				parseErr = fmt.Errorf("corrupt trade id %q: %w", value, perr)
				return false
			}
			ids = append(ids, id)
			return false
		})
		if err == nil {
			err = parseErr
		}
		if err != nil {
			break
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Close flushes and closes the index.
func (i *TradeIndex) Close() error {
	return i.writer.Close()
}
