package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"trade-market/internal/apperrors"
	"trade-market/internal/models"
)

// TradeChanges describes an owner's edit of a trade.
type TradeChanges struct {
	Title          string
	Description    string
	AddImages      []models.TradeImage
	RemoveImageIDs []int64
	// MaxImages bounds the image count after the edit; zero means no bound.
	MaxImages int
}

func checkImageLimit(count, limit int) error {
	if limit > 0 && count > limit {
		return apperrors.NewValidationError("images", fmt.Sprintf("at most %d images per trade", limit))
	}
	return nil
}

// TradeRepository abstracts trade and trade image persistence.
type TradeRepository interface {
	CreateTrade(ctx context.Context, trade models.Trade) (models.Trade, error)
	GetTrade(ctx context.Context, tradeID int64) (models.Trade, error)
	GetTrades(ctx context.Context, tradeIDs []int64) ([]models.Trade, error)
	ListTrades(ctx context.Context, ownerID int64) ([]models.Trade, error)
	UpdateTrade(ctx context.Context, tradeID int64, changes TradeChanges) (models.Trade, []models.TradeImage, error)
	DeleteTrade(ctx context.Context, tradeID int64) ([]models.TradeImage, error)
}

// TradeRepo is a sqlx implementation of TradeRepository.
type TradeRepo struct {
	db *sqlx.DB
}

// NewTradeRepo constructs a TradeRepo.
func NewTradeRepo(db *sqlx.DB) *TradeRepo {
	return &TradeRepo{db: db}
}

const (
	tradeColumns = `id, owner_id, title, description, created_at, updated_at`
	imageColumns = `id, trade_id, position, storage_key, content_type, size_bytes, created_at`
)

// CreateTrade inserts the trade and its images atomically.
func (r *TradeRepo) CreateTrade(ctx context.Context, trade models.Trade) (models.Trade, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Trade{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var created models.Trade
	if err = tx.GetContext(ctx, &created, `INSERT INTO trades (owner_id, title, description) VALUES ($1, $2, $3)
        RETURNING `+tradeColumns, trade.OwnerID, trade.Title, trade.Description); err != nil {
		return models.Trade{}, translatePQ(err, "trade")
	}

	created.Images = make([]models.TradeImage, 0, len(trade.Images))
	for i, img := range trade.Images {
		var stored models.TradeImage
		if err = tx.GetContext(ctx, &stored, `INSERT INTO trade_images (trade_id, position, storage_key, content_type, size_bytes)
            VALUES ($1, $2, $3, $4, $5) RETURNING `+imageColumns, created.ID, i, img.StorageKey, img.ContentType, img.Size); err != nil {
			return models.Trade{}, err
		}
		created.Images = append(created.Images, stored)
	}

	if err = tx.Commit(); err != nil {
		return models.Trade{}, err
	}
	return created, nil
}

// GetTrade fetches a trade with its images.
func (r *TradeRepo) GetTrade(ctx context.Context, tradeID int64) (models.Trade, error) {
	var trade models.Trade
	err := r.db.GetContext(ctx, &trade, `SELECT `+tradeColumns+` FROM trades WHERE id=$1`, tradeID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Trade{}, apperrors.NotFound("trade", tradeID)
	}
	if err != nil {
		return models.Trade{}, err
	}
	trades := []models.Trade{trade}
	if err := attachImages(ctx, r.db, trades); err != nil {
		return models.Trade{}, err
	}
	return trades[0], nil
}

// GetTrades fetches the trades that still exist among tradeIDs.
func (r *TradeRepo) GetTrades(ctx context.Context, tradeIDs []int64) ([]models.Trade, error) {
	trades := []models.Trade{}
	if len(tradeIDs) == 0 {
		return trades, nil
	}
	if err := r.db.SelectContext(ctx, &trades, `SELECT `+tradeColumns+` FROM trades WHERE id = ANY($1)`, pq.Array(tradeIDs)); err != nil {
		return nil, err
	}
	return trades, attachImages(ctx, r.db, trades)
}

// ListTrades returns trades newest first, restricted to one owner when ownerID is set.
func (r *TradeRepo) ListTrades(ctx context.Context, ownerID int64) ([]models.Trade, error) {
	trades := []models.Trade{}
	var err error
	if ownerID != 0 {
		err = r.db.SelectContext(ctx, &trades, `SELECT `+tradeColumns+` FROM trades WHERE owner_id=$1 ORDER BY created_at DESC, id DESC`, ownerID)
	} else {
		err = r.db.SelectContext(ctx, &trades, `SELECT `+tradeColumns+` FROM trades ORDER BY created_at DESC, id DESC`)
	}
	if err != nil {
		return nil, err
	}
	return trades, attachImages(ctx, r.db, trades)
}

// UpdateTrade applies an owner's edit and returns the removed images.
func (r *TradeRepo) UpdateTrade(ctx context.Context, tradeID int64, changes TradeChanges) (models.Trade, []models.TradeImage, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Trade{}, nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var trade models.Trade
	err = tx.GetContext(ctx, &trade, `UPDATE trades SET title=$2, description=$3, updated_at=NOW() WHERE id=$1
        RETURNING `+tradeColumns, tradeID, changes.Title, changes.Description)
	if errors.Is(err, sql.ErrNoRows) {
		err = apperrors.NotFound("trade", tradeID)
		return models.Trade{}, nil, err
	}
	if err != nil {
		return models.Trade{}, nil, err
	}

	removed := []models.TradeImage{}
	if len(changes.RemoveImageIDs) > 0 {
		if err = tx.SelectContext(ctx, &removed, `DELETE FROM trade_images WHERE trade_id=$1 AND id = ANY($2)
            RETURNING `+imageColumns, tradeID, pq.Array(changes.RemoveImageIDs)); err != nil {
			return models.Trade{}, nil, err
		}
	}

	if len(changes.AddImages) > 0 {
		var next int
		if err = tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(position), -1) + 1 FROM trade_images WHERE trade_id=$1`, tradeID); err != nil {
			return models.Trade{}, nil, err
		}
		for i, img := range changes.AddImages {
			if _, err = tx.ExecContext(ctx, `INSERT INTO trade_images (trade_id, position, storage_key, content_type, size_bytes)
                VALUES ($1, $2, $3, $4, $5)`, tradeID, next+i, img.StorageKey, img.ContentType, img.Size); err != nil {
				return models.Trade{}, nil, err
			}
		}
	}

	trades := []models.Trade{trade}
	if err = attachImages(ctx, tx, trades); err != nil {
		return models.Trade{}, nil, err
	}
	if err = checkImageLimit(len(trades[0].Images), changes.MaxImages); err != nil {
		return models.Trade{}, nil, err
	}
	if err = tx.Commit(); err != nil {
		return models.Trade{}, nil, err
	}
	return trades[0], removed, nil
}

// DeleteTrade removes the trade; its image rows go with it through the cascade.
func (r *TradeRepo) DeleteTrade(ctx context.Context, tradeID int64) ([]models.TradeImage, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	images := []models.TradeImage{}
	if err = tx.SelectContext(ctx, &images, `SELECT `+imageColumns+` FROM trade_images WHERE trade_id=$1 ORDER BY position`, tradeID); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE id=$1`, tradeID)
	if err != nil {
		return nil, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		err = apperrors.NotFound("trade", tradeID)
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return images, nil
}

func attachImages(ctx context.Context, q sqlx.QueryerContext, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	ids := lo.Map(trades, func(t models.Trade, _ int) int64 { return t.ID })

	var images []models.TradeImage
	if err := sqlx.SelectContext(ctx, q, &images, `SELECT `+imageColumns+` FROM trade_images
        WHERE trade_id = ANY($1) ORDER BY trade_id, position`, pq.Array(ids)); err != nil {
		return err
	}

	byTrade := lo.GroupBy(images, func(img models.TradeImage) int64 { return img.TradeID })
	for i := range trades {
		trades[i].Images = byTrade[trades[i].ID]
		if trades[i].Images == nil {
			trades[i].Images = []models.TradeImage{}
		}
	}
	return nil
}
