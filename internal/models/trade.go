package models

import "time"

// Trade is a listing posted by its owner.
type Trade struct {
	ID          int64        `db:"id" json:"id"`
	OwnerID     int64        `db:"owner_id" json:"owner_id"`
	Title       string       `db:"title" json:"title"`
	Description string       `db:"description" json:"description"`
	Images      []TradeImage `db:"-" json:"images"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// TradeImage references a stored blob owned by a trade.
type TradeImage struct {
	ID          int64     `db:"id" json:"id"`
	TradeID     int64     `db:"trade_id" json:"trade_id"`
	Position    int       `db:"position" json:"position"`
	StorageKey  string    `db:"storage_key" json:"-"`
	ContentType string    `db:"content_type" json:"content_type"`
	Size        int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TradeView is a trade with its owner and rendered description.
type TradeView struct {
	Trade
	Owner           User   `json:"owner"`
	DescriptionHTML string `json:"description_html"`
}

// TradeEvent is published when a trade changes.
type TradeEvent struct {
	TradeID int64 `json:"trade_id"`
	OwnerID int64 `json:"owner_id"`
}
