package models

import (
	"time"
)

// PriceLink associates a Card with its PriceCharting product identity.
// One link per card. PCProductID may be empty for links created from a
// guessed game page URL before the product id is known.
type PriceLink struct {
	ID     uint `json:"id" gorm:"primaryKey;autoIncrement"`
	CardID uint `json:"card_id" gorm:"not null;uniqueIndex"`
	Card   Card `json:"-" gorm:"foreignKey:CardID"`

	// Unique when present; links still awaiting an id share the empty
	// string, which the partial index exempts.
	PCProductID   string `json:"pc_product_id" gorm:"column:pc_product_id;index:idx_price_links_pc_product_id,unique,where:pc_product_id <> ''"`
	PCProductName string `json:"pc_product_name" gorm:"column:pc_product_name"`
	// Canonical /game/pokemon-... page URL. Filled in lazily after the first
	// successful scrape, because the initial URL is often an offers redirect.
	PCGameURL string `json:"pc_game_url" gorm:"column:pc_game_url"`

	// Alternate-marketplace identity scraped from the same product page
	TCGPlayerID  string `json:"tcgplayer_id" gorm:"column:tcgplayer_id"`
	TCGPlayerURL string `json:"tcgplayer_url" gorm:"column:tcgplayer_url"`

	// Free-text notes field from the product page; source of rarity/variant
	// inference when the metadata API has no answer.
	Notes string `json:"notes"`

	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
