package models

import (
	"time"
)

type Condition string

const (
	ConditionNearMint  Condition = "NM"
	ConditionLightPlay Condition = "LP"
	ConditionModPlay   Condition = "MP"
	ConditionHeavyPlay Condition = "HP"
	ConditionDamaged   Condition = "DMG"
	ConditionGraded    Condition = "GRADED"
	ConditionUnknown   Condition = "UNKNOWN"
)

// CollectionEntry is one owned copy (or stack of copies) of a card. Removing
// the last entry for a card cascades removal of the card itself along with
// its price link and snapshots.
type CollectionEntry struct {
	ID     uint `json:"id" gorm:"primaryKey;autoIncrement"`
	CardID uint `json:"card_id" gorm:"not null;index"`
	Card   Card `json:"card" gorm:"foreignKey:CardID"`

	Quantity           int       `json:"quantity" gorm:"default:1"`
	Condition          Condition `json:"condition" gorm:"default:'UNKNOWN'"`
	PurchasePriceCents *int      `json:"purchase_price_cents"`
	Notes              string    `json:"notes"`
	Tags               []string  `json:"tags" gorm:"serializer:json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AddToCollectionRequest struct {
	CardID             uint      `json:"card_id" binding:"required"`
	Quantity           int       `json:"quantity"`
	Condition          Condition `json:"condition"`
	PurchasePriceCents *int      `json:"purchase_price_cents"`
	Notes              string    `json:"notes"`
	Tags               []string  `json:"tags"`
}

type UpdateCollectionRequest struct {
	Quantity           *int       `json:"quantity"`
	Condition          *Condition `json:"condition"`
	PurchasePriceCents *int       `json:"purchase_price_cents"`
	Notes              *string    `json:"notes"`
	Tags               []string   `json:"tags"`
}

type CollectionStats struct {
	TotalCards       int `json:"total_cards"`
	UniqueCards      int `json:"unique_cards"`
	TotalValueCents  int `json:"total_value_cents"`
	CardsWithPrices  int `json:"cards_with_prices"`
	CardsNeedingSync int `json:"cards_needing_sync"`
}
