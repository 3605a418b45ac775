package models

import (
	"time"
)

// SnapshotRetentionDays is how long price snapshots are kept per card.
// Older rows are pruned during each pricing refresh cycle.
const SnapshotRetentionDays = 365

// PriceSnapshot is an immutable point-in-time price observation for a card.
// All four grade fields are optional; nil means "no price observed", which is
// distinct from a zero price and must never be conflated with one.
type PriceSnapshot struct {
	ID       uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CardID   uint      `json:"card_id" gorm:"not null;index"`
	AsOfDate time.Time `json:"as_of_date" gorm:"not null;index"`

	UngradedCents *int `json:"ungraded_cents" gorm:"column:ungraded_cents"`
	PSA9Cents     *int `json:"psa9_cents" gorm:"column:psa9_cents"`
	PSA10Cents    *int `json:"psa10_cents" gorm:"column:psa10_cents"`
	BGS10Cents    *int `json:"bgs10_cents" gorm:"column:bgs10_cents"`

	Source    string    `json:"source" gorm:"default:'pricecharting'"`
	CreatedAt time.Time `json:"created_at"`
}

// HasPrices reports whether at least one grade tier was observed.
func (s *PriceSnapshot) HasPrices() bool {
	return s.UngradedCents != nil || s.PSA9Cents != nil || s.PSA10Cents != nil || s.BGS10Cents != nil
}
