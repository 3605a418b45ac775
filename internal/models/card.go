package models

import (
	"time"
)

// Card is the canonical identity for one distinct printed card. Pricing data
// hangs off PriceLink/PriceSnapshot; metadata fields are refreshed from the
// TCGdex API and overwritten wholesale on each successful sync.
type Card struct {
	ID        uint     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string   `json:"name" gorm:"not null;index"`
	SetID     string   `json:"set_id" gorm:"index"`
	SetName   string   `json:"set_name" gorm:"index"`
	Number    string   `json:"number"`
	Rarity    string   `json:"rarity"`
	Variant   string   `json:"variant"`
	Supertype string   `json:"supertype"`
	Subtypes  []string `json:"subtypes" gorm:"serializer:json"`

	// Stats from the metadata API
	HP          *int     `json:"hp" gorm:"column:hp"`
	Types       []string `json:"types" gorm:"serializer:json"`
	RetreatCost *int     `json:"retreat_cost"`

	Abilities   []map[string]any `json:"abilities" gorm:"serializer:json"`
	Attacks     []map[string]any `json:"attacks" gorm:"serializer:json"`
	Weaknesses  []map[string]any `json:"weaknesses" gorm:"serializer:json"`
	Resistances []map[string]any `json:"resistances" gorm:"serializer:json"`
	Legalities  map[string]any   `json:"legalities" gorm:"serializer:json"`

	EvolvesFrom string   `json:"evolves_from"`
	EvolvesTo   []string `json:"evolves_to" gorm:"serializer:json"`

	Artist     string `json:"artist"`
	FlavorText string `json:"flavor_text"`

	// Site-sourced images (from pricing site search results)
	ImageSmall string `json:"image_small"`
	ImageLarge string `json:"image_large"`
	// API-sourced images (higher quality, from TCGdex)
	APIImageSmall string `json:"api_image_small" gorm:"column:api_image_small"`
	APIImageLarge string `json:"api_image_large" gorm:"column:api_image_large"`

	// Metadata API linkage, e.g. "sm4-57". Empty until first successful match.
	APIID           string     `json:"api_id" gorm:"column:api_id;index"`
	APILastSyncedAt *time.Time `json:"api_last_synced_at" gorm:"column:api_last_synced_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NeedsMetadata reports whether the card is a priority candidate for the
// metadata refresh job: never linked, never synced, or missing basic stats.
func (c *Card) NeedsMetadata() bool {
	return c.APIID == "" || c.APILastSyncedAt == nil || c.HP == nil
}
