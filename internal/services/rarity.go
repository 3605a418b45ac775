package services

import (
	"strings"
)

// rarityPatterns are checked in order; the most specific label must come
// before any label it contains ("secret rare" before "rare").
var rarityPatterns = []struct {
	needle string
	rarity string
}{
	{"secret rare", "Secret Rare"},
	{"hyper rare", "Hyper Rare"},
	{"ultra rare", "Ultra Rare"},
	{"double rare", "Double Rare"},
	{"illustration rare", "Illustration Rare"},
	{"holo rare", "Holo Rare"},
	{"rare holo", "Holo Rare"},
	{"promo", "Promo"},
	{"rare", "Rare"},
	{"uncommon", "Uncommon"},
	{"common", "Common"},
}

var variantPatterns = []struct {
	needle  string
	variant string
}{
	{"1st edition", "1st Edition"},
	{"first edition", "1st Edition"},
	{"shadowless", "Shadowless"},
	{"reverse holo", "Reverse Holo"},
	{"reverse foil", "Reverse Holo"},
	{"full art", "Full Art"},
	{"alt art", "Alternate Art"},
	{"alternate art", "Alternate Art"},
	{"rainbow", "Rainbow"},
	{"gold", "Gold"},
	{"holo", "Holo"},
	{"unlimited", "Unlimited"},
}

// ParseRarityAndVariant infers a rarity label and print variant from the
// free-text notes on a product page. Either result may be empty; callers
// only persist non-empty values so metadata-API answers are not clobbered.
func ParseRarityAndVariant(notes string) (rarity, variant string) {
	l := strings.ToLower(notes)

	for _, p := range rarityPatterns {
		if strings.Contains(l, p.needle) {
			rarity = p.rarity
			break
		}
	}
	for _, p := range variantPatterns {
		if strings.Contains(l, p.needle) {
			variant = p.variant
			break
		}
	}
	return rarity, variant
}
