package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/codyseavey/pkmn-cataloguer/internal/metrics"
	"github.com/codyseavey/pkmn-cataloguer/internal/models"
)

type CollectionHandler struct {
	db *gorm.DB
}

func NewCollectionHandler(db *gorm.DB) *CollectionHandler {
	return &CollectionHandler{db: db}
}

func (h *CollectionHandler) GetCollection(c *gin.Context) {
	var entries []models.CollectionEntry
	err := h.db.Preload("Card").Order("created_at DESC").Find(&entries).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (h *CollectionHandler) AddToCollection(c *gin.Context) {
	var req models.AddToCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var card models.Card
	if errors.Is(h.db.First(&card, req.CardID).Error, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return
	}

	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if req.Condition == "" {
		req.Condition = models.ConditionUnknown
	}

	entry := models.CollectionEntry{
		CardID:             req.CardID,
		Quantity:           req.Quantity,
		Condition:          req.Condition,
		PurchasePriceCents: req.PurchasePriceCents,
		Notes:              req.Notes,
		Tags:               req.Tags,
	}
	if err := h.db.Create(&entry).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	entry.Card = card
	h.refreshCollectionGauges()
	c.JSON(http.StatusCreated, entry)
}

func (h *CollectionHandler) UpdateEntry(c *gin.Context) {
	id := c.Param("id")

	var entry models.CollectionEntry
	if errors.Is(h.db.First(&entry, "id = ?", id).Error, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}

	var req models.UpdateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Quantity != nil {
		if *req.Quantity <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be positive"})
			return
		}
		entry.Quantity = *req.Quantity
	}
	if req.Condition != nil {
		entry.Condition = *req.Condition
	}
	if req.PurchasePriceCents != nil {
		entry.PurchasePriceCents = req.PurchasePriceCents
	}
	if req.Notes != nil {
		entry.Notes = *req.Notes
	}
	if req.Tags != nil {
		entry.Tags = req.Tags
	}

	if err := h.db.Save(&entry).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.refreshCollectionGauges()
	c.JSON(http.StatusOK, entry)
}

// DeleteEntry removes a collection entry. When it was the card's last
// entry, the card and its pricing data go with it; an unowned card has no
// reason to keep consuming refresh budget.
func (h *CollectionHandler) DeleteEntry(c *gin.Context) {
	id := c.Param("id")

	var entry models.CollectionEntry
	if errors.Is(h.db.First(&entry, "id = ?", id).Error, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&entry).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&models.CollectionEntry{}).Where("card_id = ?", entry.CardID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		if err := tx.Where("card_id = ?", entry.CardID).Delete(&models.PriceSnapshot{}).Error; err != nil {
			return err
		}
		if err := tx.Where("card_id = ?", entry.CardID).Delete(&models.PriceLink{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Card{}, entry.CardID).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.refreshCollectionGauges()
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *CollectionHandler) GetStats(c *gin.Context) {
	stats, err := h.computeStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *CollectionHandler) computeStats() (*models.CollectionStats, error) {
	var stats models.CollectionStats

	row := h.db.Model(&models.CollectionEntry{}).
		Select("COALESCE(SUM(quantity), 0), COUNT(DISTINCT card_id)").
		Row()
	if err := row.Scan(&stats.TotalCards, &stats.UniqueCards); err != nil {
		return nil, err
	}

	// Latest ungraded price per card, multiplied by owned quantity
	err := h.db.Raw(`
		SELECT COALESCE(SUM(s.ungraded_cents * e.quantity), 0)
		FROM collection_entries e
		JOIN price_snapshots s ON s.id = (
			SELECT id FROM price_snapshots
			WHERE card_id = e.card_id AND ungraded_cents IS NOT NULL
			ORDER BY as_of_date DESC LIMIT 1
		)
	`).Scan(&stats.TotalValueCents).Error
	if err != nil {
		return nil, err
	}

	err = h.db.Raw(`
		SELECT COUNT(DISTINCT e.card_id)
		FROM collection_entries e
		WHERE EXISTS (
			SELECT 1 FROM price_snapshots s
			WHERE s.card_id = e.card_id AND s.ungraded_cents IS NOT NULL
		)
	`).Scan(&stats.CardsWithPrices).Error
	if err != nil {
		return nil, err
	}

	err = h.db.Raw(`
		SELECT COUNT(DISTINCT e.card_id)
		FROM collection_entries e
		JOIN cards c ON c.id = e.card_id
		WHERE c.api_id = '' OR c.api_last_synced_at IS NULL OR c.hp IS NULL
	`).Scan(&stats.CardsNeedingSync).Error
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

func (h *CollectionHandler) refreshCollectionGauges() {
	stats, err := h.computeStats()
	if err != nil {
		log.Printf("Collection: failed to refresh gauges: %v", err)
		return
	}
	metrics.CollectionCards.Set(float64(stats.TotalCards))
	metrics.CollectionValueCents.Set(float64(stats.TotalValueCents))
}
