package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/codyseavey/pkmn-cataloguer/internal/models"
)

type CardHandler struct {
	db *gorm.DB
}

func NewCardHandler(db *gorm.DB) *CardHandler {
	return &CardHandler{db: db}
}

func (h *CardHandler) ListCards(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := h.db.Model(&models.Card{})
	if name := c.Query("name"); name != "" {
		q = q.Where("name LIKE ?", "%"+name+"%")
	}
	if set := c.Query("set"); set != "" {
		q = q.Where("set_name LIKE ?", "%"+set+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var cards []models.Card
	if err := q.Order("name ASC").Limit(limit).Offset(offset).Find(&cards).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cards": cards, "total": total})
}

func (h *CardHandler) GetCard(c *gin.Context) {
	id := c.Param("id")

	var card models.Card
	err := h.db.First(&card, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var link models.PriceLink
	hasLink := h.db.Where("card_id = ?", card.ID).First(&link).Error == nil

	resp := gin.H{"card": card}
	if hasLink {
		resp["price_link"] = link
	}

	var latest models.PriceSnapshot
	if h.db.Where("card_id = ?", card.ID).Order("as_of_date DESC").First(&latest).Error == nil {
		resp["latest_prices"] = latest
	}

	c.JSON(http.StatusOK, resp)
}

// GetSnapshots returns the price history for a card, newest first.
func (h *CardHandler) GetSnapshots(c *gin.Context) {
	id := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "90"))
	if limit <= 0 || limit > 365 {
		limit = 90
	}

	var card models.Card
	if errors.Is(h.db.First(&card, "id = ?", id).Error, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return
	}

	var snapshots []models.PriceSnapshot
	err := h.db.Where("card_id = ?", card.ID).
		Order("as_of_date DESC").
		Limit(limit).
		Find(&snapshots).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"card_id": card.ID, "snapshots": snapshots})
}
