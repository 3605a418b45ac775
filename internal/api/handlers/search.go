package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codyseavey/pkmn-cataloguer/internal/models"
	"github.com/codyseavey/pkmn-cataloguer/internal/services"
)

type SearchHandler struct {
	db      *gorm.DB
	scraper *services.PriceChartingService
}

func NewSearchHandler(db *gorm.DB, scraper *services.PriceChartingService) *SearchHandler {
	return &SearchHandler{db: db, scraper: scraper}
}

// Search parses the free-text query and returns site results alongside the
// parsed structure, so the UI can show what was understood.
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	parsed := services.ParseQuery(query)
	results, err := h.scraper.Search(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"parsed":  parsed,
		"results": results,
	})
}

// SelectResultRequest is the chosen search row plus the user's own reading
// of the query, used to seed the card identity.
type SelectResultRequest struct {
	Name     string `json:"name" binding:"required"`
	SetName  string `json:"set_name"`
	Number   string `json:"number"`
	URL      string `json:"url" binding:"required"`
	ImageURL string `json:"image_url"`
	Notes    string `json:"notes"`
}

// SelectResult turns a chosen search row into a Card plus its PriceLink.
// Selecting the same product again reuses the existing card.
func (h *SearchHandler) SelectResult(c *gin.Context) {
	var req SelectResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	productID := services.ProductIDFromURL(req.URL)
	if productID != "" {
		var existing models.PriceLink
		err := h.db.Preload("Card").Where("pc_product_id = ?", productID).First(&existing).Error
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"card": existing.Card, "link": existing, "created": false})
			return
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	rarity, variant := services.ParseRarityAndVariant(req.Notes)
	card := models.Card{
		Name:       req.Name,
		SetName:    req.SetName,
		Number:     req.Number,
		Rarity:     rarity,
		Variant:    variant,
		ImageSmall: req.ImageURL,
	}
	link := models.PriceLink{
		PCProductID:   productID,
		PCProductName: req.Name,
		Notes:         req.Notes,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&card).Error; err != nil {
			return err
		}
		link.CardID = card.ID
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "card_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"pc_product_id", "pc_product_name", "notes"}),
		}).Create(&link).Error
	})
	if err != nil {
		// A concurrent select of the same product loses the insert race on
		// the product-id unique index; the transaction rolled back, so hand
		// the winner's card to this caller too.
		if productID != "" {
			var existing models.PriceLink
			if lookupErr := h.db.Preload("Card").Where("pc_product_id = ?", productID).First(&existing).Error; lookupErr == nil {
				c.JSON(http.StatusOK, gin.H{"card": existing.Card, "link": existing, "created": false})
				return
			}
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"card": card, "link": link, "created": true})
}
