package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/codyseavey/pkmn-cataloguer/internal/metrics"
	"github.com/codyseavey/pkmn-cataloguer/internal/models"
	"gorm.io/gorm"
)

const (
	pricingJobTimeout  = 300 * time.Second
	pricingCardTimeout = 30 * time.Second
)

// PricingRefreshService walks linked cards through the scraper, records a
// price snapshot per card, and keeps the ledger current. One run at a time;
// Trigger hands back the job row immediately and the work continues on its
// own goroutine with its own deadline.
type PricingRefreshService struct {
	db      *gorm.DB
	scraper *PriceChartingService
	ledger  *JobLedger

	batchSize      int
	requestsPerSec float64

	// Replaceable in tests to observe the backoff ramp without sleeping
	backoffFn func(failed int) time.Duration
}

func NewPricingRefreshService(db *gorm.DB, scraper *PriceChartingService, ledger *JobLedger, batchSize int, requestsPerSec float64) *PricingRefreshService {
	return &PricingRefreshService{
		db:             db,
		scraper:        scraper,
		ledger:         ledger,
		batchSize:      batchSize,
		requestsPerSec: requestsPerSec,
		backoffFn:      backoffDelay,
	}
}

// Trigger starts a pricing refresh run. jobType is "scheduled" or "manual";
// a non-empty cardIDs restricts the run to those cards. Returns
// ErrJobAlreadyRunning when a pricing job is still active.
func (s *PricingRefreshService) Trigger(jobType string, cardIDs []uint) (*models.JobHistory, error) {
	meta := map[string]any{"batch_size": s.batchSize}
	if len(cardIDs) > 0 {
		meta["requested_cards"] = len(cardIDs)
	}

	job, err := s.ledger.Begin(jobType, "price_refresh", models.JobCategoryPricing, meta)
	if err != nil {
		return nil, err
	}

	go s.run(job, cardIDs)
	return job, nil
}

// selectCandidates picks the links most overdue for a refresh: never-synced
// first, then oldest sync first.
func (s *PricingRefreshService) selectCandidates(cardIDs []uint) ([]models.PriceLink, error) {
	q := s.db.Preload("Card").Order("last_synced_at ASC NULLS FIRST")
	if len(cardIDs) > 0 {
		q = q.Where("card_id IN ?", cardIDs)
	} else {
		q = q.Limit(s.batchSize)
	}

	var links []models.PriceLink
	if err := q.Find(&links).Error; err != nil {
		return nil, fmt.Errorf("selecting refresh candidates: %w", err)
	}
	return links, nil
}

func (s *PricingRefreshService) run(job *models.JobHistory, cardIDs []uint) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Price refresh: run panicked: %v", r)
			if err := s.ledger.Fail(job, fmt.Sprintf("panic: %v", r)); err != nil {
				log.Printf("Price refresh: failed to record panic: %v", err)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), pricingJobTimeout)
	defer cancel()

	links, err := s.selectCandidates(cardIDs)
	if err != nil {
		_ = s.ledger.Fail(job, err.Error())
		return
	}
	log.Printf("Price refresh: processing %d cards", len(links))

	interItemDelay := time.Duration(float64(time.Second) / s.requestsPerSec)

	processed, succeeded, failed := 0, 0, 0

	for i := range links {
		if ctx.Err() != nil {
			break
		}

		itemCtx, itemCancel := context.WithTimeout(ctx, pricingCardTimeout)
		ok, err := s.processCard(itemCtx, &links[i])
		itemCancel()

		processed++
		switch {
		case err != nil:
			failed++
			metrics.RefreshItemsTotal.WithLabelValues("pricing", "failed").Inc()
			log.Printf("Price refresh: card %d failed: %v", links[i].CardID, err)
			if ctx.Err() == nil {
				sleepCtx(ctx, s.backoffFn(failed))
			}
		case !ok:
			// Page missing or unparseable is a soft failure: counted, no backoff.
			failed++
			metrics.RefreshItemsTotal.WithLabelValues("pricing", "failed").Inc()
			log.Printf("Price refresh: no product page for card %d", links[i].CardID)
		default:
			succeeded++
			metrics.RefreshItemsTotal.WithLabelValues("pricing", "succeeded").Inc()
		}

		s.ledger.RecordProgress(job, processed, succeeded, failed)

		if i < len(links)-1 {
			sleepCtx(ctx, interItemDelay)
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if err := s.ledger.FailRunning(models.JobCategoryPricing, "Job timed out"); err != nil {
			log.Printf("Price refresh: failed to record timeout: %v", err)
		}
		return
	}

	if err := s.ledger.Complete(job); err != nil {
		log.Printf("Price refresh: failed to complete job: %v", err)
	}
}

// processCard scrapes one card's product page, writes a snapshot, and
// advances the link's sync marker. The product id gives a stable offers
// URL; links created before an id was known fall back to the guessed game
// page URL. Returns ok=false with nil error when the page does not exist.
func (s *PricingRefreshService) processCard(ctx context.Context, link *models.PriceLink) (bool, error) {
	var pageURL string
	switch {
	case link.PCGameURL != "":
		pageURL = link.PCGameURL
	case link.PCProductID != "":
		pageURL = s.scraper.OffersURL(link.PCProductID)
	default:
		pageURL = s.scraper.BuildCardURL(link.Card.Name, link.Card.SetName, link.Card.Number)
	}

	scrape, err := s.scraper.ScrapeProduct(ctx, pageURL)
	if err != nil {
		return false, err
	}
	if scrape == nil {
		return false, nil
	}

	now := time.Now().UTC()
	snapshot := models.PriceSnapshot{
		CardID:        link.CardID,
		AsOfDate:      now,
		UngradedCents: scrape.Prices.UngradedCents,
		PSA9Cents:     scrape.Prices.PSA9Cents,
		PSA10Cents:    scrape.Prices.PSA10Cents,
		BGS10Cents:    scrape.Prices.BGS10Cents,
		Source:        "pricecharting",
	}
	if err := s.db.Create(&snapshot).Error; err != nil {
		return false, fmt.Errorf("saving snapshot: %w", err)
	}

	updates := map[string]any{"last_synced_at": now}
	if scrape.FinalURL != pageURL && strings.Contains(scrape.FinalURL, "/game/pokemon-") {
		updates["pc_game_url"] = scrape.FinalURL
	}
	if scrape.Metadata.TCGPlayerID != "" && link.TCGPlayerID == "" {
		updates["tcgplayer_id"] = scrape.Metadata.TCGPlayerID
		updates["tcgplayer_url"] = scrape.Metadata.TCGPlayerURL
	}
	if scrape.Metadata.Notes != "" && link.Notes == "" {
		updates["notes"] = scrape.Metadata.Notes
	}
	if err := s.db.Model(link).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("updating price link: %w", err)
	}

	// Fill rarity/variant from notes only where the metadata API has not
	// already answered.
	if scrape.Metadata.Notes != "" && (link.Card.Rarity == "" || link.Card.Variant == "") {
		rarity, variant := ParseRarityAndVariant(scrape.Metadata.Notes)
		cardUpdates := map[string]any{}
		if rarity != "" && link.Card.Rarity == "" {
			cardUpdates["rarity"] = rarity
		}
		if variant != "" && link.Card.Variant == "" {
			cardUpdates["variant"] = variant
		}
		if len(cardUpdates) > 0 {
			if err := s.db.Model(&models.Card{}).Where("id = ?", link.CardID).Updates(cardUpdates).Error; err != nil {
				log.Printf("Price refresh: failed to update rarity for card %d: %v", link.CardID, err)
			}
		}
	}

	s.cleanupOldSnapshots(link.CardID)
	return true, nil
}

// cleanupOldSnapshots prunes snapshots past the retention window.
func (s *PricingRefreshService) cleanupOldSnapshots(cardID uint) {
	cutoff := time.Now().UTC().AddDate(0, 0, -models.SnapshotRetentionDays)
	result := s.db.Where("card_id = ? AND as_of_date < ?", cardID, cutoff).Delete(&models.PriceSnapshot{})
	if result.Error != nil {
		log.Printf("Price refresh: snapshot cleanup failed for card %d: %v", cardID, result.Error)
	}
}
