package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/codyseavey/pkmn-cataloguer/internal/metrics"
	"github.com/codyseavey/pkmn-cataloguer/internal/models"
	"gorm.io/gorm"
)

const (
	metadataJobTimeout  = 600 * time.Second
	metadataCardTimeout = 90 * time.Second

	// The metadata API allows a brisker pace than the scraper, but a sync
	// can issue several requests per card, so items are spaced a flat
	// second apart regardless of the gate's rate.
	metadataInterItemDelay = time.Second
)

// MetadataRefreshService links cards to their metadata API identity and
// refreshes the descriptive fields. Mirrors the pricing orchestrator: one
// run per category, detached goroutine, own deadline, ledger-tracked.
type MetadataRefreshService struct {
	db     *gorm.DB
	tcgdex *TCGdexService
	ledger *JobLedger

	batchSize int

	// Replaceable in tests to observe the backoff ramp without sleeping
	backoffFn func(failed int) time.Duration
}

func NewMetadataRefreshService(db *gorm.DB, tcgdex *TCGdexService, ledger *JobLedger, batchSize int) *MetadataRefreshService {
	return &MetadataRefreshService{
		db:        db,
		tcgdex:    tcgdex,
		ledger:    ledger,
		batchSize: batchSize,
		backoffFn: backoffDelay,
	}
}

// Trigger starts a metadata refresh run. Returns ErrJobAlreadyRunning when
// a metadata job is still active.
func (s *MetadataRefreshService) Trigger(jobType string, cardIDs []uint) (*models.JobHistory, error) {
	meta := map[string]any{"batch_size": s.batchSize}
	if len(cardIDs) > 0 {
		meta["requested_cards"] = len(cardIDs)
	}

	job, err := s.ledger.Begin(jobType, "metadata_refresh", models.JobCategoryMetadata, meta)
	if err != nil {
		return nil, err
	}

	go s.run(job, cardIDs)
	return job, nil
}

// selectCandidates prefers cards that were never linked or never enriched,
// then the stalest.
func (s *MetadataRefreshService) selectCandidates(cardIDs []uint) ([]models.Card, error) {
	q := s.db.Order("api_last_synced_at ASC NULLS FIRST")
	if len(cardIDs) > 0 {
		q = q.Where("id IN ?", cardIDs)
	} else {
		q = q.Where("api_id = '' OR api_id IS NULL OR api_last_synced_at IS NULL OR hp IS NULL").
			Limit(s.batchSize)
	}

	var cards []models.Card
	if err := q.Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("selecting refresh candidates: %w", err)
	}
	return cards, nil
}

func (s *MetadataRefreshService) run(job *models.JobHistory, cardIDs []uint) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Metadata refresh: run panicked: %v", r)
			if err := s.ledger.Fail(job, fmt.Sprintf("panic: %v", r)); err != nil {
				log.Printf("Metadata refresh: failed to record panic: %v", err)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), metadataJobTimeout)
	defer cancel()

	// One cheap probe up front: an API outage becomes a single failed job
	// row instead of a full batch of per-card failures.
	if !s.tcgdex.IsAvailable(ctx) {
		_ = s.ledger.Fail(job, "Metadata API unavailable")
		return
	}

	cards, err := s.selectCandidates(cardIDs)
	if err != nil {
		_ = s.ledger.Fail(job, err.Error())
		return
	}
	log.Printf("Metadata refresh: processing %d cards", len(cards))

	processed, succeeded, failed := 0, 0, 0

	for i := range cards {
		if ctx.Err() != nil {
			break
		}

		itemCtx, itemCancel := context.WithTimeout(ctx, metadataCardTimeout)
		matched, err := s.processCard(itemCtx, &cards[i])
		itemCancel()

		processed++
		switch {
		case err != nil:
			failed++
			metrics.RefreshItemsTotal.WithLabelValues("metadata", "failed").Inc()
			log.Printf("Metadata refresh: card %d failed: %v", cards[i].ID, err)
			if ctx.Err() == nil {
				sleepCtx(ctx, s.backoffFn(failed))
			}
		case !matched:
			// A clean no-match is a soft failure: counted, never backed off.
			failed++
			metrics.RefreshItemsTotal.WithLabelValues("metadata", "failed").Inc()
			log.Printf("Metadata refresh: no match for card %d (%s)", cards[i].ID, cards[i].Name)
		default:
			succeeded++
			metrics.RefreshItemsTotal.WithLabelValues("metadata", "succeeded").Inc()
		}

		s.ledger.RecordProgress(job, processed, succeeded, failed)

		if i < len(cards)-1 {
			sleepCtx(ctx, metadataInterItemDelay)
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if err := s.ledger.FailRunning(models.JobCategoryMetadata, "Job timed out"); err != nil {
			log.Printf("Metadata refresh: failed to record timeout: %v", err)
		}
		return
	}

	if err := s.ledger.Complete(job); err != nil {
		log.Printf("Metadata refresh: failed to complete job: %v", err)
	}
}

// processCard resolves a card's API identity and refreshes its metadata.
// Returns matched=false with nil error when the API simply has no card for
// this identity.
func (s *MetadataRefreshService) processCard(ctx context.Context, card *models.Card) (bool, error) {
	var apiCard *TCGdexCard
	var err error

	if card.APIID != "" {
		apiCard, err = s.tcgdex.GetCardByID(ctx, card.APIID)
		if err != nil {
			return false, err
		}
	}
	if apiCard == nil {
		apiCard, err = s.tcgdex.SearchAndFindBestMatch(ctx, card.Name, card.SetName, card.Number)
		if err != nil {
			return false, err
		}
	}
	if apiCard == nil {
		return false, nil
	}

	// Search listings are thin; fetch the full card before extracting.
	if apiCard.Category == "" && apiCard.HP == nil {
		full, err := s.tcgdex.GetCardByID(ctx, apiCard.ID)
		if err != nil {
			return false, err
		}
		if full != nil {
			apiCard = full
		}
	}

	md, err := ExtractCardData(apiCard)
	if err != nil {
		return false, err
	}

	md.ApplyTo(card, time.Now().UTC())
	if err := s.db.Save(card).Error; err != nil {
		return false, fmt.Errorf("saving card %d: %w", card.ID, err)
	}
	return true, nil
}
