package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/codyseavey/pkmn-cataloguer/internal/models"
	"gorm.io/gorm"
)

func TestBackoffDelay(t *testing.T) {
	for failures, wantBase := range map[int]float64{1: 2, 2: 4, 5: 30, 6: 30, 50: 30} {
		d := backoffDelay(failures)
		min := time.Duration(wantBase * float64(time.Second))
		max := min + time.Second
		if d < min || d > max {
			t.Errorf("backoffDelay(%d) = %v, want [%v, %v]", failures, d, min, max)
		}
	}
}

// waitForTerminal polls until the job row leaves the running state.
func waitForTerminal(t *testing.T, db *gorm.DB, runID string) *models.JobHistory {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var job models.JobHistory
		if err := db.Where("run_id = ?", runID).First(&job).Error; err == nil && job.IsTerminal() {
			return &job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func seedLinkedCard(t *testing.T, db *gorm.DB, name, productID string) *models.Card {
	t.Helper()
	card := &models.Card{Name: name, SetName: "Base Set", Number: "4"}
	if err := db.Create(card).Error; err != nil {
		t.Fatal(err)
	}
	link := &models.PriceLink{CardID: card.ID, PCProductID: productID}
	if err := db.Create(link).Error; err != nil {
		t.Fatal(err)
	}
	return card
}

func TestPricingRefreshHappyPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/offers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/game/pokemon-base-set/charizard-4">See Historic Prices</a>
		</body></html>`))
	})
	mux.HandleFunc("/game/pokemon-base-set/charizard-4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(gamePageHTML))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	db := newTestDB(t)
	card := seedLinkedCard(t, db, "Charizard", "6238")

	scraper := newTestScraper(server.URL)
	ledger := NewJobLedger(db)
	svc := NewPricingRefreshService(db, scraper, ledger, 10, 1000)

	job, err := svc.Trigger("manual", nil)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	final := waitForTerminal(t, db, job.RunID)
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("Status = %q (%s), want completed", final.Status, final.ErrorMessage)
	}
	if final.Processed != 1 || final.Succeeded != 1 {
		t.Errorf("counters = %d/%d", final.Processed, final.Succeeded)
	}

	var snapshot models.PriceSnapshot
	if err := db.Where("card_id = ?", card.ID).First(&snapshot).Error; err != nil {
		t.Fatalf("no snapshot written: %v", err)
	}
	if snapshot.UngradedCents == nil || *snapshot.UngradedCents != 1599 {
		t.Error("snapshot missing scraped ungraded price")
	}

	var link models.PriceLink
	if err := db.Where("card_id = ?", card.ID).First(&link).Error; err != nil {
		t.Fatal(err)
	}
	if link.LastSyncedAt == nil {
		t.Error("link sync marker not advanced")
	}
	if link.PCGameURL == "" {
		t.Error("canonical game page URL not recorded after the offers redirect")
	}
}

func TestPricingRefreshCountsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	db := newTestDB(t)
	seedLinkedCard(t, db, "Charizard", "6238")

	scraper := newTestScraper(server.URL)
	ledger := NewJobLedger(db)
	svc := NewPricingRefreshService(db, scraper, ledger, 10, 1000)

	job, err := svc.Trigger("manual", nil)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	final := waitForTerminal(t, db, job.RunID)
	if final.Status != models.JobStatusCompletedWithErrors {
		t.Errorf("Status = %q, want completed_with_errors", final.Status)
	}
	if final.Failed != 1 {
		t.Errorf("Failed = %d, want 1", final.Failed)
	}

	var count int64
	db.Model(&models.PriceSnapshot{}).Count(&count)
	if count != 0 {
		t.Error("no snapshot should be written for a failed scrape")
	}
}

func TestPricingRefreshBackoffRampsAcrossRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/game/pokemon-base-set/charizard-4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(gamePageHTML))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	db := newTestDB(t)
	now := time.Now().UTC()
	pageURLs := []string{
		server.URL + "/broken-1",
		server.URL + "/game/pokemon-base-set/charizard-4",
		server.URL + "/broken-2",
	}
	for i, pageURL := range pageURLs {
		card := &models.Card{Name: fmt.Sprintf("Card %d", i)}
		if err := db.Create(card).Error; err != nil {
			t.Fatal(err)
		}
		syncedAt := now.Add(time.Duration(i) * time.Minute)
		link := &models.PriceLink{CardID: card.ID, PCGameURL: pageURL, LastSyncedAt: &syncedAt}
		if err := db.Create(link).Error; err != nil {
			t.Fatal(err)
		}
	}

	ledger := NewJobLedger(db)
	svc := NewPricingRefreshService(db, newTestScraper(server.URL), ledger, 10, 1000)

	var mu sync.Mutex
	var counts []int
	svc.backoffFn = func(failed int) time.Duration {
		mu.Lock()
		counts = append(counts, failed)
		mu.Unlock()
		return 0
	}

	job, err := svc.Trigger("manual", nil)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	final := waitForTerminal(t, db, job.RunID)
	if final.Failed != 2 || final.Succeeded != 1 {
		t.Fatalf("counters = %d failed / %d succeeded", final.Failed, final.Succeeded)
	}

	// Fail, succeed, fail: the second backoff must see the run's second
	// failure, not restart the ramp because a success intervened.
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(counts, []int{1, 2}) {
		t.Errorf("backoff saw failure counts %v, want [1 2]", counts)
	}
}

func TestPricingRefreshRejectsConcurrentRun(t *testing.T) {
	db := newTestDB(t)
	ledger := NewJobLedger(db)
	svc := NewPricingRefreshService(db, newTestScraper("http://127.0.0.1:0"), ledger, 10, 1000)

	// Simulate a stuck run
	if _, err := ledger.Begin("manual", "price_refresh", models.JobCategoryPricing, nil); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Trigger("manual", nil)
	if !errors.Is(err, ErrJobAlreadyRunning) {
		t.Errorf("err = %v, want ErrJobAlreadyRunning", err)
	}
}

func TestMetadataRefreshFailsWhenAPIUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	db := newTestDB(t)
	db.Create(&models.Card{Name: "Charizard"})

	ledger := NewJobLedger(db)
	svc := NewMetadataRefreshService(db, newTestTCGdex(server.URL), ledger, 10)

	job, err := svc.Trigger("scheduled", nil)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	final := waitForTerminal(t, db, job.RunID)
	if final.Status != models.JobStatusFailed {
		t.Errorf("Status = %q, want failed", final.Status)
	}
	if final.ErrorMessage != "Metadata API unavailable" {
		t.Errorf("ErrorMessage = %q", final.ErrorMessage)
	}
	if final.Processed != 0 {
		t.Error("an unavailable API must not consume the batch")
	}
}

func TestMetadataRefreshMatchesAndApplies(t *testing.T) {
	apiCard := TCGdexCard{
		ID:          "base1-4",
		LocalID:     "4",
		Name:        "Charizard",
		Category:    "Pokemon",
		HP:          intp(120),
		Types:       []string{"Fire"},
		Illustrator: "Mitsuhiro Arita",
	}
	apiCard.Set.ID = "base1"
	apiCard.Set.Name = "Base Set"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cards/base1-4" {
			json.NewEncoder(w).Encode(apiCard)
			return
		}
		json.NewEncoder(w).Encode([]TCGdexCard{apiCard})
	}))
	defer server.Close()

	db := newTestDB(t)
	card := &models.Card{Name: "Charizard", SetName: "Base Set", Number: "4"}
	db.Create(card)

	ledger := NewJobLedger(db)
	svc := NewMetadataRefreshService(db, newTestTCGdex(server.URL), ledger, 10)

	job, err := svc.Trigger("manual", nil)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	final := waitForTerminal(t, db, job.RunID)
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("Status = %q (%s), want completed", final.Status, final.ErrorMessage)
	}

	var updated models.Card
	if err := db.First(&updated, card.ID).Error; err != nil {
		t.Fatal(err)
	}
	if updated.APIID != "base1-4" {
		t.Errorf("APIID = %q, want base1-4", updated.APIID)
	}
	if updated.HP == nil || *updated.HP != 120 {
		t.Error("HP not applied")
	}
	if updated.Artist != "Mitsuhiro Arita" {
		t.Errorf("Artist = %q", updated.Artist)
	}
	if updated.APILastSyncedAt == nil {
		t.Error("sync timestamp not set")
	}
}

func TestMetadataRefreshNoMatchIsSoftFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]TCGdexCard{})
	}))
	defer server.Close()

	db := newTestDB(t)
	db.Create(&models.Card{Name: "Not A Real Card"})

	ledger := NewJobLedger(db)
	svc := NewMetadataRefreshService(db, newTestTCGdex(server.URL), ledger, 10)

	job, err := svc.Trigger("manual", nil)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	final := waitForTerminal(t, db, job.RunID)
	if final.Status != models.JobStatusCompletedWithErrors {
		t.Errorf("Status = %q, want completed_with_errors", final.Status)
	}
	if final.Processed != 1 || final.Failed != 1 {
		t.Errorf("counters = %d processed / %d failed", final.Processed, final.Failed)
	}
}
