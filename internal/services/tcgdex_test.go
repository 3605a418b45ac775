package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codyseavey/pkmn-cataloguer/internal/models"
	"github.com/codyseavey/pkmn-cataloguer/internal/throttle"
)

func intp(v int) *int { return &v }

func TestNormalizeForMatch(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Farfetch'd", "farfetchd"},
		{"Mr. Mime", "mrmime"},
		{"Nidoran ♀", "nidoran"},
		{"PIKACHU", "pikachu"},
	}
	for _, tt := range tests {
		if got := normalizeForMatch(tt.in); got != tt.want {
			t.Errorf("normalizeForMatch(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScoreCandidate(t *testing.T) {
	full := &TCGdexCard{
		ID:      "sm4-57",
		LocalID: "57",
		Name:    "Buzzwole GX",
		HP:      intp(190),
		Types:   []string{"Fighting"},
		Attacks: []map[string]any{{"name": "Jet Punch"}},
	}
	full.Set.Name = "Crimson Invasion"

	tests := []struct {
		name      string
		card      *TCGdexCard
		wantName  string
		wantSet   string
		wantNum   string
		wantScore int
	}{
		{
			name: "exact everything plus stats",
			card: full, wantName: "Buzzwole GX", wantSet: "Crimson Invasion", wantNum: "57",
			wantScore: 100 + 30 + 20 + 15,
		},
		{
			name: "substring name",
			card: full, wantName: "Buzzwole", wantSet: "", wantNum: "",
			wantScore: 50 + 15,
		},
		{
			name: "wrong number scores nothing for it",
			card: full, wantName: "Buzzwole GX", wantSet: "", wantNum: "104",
			wantScore: 100 + 15,
		},
		{
			name:      "unrelated card",
			card:      full,
			wantName:  "Snorlax",
			wantScore: 15,
		},
		{
			// Substring credit is one-directional: a candidate whose name
			// is a prefix of the wanted name is not a name hit.
			name:      "truncated candidate name gets no name credit",
			card:      full,
			wantName:  "Buzzwole GX Rainbow Rare",
			wantScore: 15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreCandidate(tt.card, tt.wantName, tt.wantSet, tt.wantNum)
			if got != tt.wantScore {
				t.Errorf("scoreCandidate = %d, want %d", got, tt.wantScore)
			}
		})
	}
}

func TestFindBestMatchThreshold(t *testing.T) {
	weak := TCGdexCard{ID: "xy1-1", Name: "Venusaur", LocalID: "1"}

	// Name mismatch only reaches stat bonuses, below the accept line
	if got := findBestMatch([]TCGdexCard{weak}, "Charizard", "", ""); got != nil {
		t.Errorf("expected nil for sub-threshold candidate, got %q", got.Name)
	}

	strong := TCGdexCard{ID: "base1-4", Name: "Charizard", LocalID: "4"}
	got := findBestMatch([]TCGdexCard{weak, strong}, "Charizard", "", "")
	if got == nil || got.ID != "base1-4" {
		t.Fatal("expected the exact-name candidate to win")
	}
}

func newTestTCGdex(serverURL string) *TCGdexService {
	return NewTCGdexService(serverURL, throttle.NewGate(1000))
}

func TestSearchAndFindBestMatchRelaxation(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// Only the name-only pass finds anything: set and localId filters
		// return empty because the stored set name differs.
		if r.URL.Query().Get("set.name") != "" || r.URL.Query().Get("localId") != "" {
			json.NewEncoder(w).Encode([]TCGdexCard{})
			return
		}
		card := TCGdexCard{ID: "sm4-57", Name: "Buzzwole GX", LocalID: "57"}
		json.NewEncoder(w).Encode([]TCGdexCard{card})
	}))
	defer server.Close()

	s := newTestTCGdex(server.URL)
	match, err := s.SearchAndFindBestMatch(context.Background(), "Buzzwole GX", "Crimson", "57")
	if err != nil {
		t.Fatalf("SearchAndFindBestMatch failed: %v", err)
	}
	if match == nil || match.ID != "sm4-57" {
		t.Fatal("expected the name-only pass to find the card")
	}
	if requests != 3 {
		t.Errorf("made %d requests, want 3 (one per relaxation pass)", requests)
	}
}

func TestGetCardByIDNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	s := newTestTCGdex(server.URL)
	card, err := s.GetCardByID(context.Background(), "nope-404")
	if err != nil {
		t.Fatalf("GetCardByID errored: %v", err)
	}
	if card != nil {
		t.Error("expected nil card for 404")
	}
}

func TestExtractCardData(t *testing.T) {
	api := &TCGdexCard{
		ID:          "sm4-57",
		LocalID:     "57",
		Name:        "Buzzwole GX",
		Category:    "Pokemon",
		Stage:       "Basic",
		Illustrator: "5ban Graphics",
		Description: "It appeared from an Ultra Wormhole.",
		HP:          intp(190),
		Types:       []string{"Fighting"},
		Retreat:     3,
		Image:       "https://assets.tcgdex.net/en/sm/sm4/57",
	}
	api.Set.ID = "sm4"
	api.Set.Name = "Crimson Invasion"

	md, err := ExtractCardData(api)
	if err != nil {
		t.Fatalf("ExtractCardData failed: %v", err)
	}

	if md.APIID != "sm4-57" || md.SetID != "sm4" || md.Number != "57" {
		t.Error("identity fields not carried over")
	}
	if md.Supertype != "Pokemon" {
		t.Errorf("Supertype = %q", md.Supertype)
	}
	if len(md.Subtypes) != 1 || md.Subtypes[0] != "Basic" {
		t.Errorf("Subtypes = %v", md.Subtypes)
	}
	if md.RetreatCost == nil || *md.RetreatCost != 3 {
		t.Error("RetreatCost not mapped from retreat")
	}
	if md.Artist != "5ban Graphics" || md.FlavorText == "" {
		t.Error("illustrator/description not mapped")
	}
	if md.APIImageSmall != "https://assets.tcgdex.net/en/sm/sm4/57/low.webp" {
		t.Errorf("APIImageSmall = %q", md.APIImageSmall)
	}
	if md.APIImageLarge != "https://assets.tcgdex.net/en/sm/sm4/57/high.webp" {
		t.Errorf("APIImageLarge = %q", md.APIImageLarge)
	}
}

func TestExtractCardDataRequiresID(t *testing.T) {
	if _, err := ExtractCardData(&TCGdexCard{Name: "Ditto"}); err == nil {
		t.Error("expected error for card without id")
	}
	if _, err := ExtractCardData(nil); err == nil {
		t.Error("expected error for nil card")
	}
}

func TestApplyToOverwritesEverythingButName(t *testing.T) {
	card := &models.Card{
		Name:    "Buzzwole (my display name)",
		SetName: "Old Set Name",
		Artist:  "stale artist",
		HP:      intp(60),
	}

	md := &CardMetadata{
		APIID:     "sm4-57",
		SetID:     "sm4",
		SetName:   "Crimson Invasion",
		Number:    "57",
		HP:        intp(190),
		Supertype: "Pokemon",
		// Artist intentionally empty: the sync mirrors the API's answer
	}

	syncedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	md.ApplyTo(card, syncedAt)

	if card.Name != "Buzzwole (my display name)" {
		t.Error("ApplyTo must never overwrite the display name")
	}
	if card.Artist != "" {
		t.Error("empty metadata fields overwrite stale values on sync")
	}
	if card.SetName != "Crimson Invasion" {
		t.Errorf("SetName = %q", card.SetName)
	}
	if card.APIID != "sm4-57" || card.SetID != "sm4" || card.Number != "57" {
		t.Error("identity fields not applied")
	}
	if card.HP == nil || *card.HP != 190 {
		t.Error("HP not applied")
	}
	if card.APILastSyncedAt == nil || !card.APILastSyncedAt.Equal(syncedAt) {
		t.Error("sync timestamp must always advance")
	}
}
