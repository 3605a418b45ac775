package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/codyseavey/pkmn-cataloguer/internal/metrics"
	"github.com/codyseavey/pkmn-cataloguer/internal/models"
	"github.com/codyseavey/pkmn-cataloguer/internal/throttle"
)

// TCGdexCard mirrors the card payload from the TCGdex REST API. Search
// listings return only a subset of fields; GetCardByID fills all of them.
type TCGdexCard struct {
	ID      string `json:"id"`
	LocalID string `json:"localId"`
	Name    string `json:"name"`
	Image   string `json:"image"`

	Category    string `json:"category"`
	Stage       string `json:"stage"`
	Illustrator string `json:"illustrator"`
	Description string `json:"description"`
	Rarity      string `json:"rarity"`

	HP      *int     `json:"hp"`
	Types   []string `json:"types"`
	Retreat int      `json:"retreat"`

	EvolveFrom string `json:"evolveFrom"`

	Abilities   []map[string]any `json:"abilities"`
	Attacks     []map[string]any `json:"attacks"`
	Weaknesses  []map[string]any `json:"weaknesses"`
	Resistances []map[string]any `json:"resistances"`
	Legal       map[string]any   `json:"legal"`

	Set struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"set"`
}

// TCGdexService talks to the TCGdex card metadata API. Requests flow
// through a shared gate; the API is free and unauthenticated, so being a
// polite client is the whole contract.
type TCGdexService struct {
	client  *http.Client
	baseURL string
	gate    *throttle.Gate
}

func NewTCGdexService(baseURL string, gate *throttle.Gate) *TCGdexService {
	return &TCGdexService{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		gate:    gate,
	}
}

func (s *TCGdexService) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := s.gate.Wait(ctx); err != nil {
		return err
	}

	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	metrics.MetadataRequestsTotal.Inc()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil // caller sees zero value
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: status %d", reqURL, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// IsAvailable probes the API with a minimal request. Batch jobs call this
// before starting so an outage produces one failed job record instead of a
// few hundred per-card failures.
func (s *TCGdexService) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("pagination:itemsPerPage", "1")

	var cards []TCGdexCard
	if err := s.getJSON(ctx, "/cards", params, &cards); err != nil {
		log.Printf("TCGdex: availability probe failed: %v", err)
		return false
	}
	return true
}

// GetCardByID fetches the full card for a known API id, e.g. "sm4-57".
// Returns nil, nil when the id does not exist.
func (s *TCGdexService) GetCardByID(ctx context.Context, apiID string) (*TCGdexCard, error) {
	var card TCGdexCard
	if err := s.getJSON(ctx, "/cards/"+url.PathEscape(apiID), nil, &card); err != nil {
		return nil, err
	}
	if card.ID == "" {
		return nil, nil
	}
	return &card, nil
}

// SearchCards queries the card listing with whichever filters are non-empty.
func (s *TCGdexService) SearchCards(ctx context.Context, name, setName, number string, limit int) ([]TCGdexCard, error) {
	params := url.Values{}
	if name != "" {
		params.Set("name", name)
	}
	if setName != "" {
		params.Set("set.name", setName)
	}
	if number != "" {
		params.Set("localId", number)
	}
	params.Set("pagination:itemsPerPage", fmt.Sprintf("%d", limit))

	var cards []TCGdexCard
	if err := s.getJSON(ctx, "/cards", params, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

var normalizePattern = regexp.MustCompile(`[^a-z0-9]`)

// normalizeForMatch lowercases and strips everything non-alphanumeric, so
// "Farfetch'd" and "farfetchd" compare equal.
func normalizeForMatch(s string) string {
	return normalizePattern.ReplaceAllString(strings.ToLower(s), "")
}

const matchAcceptThreshold = 50

// scoreCandidate rates how well an API card matches the wanted identity.
// A name hit dominates; set and number membership refine; populated battle
// stats break ties between otherwise equal candidates. Substring credit
// only flows one way: the wanted text must appear inside the candidate's,
// so a truncated candidate never matches a longer wanted name.
func scoreCandidate(candidate *TCGdexCard, name, setName, number string) int {
	score := 0

	wantName := normalizeForMatch(name)
	gotName := normalizeForMatch(candidate.Name)
	switch {
	case wantName != "" && gotName == wantName:
		score += 100
	case wantName != "" && strings.Contains(gotName, wantName):
		score += 50
	}

	if setName != "" {
		wantSet := normalizeForMatch(setName)
		gotSet := normalizeForMatch(candidate.Set.Name)
		switch {
		case gotSet == wantSet:
			score += 30
		case gotSet != "" && strings.Contains(gotSet, wantSet):
			score += 15
		}
	}

	if number != "" && normalizeForMatch(candidate.LocalID) == normalizeForMatch(number) {
		score += 20
	}

	if candidate.HP != nil {
		score += 5
	}
	if len(candidate.Types) > 0 {
		score += 5
	}
	if len(candidate.Attacks) > 0 {
		score += 5
	}

	return score
}

// findBestMatch picks the highest-scoring candidate at or above the accept
// threshold, or nil when nothing qualifies.
func findBestMatch(candidates []TCGdexCard, name, setName, number string) *TCGdexCard {
	var best *TCGdexCard
	bestScore := 0
	for i := range candidates {
		s := scoreCandidate(&candidates[i], name, setName, number)
		if s > bestScore {
			best = &candidates[i]
			bestScore = s
		}
	}
	if bestScore < matchAcceptThreshold {
		return nil
	}
	return best
}

const matchSearchLimit = 20

// SearchAndFindBestMatch resolves a card identity against the API with
// progressively relaxed filters: name+set+number, then name+number, then
// name alone. The first pass yielding an acceptable match wins. Returns
// nil, nil when every pass comes up empty.
func (s *TCGdexService) SearchAndFindBestMatch(ctx context.Context, name, setName, number string) (*TCGdexCard, error) {
	type pass struct {
		set    string
		number string
	}
	passes := []pass{{setName, number}}
	if setName != "" {
		passes = append(passes, pass{"", number})
	}
	if number != "" {
		passes = append(passes, pass{"", ""})
	}

	for _, p := range passes {
		candidates, err := s.SearchCards(ctx, name, p.set, p.number, matchSearchLimit)
		if err != nil {
			metrics.MetadataMatchesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if match := findBestMatch(candidates, name, setName, number); match != nil {
			metrics.MetadataMatchesTotal.WithLabelValues("matched").Inc()
			return match, nil
		}
	}

	metrics.MetadataMatchesTotal.WithLabelValues("no_match").Inc()
	return nil, nil
}

// CardMetadata is the typed, allow-listed set of fields a metadata sync is
// permitted to write onto a Card.
type CardMetadata struct {
	APIID         string
	SetID         string
	SetName       string
	Number        string
	Rarity        string
	Supertype     string
	Subtypes      []string
	HP            *int
	Types         []string
	RetreatCost   *int
	Abilities     []map[string]any
	Attacks       []map[string]any
	Weaknesses    []map[string]any
	Resistances   []map[string]any
	Legalities    map[string]any
	EvolvesFrom   string
	Artist        string
	FlavorText    string
	APIImageSmall string
	APIImageLarge string
}

// ExtractCardData converts an API card into the allow-listed metadata set.
// Errors when the card carries no id, since a sync without linkage would
// strand the card un-refreshable.
func ExtractCardData(card *TCGdexCard) (*CardMetadata, error) {
	if card == nil || card.ID == "" {
		return nil, fmt.Errorf("api card has no id")
	}

	md := &CardMetadata{
		APIID:       card.ID,
		SetID:       card.Set.ID,
		SetName:     card.Set.Name,
		Number:      card.LocalID,
		Rarity:      card.Rarity,
		Supertype:   card.Category,
		HP:          card.HP,
		Types:       card.Types,
		Abilities:   card.Abilities,
		Attacks:     card.Attacks,
		Weaknesses:  card.Weaknesses,
		Resistances: card.Resistances,
		Legalities:  card.Legal,
		EvolvesFrom: card.EvolveFrom,
		Artist:      card.Illustrator,
		FlavorText:  card.Description,
	}

	if card.Stage != "" {
		md.Subtypes = []string{card.Stage}
	}
	if card.Retreat > 0 {
		retreat := card.Retreat
		md.RetreatCost = &retreat
	}
	if card.Image != "" {
		md.APIImageSmall = card.Image + "/low.webp"
		md.APIImageLarge = card.Image + "/high.webp"
	}

	return md, nil
}

// ApplyTo writes the metadata onto a card. Every listed field is
// overwritten on each sync, empty values included, so the card always
// mirrors the API's current answer; only the display name is never
// touched. The sync timestamp always advances, even when nothing else
// changed.
func (m *CardMetadata) ApplyTo(card *models.Card, syncedAt time.Time) {
	card.APIID = m.APIID
	card.SetID = m.SetID
	card.SetName = m.SetName
	card.Number = m.Number
	card.Rarity = m.Rarity
	card.Supertype = m.Supertype
	card.Subtypes = m.Subtypes
	card.HP = m.HP
	card.Types = m.Types
	card.RetreatCost = m.RetreatCost
	card.Abilities = m.Abilities
	card.Attacks = m.Attacks
	card.Weaknesses = m.Weaknesses
	card.Resistances = m.Resistances
	card.Legalities = m.Legalities
	card.EvolvesFrom = m.EvolvesFrom
	card.Artist = m.Artist
	card.FlavorText = m.FlavorText
	card.APIImageSmall = m.APIImageSmall
	card.APIImageLarge = m.APIImageLarge
	t := syncedAt
	card.APILastSyncedAt = &t
}
