package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codyseavey/pkmn-cataloguer/internal/metrics"
	"github.com/codyseavey/pkmn-cataloguer/internal/throttle"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const scrapeUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// tcgplayerURLTemplate builds the affiliate link for a TCGPlayer product id.
const tcgplayerURLTemplate = "https://tcgplayer.pxf.io/c/3029031/1780961/21018?u=https%%3A%%2F%%2Fwww.tcgplayer.com%%2Fproduct%%2F%s%%2F-"

// GradePrices holds the four tracked price tiers in integer cents. A nil
// field means the site showed no price for that tier; it is never zero.
type GradePrices struct {
	UngradedCents *int `json:"ungraded_cents"`
	PSA9Cents     *int `json:"psa9_cents"`
	PSA10Cents    *int `json:"psa10_cents"`
	BGS10Cents    *int `json:"bgs10_cents"`
}

// ProductMetadata is the descriptive detail scraped off a product page.
type ProductMetadata struct {
	TCGPlayerID  string `json:"tcgplayer_id"`
	TCGPlayerURL string `json:"tcgplayer_url"`
	Notes        string `json:"notes"`
	CardNumber   string `json:"card_number"`
	ReleaseDate  string `json:"release_date"`
	Genre        string `json:"genre"`
}

// ProductScrape is the full result of scraping one product page.
type ProductScrape struct {
	Prices   GradePrices     `json:"prices"`
	Metadata ProductMetadata `json:"metadata"`
	// FinalURL is the page the prices actually came from, after any offers
	// redirect was followed. Callers persist it when it names a game page.
	FinalURL string `json:"final_url"`
}

// SearchResult is one row from the site's search listing.
type SearchResult struct {
	Name          string `json:"name"`
	SetName       string `json:"set_name"`
	Number        string `json:"number"`
	ImageURL      string `json:"image_url"`
	URL           string `json:"url"`
	UngradedCents *int   `json:"ungraded_cents"`
}

// PriceChartingService scrapes prices and search results from the pricing
// site. All fetches go through one shared gate and results are cached with
// a TTL so repeated lookups inside a refresh window stay off the network.
type PriceChartingService struct {
	client  *http.Client
	baseURL string
	gate    *throttle.Gate

	productCache *expirable.LRU[string, *ProductScrape]
	searchCache  *expirable.LRU[string, []SearchResult]
}

func NewPriceChartingService(baseURL string, gate *throttle.Gate, cacheTTL time.Duration) *PriceChartingService {
	return &PriceChartingService{
		client:       &http.Client{Timeout: 30 * time.Second},
		baseURL:      strings.TrimRight(baseURL, "/"),
		gate:         gate,
		productCache: expirable.NewLRU[string, *ProductScrape](256, nil, cacheTTL),
		searchCache:  expirable.NewLRU[string, []SearchResult](128, nil, cacheTTL),
	}
}

var priceTextPattern = regexp.MustCompile(`\$(\d+(?:,\d{3})*(?:\.\d{2})?)`)

// parsePriceText converts a price string like "$1,234.56" to integer cents.
// Returns nil when no dollar amount is present. Dollars and fractional part
// are combined with integer arithmetic; floats never touch money here.
func parsePriceText(s string) *int {
	m := priceTextPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	amount := strings.ReplaceAll(m[1], ",", "")

	dollars := amount
	cents := 0
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		dollars = amount[:i]
		frac, err := strconv.Atoi(amount[i+1:])
		if err != nil {
			return nil
		}
		cents = frac
	}
	d, err := strconv.Atoi(dollars)
	if err != nil {
		return nil
	}
	total := d*100 + cents
	return &total
}

var lowGradePattern = regexp.MustCompile(`grade\s*[1-7]\b`)

// gradeBucket classifies a price-table row label into one of the four
// tracked tiers, or "" when the row is something else (grade 8, pristine,
// black label, and so on). Classification order matters: "ungraded" is
// checked before the graded tiers, and the exclusion words keep premium
// labels out of the plain tiers.
func gradeBucket(label string) string {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "ungraded"):
		if lowGradePattern.MatchString(l) {
			return ""
		}
		return "ungraded"
	case strings.Contains(l, "psa 10"):
		if strings.Contains(l, "black") || strings.Contains(l, "pristine") {
			return ""
		}
		return "psa10"
	case strings.Contains(l, "psa 9"):
		return "psa9"
	case strings.Contains(l, "bgs 10"):
		if strings.Contains(l, "black") {
			return ""
		}
		return "bgs10"
	}
	return ""
}

// extractGradePrices walks every table row on the page and takes the first
// parseable price per tier.
func extractGradePrices(doc *goquery.Document) GradePrices {
	var prices GradePrices
	doc.Find("table tr, #price_data .price").Each(func(_ int, row *goquery.Selection) {
		bucket := gradeBucket(row.Text())
		if bucket == "" {
			return
		}
		cents := parsePriceText(row.Text())
		if cents == nil {
			return
		}
		switch bucket {
		case "ungraded":
			if prices.UngradedCents == nil {
				prices.UngradedCents = cents
			}
		case "psa9":
			if prices.PSA9Cents == nil {
				prices.PSA9Cents = cents
			}
		case "psa10":
			if prices.PSA10Cents == nil {
				prices.PSA10Cents = cents
			}
		case "bgs10":
			if prices.BGS10Cents == nil {
				prices.BGS10Cents = cents
			}
		}
	})
	return prices
}

var (
	titleNumberPattern = regexp.MustCompile(`#([A-Z0-9]+)`)
	urlTrailingPattern = regexp.MustCompile(`-([a-z0-9]+)/?$`)
	numberShapePattern = regexp.MustCompile(`^[A-Z]*\d+[A-Z]*$`)
	allDigitsPattern   = regexp.MustCompile(`^\d+$`)
	releaseDatePattern = regexp.MustCompile(`(?i)release date[:\s]+([A-Za-z]+ \d{1,2}, \d{4})`)
	tcgplayerIDPattern = regexp.MustCompile(`(?i)tcgplayer id[:\s]+(\d+)`)
)

// extractProductMetadata pulls the attribute block off a product page.
// Layout varies across page generations, so it tries definition lists,
// then attribute tables, then free-text patterns, and finally falls back
// to the title and URL for the card number.
func extractProductMetadata(doc *goquery.Document, finalURL string) ProductMetadata {
	var md ProductMetadata

	attrs := map[string]string{}
	doc.Find("dl dt").Each(func(_ int, dt *goquery.Selection) {
		key := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(dt.Text()), ":")))
		val := strings.TrimSpace(dt.Next().Text())
		if key != "" && val != "" {
			attrs[key] = val
		}
	})
	doc.Find("#attribute table tr, table.attributes tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		key := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(cells.First().Text()), ":")))
		val := strings.TrimSpace(cells.Eq(1).Text())
		if key != "" && val != "" {
			if _, ok := attrs[key]; !ok {
				attrs[key] = val
			}
		}
	})

	md.CardNumber = attrs["card number"]
	md.ReleaseDate = attrs["release date"]
	md.Genre = attrs["genre"]
	md.Notes = attrs["notes"]
	// The marketplace id must be purely numeric; anything else is the page
	// putting prose where an id belongs.
	if id := attrs["tcgplayer id"]; allDigitsPattern.MatchString(id) {
		md.TCGPlayerID = id
	}

	pageText := doc.Text()
	if md.ReleaseDate == "" {
		if m := releaseDatePattern.FindStringSubmatch(pageText); m != nil {
			md.ReleaseDate = m[1]
		}
	}
	if md.TCGPlayerID == "" {
		if m := tcgplayerIDPattern.FindStringSubmatch(pageText); m != nil {
			md.TCGPlayerID = m[1]
		}
	}
	if md.CardNumber == "" {
		title := doc.Find("h1#product_name, h1").First().Text()
		if m := titleNumberPattern.FindStringSubmatch(strings.ToUpper(title)); m != nil {
			md.CardNumber = m[1]
		}
	}
	if md.CardNumber == "" {
		if m := urlTrailingPattern.FindStringSubmatch(finalURL); m != nil {
			candidate := strings.ToUpper(m[1])
			if numberShapePattern.MatchString(candidate) {
				md.CardNumber = candidate
			}
		}
	}

	if md.TCGPlayerID != "" {
		md.TCGPlayerURL = fmt.Sprintf(tcgplayerURLTemplate, md.TCGPlayerID)
	}

	return md
}

var errorHeadingPattern = regexp.MustCompile(`(?i)\b(page not found|not found|no results found)\b`)

// isErrorPage reports whether the document is the site's not-found or
// error page, detected from its headings.
func isErrorPage(doc *goquery.Document) bool {
	found := false
	doc.Find("h1, h2").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if errorHeadingPattern.MatchString(h.Text()) {
			found = true
			return false
		}
		return true
	})
	return found
}

// isOffersPage reports whether the document is an offers listing rather
// than a priced game page.
func isOffersPage(doc *goquery.Document, pageURL string) bool {
	if strings.Contains(pageURL, "/offers") {
		return true
	}
	return doc.Find("#offers_table, table.offers").Length() > 0
}

// gamePageLink finds the canonical game-page URL on an offers page, first
// via the "See Historic Prices" link and then via any pokemon game href.
func gamePageLink(doc *goquery.Document) string {
	var href string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(a.Text()), "see historic prices") {
			href, _ = a.Attr("href")
			return false
		}
		return true
	})
	if href != "" {
		return href
	}
	doc.Find(`a[href*="/game/pokemon-"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ = a.Attr("href")
		return false
	})
	return href
}

func (s *PriceChartingService) fetchDocument(ctx context.Context, pageURL, kind string) (*goquery.Document, error) {
	if err := s.gate.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", scrapeUserAgent)

	metrics.ScrapeRequestsTotal.WithLabelValues(kind).Inc()
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.ScrapeErrorsTotal.Inc()
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ScrapeErrorsTotal.Inc()
		return nil, fmt.Errorf("fetching %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		metrics.ScrapeErrorsTotal.Inc()
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	return doc, nil
}

// resolveURL makes a possibly-relative href absolute against the site base.
func (s *PriceChartingService) resolveURL(href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return s.baseURL + href
}

// ScrapeProduct fetches a product page and returns prices plus metadata.
// Offers listings carry no usable prices, so when the fetched page turns
// out to be one, the linked game page is followed exactly once.
func (s *PriceChartingService) ScrapeProduct(ctx context.Context, pageURL string) (*ProductScrape, error) {
	if cached, ok := s.productCache.Get(pageURL); ok {
		metrics.ScrapeCacheHitsTotal.Inc()
		return cached, nil
	}

	doc, err := s.fetchDocument(ctx, pageURL, "product")
	if err != nil {
		return nil, err
	}
	if isErrorPage(doc) {
		return nil, nil
	}

	finalURL := pageURL
	if isOffersPage(doc, pageURL) {
		next := s.resolveURL(gamePageLink(doc))
		if next == "" {
			return nil, fmt.Errorf("offers page %s has no game page link", pageURL)
		}
		doc, err = s.fetchDocument(ctx, next, "product")
		if err != nil {
			return nil, err
		}
		if isErrorPage(doc) {
			return nil, nil
		}
		finalURL = next
	}

	result := &ProductScrape{
		Prices:   extractGradePrices(doc),
		Metadata: extractProductMetadata(doc, finalURL),
		FinalURL: finalURL,
	}

	s.productCache.Add(pageURL, result)
	return result, nil
}

const maxSearchResults = 10

var (
	nameSlashNumberPattern = regexp.MustCompile(`(\d+)/\d+`)
	bareTokenPattern       = regexp.MustCompile(`^[A-Z]*\d+[A-Z]*$`)
)

// numberFromText finds a collector number in free text: printed/total
// notation, a hash-prefixed code, or a bare alphanumeric token. Bare tokens
// must contain a digit so print flags like "GX" never masquerade as numbers.
func numberFromText(text string) string {
	if m := nameSlashNumberPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := titleNumberPattern.FindStringSubmatch(strings.ToUpper(text)); m != nil {
		return m[1]
	}
	for _, tok := range strings.Fields(strings.ToUpper(text)) {
		if bareTokenPattern.MatchString(tok) {
			return tok
		}
	}
	return ""
}

// resultNumber infers a collector number for a search row. The original
// query is the most reliable source (the user usually typed the number),
// then the product name, then a number-shaped URL tail.
func resultNumber(query, name, rowURL string) string {
	if n := numberFromText(query); n != "" {
		return n
	}
	if n := numberFromText(name); n != "" {
		return n
	}
	if m := urlTrailingPattern.FindStringSubmatch(rowURL); m != nil {
		candidate := strings.ToUpper(m[1])
		if numberShapePattern.MatchString(candidate) {
			return candidate
		}
	}
	return ""
}

// parseSearchRow converts one listing row into a SearchResult, or nil when
// the row has no product name.
func (s *PriceChartingService) parseSearchRow(query string, row *goquery.Selection) *SearchResult {
	nameSel := row.Find("td.meta h2.product_name, h2.product_name")
	name := strings.TrimSpace(nameSel.Text())
	if name == "" {
		return nil
	}

	href, _ := nameSel.Find("a").Attr("href")
	if href == "" {
		href, _ = row.Find("a").First().Attr("href")
	}
	rowURL := s.resolveURL(href)

	setName := ""
	row.Find("td.meta p, td.meta .console_name").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		setName = strings.TrimSpace(p.Text())
		return false
	})
	setName = strings.TrimPrefix(setName, "Pokemon ")

	img, _ := row.Find("td.photo img").Attr("src")

	return &SearchResult{
		Name:          name,
		SetName:       setName,
		Number:        resultNumber(query, name, rowURL),
		ImageURL:      img,
		URL:           rowURL,
		UngradedCents: parsePriceText(row.Find("td.price, p.price").First().Text()),
	}
}

// Search runs a free-text query against the site and returns up to ten
// parsed result rows.
func (s *PriceChartingService) Search(ctx context.Context, query string) ([]SearchResult, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if cached, ok := s.searchCache.Get(key); ok {
		metrics.ScrapeCacheHitsTotal.Inc()
		return cached, nil
	}

	searchURL := fmt.Sprintf("%s/search-products?type=prices&q=%s", s.baseURL, url.QueryEscape(query))
	doc, err := s.fetchDocument(ctx, searchURL, "search")
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	rows := doc.Find("tr.offer")
	if rows.Length() == 0 {
		rows = doc.Find("#games_table tbody tr, table tbody tr")
	}
	rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if r := s.parseSearchRow(query, row); r != nil {
			results = append(results, *r)
		}
		return len(results) < maxSearchResults
	})

	log.Printf("Scraper: search %q returned %d results", query, len(results))
	s.searchCache.Add(key, results)
	return results, nil
}

// OffersURL builds the stable per-product offers URL used for refreshes.
func (s *PriceChartingService) OffersURL(productID string) string {
	return fmt.Sprintf("%s/offers?product=%s", s.baseURL, url.QueryEscape(productID))
}

// ProductIDFromURL pulls the product id out of an offers URL, or "" when
// the URL carries none.
func ProductIDFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("product")
}

// setSlugMapping maps normalized set names to their site URL slugs where
// slugification alone gets it wrong.
var setSlugMapping = map[string]string{
	"base set":         "pokemon-base-set",
	"base":             "pokemon-base-set",
	"jungle":           "pokemon-jungle",
	"fossil":           "pokemon-fossil",
	"team rocket":      "pokemon-team-rocket",
	"base set 2":       "pokemon-base-set-2",
	"gym heroes":       "pokemon-gym-heroes",
	"gym challenge":    "pokemon-gym-challenge",
	"neo genesis":      "pokemon-neo-genesis",
	"neo discovery":    "pokemon-neo-discovery",
	"neo revelation":   "pokemon-neo-revelation",
	"neo destiny":      "pokemon-neo-destiny",
	"151":              "pokemon-scarlet-&-violet-151",
	"scarlet violet":   "pokemon-scarlet-&-violet",
	"crimson invasion": "pokemon-crimson-invasion",
	"evolving skies":   "pokemon-evolving-skies",
	"hidden fates":     "pokemon-hidden-fates",
	"celebrations":     "pokemon-celebrations",
}

var slugStripPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases and collapses everything non-alphanumeric to single
// hyphens, matching the site's URL scheme.
func slugify(s string) string {
	out := slugStripPattern.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(out, "-")
}

var leadingDigitsPattern = regexp.MustCompile(`^\d+`)

// BuildCardURL constructs the expected game-page URL for a card when no
// product id is known yet. The guess is verified by the scrape itself:
// a miss surfaces as a fetch error or an offers redirect.
func (s *PriceChartingService) BuildCardURL(name, setName, number string) string {
	setSlug, ok := setSlugMapping[strings.ToLower(strings.TrimSpace(setName))]
	if !ok {
		setSlug = "pokemon-" + slugify(setName)
	}

	cardSlug := slugify(name)
	if digits := leadingDigitsPattern.FindString(number); digits != "" {
		cardSlug += "-" + digits
	}

	return fmt.Sprintf("%s/game/%s/%s", s.baseURL, setSlug, cardSlug)
}
