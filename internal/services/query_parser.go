package services

import (
	"regexp"
	"sort"
	"strings"
)

// ParsedQuery is the structured form of a free-text card search. NameTokens
// hold whatever was left after numbers, flags, and punctuation were removed.
type ParsedQuery struct {
	NameTokens []string `json:"name_tokens"`
	Number     string   `json:"number"`
	Denom      string   `json:"denom"` // set size when written as 57/111
	Flags      []string `json:"flags"` // canonical, sorted: "ex", "gx", ...
	SetHints   []string `json:"set_hints"`
}

// Name returns the space-joined name tokens.
func (q *ParsedQuery) Name() string {
	return strings.Join(q.NameTokens, " ")
}

// HasFlag reports whether a canonical flag was present in the query.
func (q *ParsedQuery) HasFlag(flag string) bool {
	for _, f := range q.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

var (
	// 57 or 57/111, bounded so "150hp" is not read as a number
	queryNumberPattern = regexp.MustCompile(`\b(\d{1,3})(?:/(\d{1,3}))?\b`)

	queryFlagPattern = regexp.MustCompile(`(?i)\b(?:gx|ex|vmax|v[- ]?star|v\b|full\s*art|reverse|holo|shadowless)\b`)

	nonQueryChars = regexp.MustCompile(`[^a-z0-9/\s-]`)
	multiSpace    = regexp.MustCompile(`\s+`)
)

// setHintVocabulary is the recognized set-name words. A token matching one
// of these is treated as a set hint rather than part of the card name.
var setHintVocabulary = map[string]bool{
	"base": true, "jungle": true, "fossil": true, "rocket": true,
	"gym": true, "neo": true, "genesis": true, "discovery": true,
	"revelation": true, "destiny": true, "expedition": true, "aquapolis": true,
	"skyridge": true, "ruby": true, "sapphire": true, "sandstorm": true,
	"dragon": true, "magma": true, "aqua": true, "hidden": true,
	"fates": true, "evolutions": true, "evolving": true, "skies": true,
	"fusion": true, "strike": true, "brilliant": true, "stars": true,
	"astral": true, "radiance": true, "origin": true, "silver": true,
	"tempest": true, "crown": true, "zenith": true, "scarlet": true,
	"violet": true, "paldea": true, "obsidian": true, "flames": true,
	"paradox": true, "rift": true, "temporal": true, "forces": true,
	"twilight": true, "masquerade": true, "stellar": true, "surging": true,
	"sparks": true, "151": true, "crimson": true, "invasion": true,
	"burning": true, "shadows": true, "guardians": true, "rising": true,
	"ultra": true, "prism": true, "celestial": true, "storm": true,
	"lost": true, "thunder": true, "unbroken": true, "bonds": true,
	"unified": true, "minds": true, "cosmic": true, "eclipse": true,
	"rebel": true, "clash": true, "darkness": true, "ablaze": true,
	"vivid": true, "voltage": true, "shining": true, "champions": true,
	"path": true, "battle": true, "styles": true, "chilling": true,
	"reign": true, "celebrations": true,
}

// ParseQuery breaks a raw search string into name tokens, a collector
// number, special-print flags, and set hints.
//
// Flags are recognized before numbers are stripped so that "gx 57" keeps
// both. When flags are present but no slash-form number matched, a trailing
// standalone digit token is still treated as the collector number.
func ParseQuery(raw string) *ParsedQuery {
	q := &ParsedQuery{}

	s := strings.ToLower(strings.TrimSpace(raw))
	// Apostrophes join letters ("farfetch'd"); everything else splits them
	s = strings.ReplaceAll(s, "'", "")
	s = nonQueryChars.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	if s == "" {
		return q
	}

	// Flags first, then remove them so they never leak into the name
	flagSet := map[string]bool{}
	s = queryFlagPattern.ReplaceAllStringFunc(s, func(m string) string {
		flagSet[canonicalFlag(m)] = true
		return " "
	})

	// Collector number: first slash-or-bare form wins, all forms removed
	first := true
	s = queryNumberPattern.ReplaceAllStringFunc(s, func(m string) string {
		if first {
			first = false
			parts := queryNumberPattern.FindStringSubmatch(m)
			q.Number = parts[1]
			q.Denom = parts[2]
		}
		return " "
	})

	for _, tok := range strings.Fields(s) {
		if setHintVocabulary[tok] {
			q.SetHints = append(q.SetHints, tok)
		} else {
			q.NameTokens = append(q.NameTokens, tok)
		}
	}

	for f := range flagSet {
		q.Flags = append(q.Flags, f)
	}
	sort.Strings(q.Flags)

	return q
}

// canonicalFlag collapses spelling variants: "V-Star", "v star" and "vstar"
// are the same flag, as are "full art" and "fullart".
func canonicalFlag(m string) string {
	f := strings.ToLower(m)
	f = strings.ReplaceAll(f, " ", "")
	f = strings.ReplaceAll(f, "-", "")
	return f
}
