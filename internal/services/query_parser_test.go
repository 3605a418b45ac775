package services

import (
	"reflect"
	"testing"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantTokens []string
		wantNumber string
		wantDenom  string
		wantFlags  []string
		wantHints  []string
	}{
		{
			name:       "name with flag and trailing number",
			raw:        "buzzwole gx 57",
			wantTokens: []string{"buzzwole"},
			wantNumber: "57",
			wantFlags:  []string{"gx"},
		},
		{
			name:       "slash number",
			raw:        "charizard 4/102",
			wantTokens: []string{"charizard"},
			wantNumber: "4",
			wantDenom:  "102",
		},
		{
			name:       "plain name",
			raw:        "Pikachu",
			wantTokens: []string{"pikachu"},
		},
		{
			name:       "vstar spelling variants collapse",
			raw:        "arceus v-star",
			wantTokens: []string{"arceus"},
			wantFlags:  []string{"vstar"},
		},
		{
			name:       "v star with space",
			raw:        "arceus v star",
			wantTokens: []string{"arceus"},
			wantFlags:  []string{"vstar"},
		},
		{
			name:       "full art two words",
			raw:        "lugia full art 186",
			wantTokens: []string{"lugia"},
			wantNumber: "186",
			wantFlags:  []string{"fullart"},
		},
		{
			name:       "set hint separated from name",
			raw:        "blastoise base set",
			wantTokens: []string{"blastoise", "set"},
			wantHints:  []string{"base"},
		},
		{
			name:       "multiple flags sorted",
			raw:        "charizard reverse holo",
			wantTokens: []string{"charizard"},
			wantFlags:  []string{"holo", "reverse"},
		},
		{
			name:       "punctuation stripped",
			raw:        "Farfetch'd (GX)!",
			wantTokens: []string{"farfetchd"},
			wantFlags:  []string{"gx"},
		},
		{
			name: "empty input",
			raw:  "   ",
		},
		{
			name:       "bare v is a flag not a name token",
			raw:        "mewtwo v 30",
			wantTokens: []string{"mewtwo"},
			wantNumber: "30",
			wantFlags:  []string{"v"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseQuery(tt.raw)
			if !reflect.DeepEqual(got.NameTokens, tt.wantTokens) {
				t.Errorf("NameTokens = %v, want %v", got.NameTokens, tt.wantTokens)
			}
			if got.Number != tt.wantNumber {
				t.Errorf("Number = %q, want %q", got.Number, tt.wantNumber)
			}
			if got.Denom != tt.wantDenom {
				t.Errorf("Denom = %q, want %q", got.Denom, tt.wantDenom)
			}
			if !reflect.DeepEqual(got.Flags, tt.wantFlags) {
				t.Errorf("Flags = %v, want %v", got.Flags, tt.wantFlags)
			}
			if !reflect.DeepEqual(got.SetHints, tt.wantHints) {
				t.Errorf("SetHints = %v, want %v", got.SetHints, tt.wantHints)
			}
		})
	}
}

func TestParseQueryFirstNumberWins(t *testing.T) {
	got := ParseQuery("rayquaza 22/100 7")
	if got.Number != "22" || got.Denom != "100" {
		t.Errorf("got number %q/%q, want 22/100", got.Number, got.Denom)
	}
	// Later numeric tokens are removed, not kept as name tokens
	if len(got.NameTokens) != 1 || got.NameTokens[0] != "rayquaza" {
		t.Errorf("NameTokens = %v, want [rayquaza]", got.NameTokens)
	}
}

func TestParseQueryIdempotent(t *testing.T) {
	queries := []string{
		"buzzwole gx 57",
		"charizard 4/102",
		"blastoise base set",
		"arceus v-star",
	}
	for _, raw := range queries {
		first := ParseQuery(raw)
		second := ParseQuery(first.Name())
		if !reflect.DeepEqual(second.NameTokens, first.NameTokens) {
			t.Errorf("%q: reparsing name %v yielded %v", raw, first.NameTokens, second.NameTokens)
		}
		if second.Number != "" || len(second.Flags) != 0 || len(second.SetHints) != 0 {
			t.Errorf("%q: reparsed name tokens produced number/flags/hints: %+v", raw, second)
		}
	}
}

func TestParseQueryHasFlag(t *testing.T) {
	q := ParseQuery("umbreon vmax alt")
	if !q.HasFlag("vmax") {
		t.Error("expected vmax flag")
	}
	if q.HasFlag("gx") {
		t.Error("unexpected gx flag")
	}
}
