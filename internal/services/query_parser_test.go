package services

import (
	"reflect"
	"testing"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantYear     string
		wantPlayer   []string
		wantProduct  []string
		wantInsert   []string
		wantParallel []string
		wantRookie   bool
		wantDraft    bool
	}{
		{
			name:         "prizm rookie with number",
			input:        "2023 Prizm Victor Wembanyama Silver Prizm RC #136",
			wantYear:     "2023",
			wantPlayer:   []string{"victor", "wembanyama"},
			wantProduct:  []string{"prizm"},
			wantParallel: []string{"silver", "prizm"},
			wantRookie:   true,
		},
		{
			name:        "rated rookie synonym",
			input:       "Luka Doncic RR Donruss 2018",
			wantYear:    "2018",
			wantPlayer:  []string{"luka", "doncic"},
			wantProduct: []string{"donruss"},
			wantInsert:  []string{"rated rookie"},
		},
		{
			name:        "split season and draft words",
			input:       "2023-24 Bowman Chrome Draft Prospects",
			wantYear:    "2023",
			wantProduct: []string{"bowman", "chrome"},
			wantDraft:   true,
		},
		{
			name:        "draft bigrams consume product words",
			input:       "Bowman Draft 1st Bowman Chrome Auto Jackson Holliday",
			wantPlayer:  []string{"jackson", "holliday"},
			wantProduct: []string{"chrome"},
			wantDraft:   true,
		},
		{
			name:         "serial numbering is a parallel",
			input:        "Ohtani Topps Chrome Gold Refractor /50",
			wantPlayer:   []string{"ohtani"},
			wantProduct:  []string{"topps", "chrome"},
			wantParallel: []string{"gold", "refractor", "/50"},
		},
		{
			name:        "upper deck synonym",
			input:       "1989 Upper Deck Ken Griffey Jr. Rookie",
			wantYear:    "1989",
			wantPlayer:  []string{"ken", "griffey", "jr"},
			wantProduct: []string{"upperdeck"},
			wantRookie:  true,
		},
		{
			name:  "noise only",
			input: "the card PSA graded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseQuery(tt.input)
			if got.Year != tt.wantYear {
				t.Errorf("Year = %q, want %q", got.Year, tt.wantYear)
			}
			if !reflect.DeepEqual(got.PlayerTokens, tt.wantPlayer) {
				t.Errorf("PlayerTokens = %v, want %v", got.PlayerTokens, tt.wantPlayer)
			}
			if !reflect.DeepEqual(got.ProductTokens, tt.wantProduct) {
				t.Errorf("ProductTokens = %v, want %v", got.ProductTokens, tt.wantProduct)
			}
			if !reflect.DeepEqual(got.InsertTokens, tt.wantInsert) {
				t.Errorf("InsertTokens = %v, want %v", got.InsertTokens, tt.wantInsert)
			}
			if !reflect.DeepEqual(got.ParallelTokens, tt.wantParallel) {
				t.Errorf("ParallelTokens = %v, want %v", got.ParallelTokens, tt.wantParallel)
			}
			if got.RookieSignal != tt.wantRookie {
				t.Errorf("RookieSignal = %v, want %v", got.RookieSignal, tt.wantRookie)
			}
			if got.DraftSignal != tt.wantDraft {
				t.Errorf("DraftSignal = %v, want %v", got.DraftSignal, tt.wantDraft)
			}
			if got.ProductRequested != (len(tt.wantProduct) > 0) {
				t.Errorf("ProductRequested = %v", got.ProductRequested)
			}
		})
	}
}

func TestParseQueryInsertBigramBeatsRookie(t *testing.T) {
	got := ParseQuery("rated rookie")
	if got.RookieSignal {
		t.Error("tokens of an insert phrase must not also count as a rookie signal")
	}
	if !reflect.DeepEqual(got.InsertTokens, []string{"rated rookie"}) {
		t.Errorf("InsertTokens = %v", got.InsertTokens)
	}
}

func TestParseQueryPlayerTokensSkipDigits(t *testing.T) {
	got := ParseQuery("Mike 27 Trout Angels Halo Legend")
	want := []string{"mike", "trout", "angels"}
	if !reflect.DeepEqual(got.PlayerTokens, want) {
		t.Errorf("PlayerTokens = %v, want %v", got.PlayerTokens, want)
	}
	if !reflect.DeepEqual(got.GenericTokens, []string{"mike", "27", "trout", "angels", "halo", "legend"}) {
		t.Errorf("GenericTokens = %v", got.GenericTokens)
	}
}

func TestNormalizeQueryText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Wemby!!  Prizm, RR ", "wemby prizm rated rookie"},
		{"X-Fractor auto", "xfractor autograph"},
		{"Allen & Ginter", "allenginter"},
		{"Topps /99", "topps /99"},
		{"carr", "carr"},
	}
	for _, tt := range tests {
		if got := normalizeQueryText(tt.in); got != tt.want {
			t.Errorf("normalizeQueryText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
