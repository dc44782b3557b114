package services

import (
	"errors"
	"reflect"
	"testing"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

func searchRows() []models.CatalogRow {
	return []models.CatalogRow{
		{ID: 1, PlayerName: "Victor Wembanyama", SetName: "Panini Prizm", Year: "2023", Variant: "Silver", CardNumber: "136", URL: "u1"},
		{ID: 2, PlayerName: "Victor Wembanyama", SetName: "Panini Prizm", Year: "2023", Variant: "Base", CardNumber: "136", URL: "u2"},
		{ID: 3, PlayerName: "Victor Wembanyama", SetName: "Panini Prizm", Year: "2024", Variant: "Silver", CardNumber: "7", URL: "u3"},
		{ID: 4, PlayerName: "Victor Wembanyama", SetName: "Donruss Optic", Year: "2023", Variant: "Silver", CardNumber: "136", URL: "u4"},
		{ID: 5, PlayerName: "Scoot Henderson", SetName: "Panini Prizm", Year: "2023", Variant: "Silver", CardNumber: "136", URL: "u5"},
	}
}

func rowIDs(rows []models.CatalogRow) []uint {
	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestValidateCardSearchFilters(t *testing.T) {
	tests := []struct {
		name        string
		filters     CardSearchFilters
		wantMissing []string
	}{
		{"both present", CardSearchFilters{PlayerID: "victor-wembanyama", SetSlug: "prizm"}, nil},
		{"no player", CardSearchFilters{SetSlug: "prizm"}, []string{"player_id"}},
		{"no set", CardSearchFilters{PlayerID: "wembanyama", Year: "2023"}, []string{"set_slug"}},
		{"blank both", CardSearchFilters{PlayerID: "  ", SetSlug: "--"}, []string{"player_id", "set_slug"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCardSearchFilters(tt.filters)
			if tt.wantMissing == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var mfe *MissingFiltersError
			if !errors.As(err, &mfe) {
				t.Fatalf("error = %v, want MissingFiltersError", err)
			}
			if !reflect.DeepEqual(mfe.Missing, tt.wantMissing) {
				t.Errorf("Missing = %v, want %v", mfe.Missing, tt.wantMissing)
			}
		})
	}
}

func TestRunCardSearchStrict(t *testing.T) {
	f := CardSearchFilters{PlayerID: "victor-wembanyama", SetSlug: "prizm", Year: "2023", Parallel: "silver", CardNumber: "#136"}
	got, err := RunCardSearch(searchRows(), f, CardSearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rowIDs(got.Results), []uint{1}) {
		t.Errorf("results = %v, want [1]", rowIDs(got.Results))
	}
	if got.Relaxed || got.CanRelax {
		t.Errorf("relaxed/canRelax = %v/%v, want false/false", got.Relaxed, got.CanRelax)
	}
}

func TestRunCardSearchRelaxationIsOptIn(t *testing.T) {
	f := CardSearchFilters{PlayerID: "wembanyama", SetSlug: "panini-prizm", Year: "2025", Parallel: "Gold"}

	strict, err := RunCardSearch(searchRows(), f, CardSearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(strict.Results) != 0 {
		t.Errorf("strict results = %v, want none", rowIDs(strict.Results))
	}
	if !strict.CanRelax || strict.Relaxed {
		t.Errorf("canRelax/relaxed = %v/%v, want true/false", strict.CanRelax, strict.Relaxed)
	}
	if strict.Results == nil {
		t.Error("empty results should be an empty slice, not nil")
	}

	relaxed, err := RunCardSearch(searchRows(), f, CardSearchOptions{RelaxOptional: true})
	if err != nil {
		t.Fatal(err)
	}
	if !relaxed.Relaxed || len(relaxed.Results) == 0 {
		t.Fatalf("relaxed = %v with %d results", relaxed.Relaxed, len(relaxed.Results))
	}
	for _, r := range relaxed.Results {
		if r.PlayerName != "Victor Wembanyama" || r.SetName != "Panini Prizm" {
			t.Errorf("relaxation bypassed required filters: %+v", r)
		}
	}
}

func TestRunCardSearchNothingToRelax(t *testing.T) {
	f := CardSearchFilters{PlayerID: "lebron-james", SetSlug: "prizm", Year: "2003"}
	got, err := RunCardSearch(searchRows(), f, CardSearchOptions{RelaxOptional: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.CanRelax || got.Relaxed || len(got.Results) != 0 {
		t.Errorf("got %+v, want empty without relaxation", got)
	}
}

func TestRunCardSearchInvalid(t *testing.T) {
	_, err := RunCardSearch(searchRows(), CardSearchFilters{PlayerID: "wembanyama"}, CardSearchOptions{})
	var mfe *MissingFiltersError
	if !errors.As(err, &mfe) {
		t.Fatalf("error = %v, want MissingFiltersError", err)
	}
}

func TestRunCardSearchLimit(t *testing.T) {
	var rows []models.CatalogRow
	for i := 0; i < 300; i++ {
		rows = append(rows, models.CatalogRow{ID: uint(i + 1), PlayerName: "Mike Trout", SetName: "Topps"})
	}
	f := CardSearchFilters{PlayerID: "trout", SetSlug: "topps"}

	tests := []struct {
		limit int
		want  int
	}{
		{0, DefaultSearchLimit},
		{10, 10},
		{1000, MaxSearchLimit},
	}
	for _, tt := range tests {
		got, err := RunCardSearch(rows, f, CardSearchOptions{Limit: tt.limit})
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Results) != tt.want {
			t.Errorf("limit %d: %d results, want %d", tt.limit, len(got.Results), tt.want)
		}
	}
}

func TestRankCards(t *testing.T) {
	f := CardSearchFilters{PlayerID: "wembanyama", SetSlug: "prizm", Year: "2023", Parallel: "Silver", CardNumber: "136"}
	rows := []models.CatalogRow{
		{ID: 10, Year: "2024", Variant: "Base", CardNumber: "7"},   // 0 matches
		{ID: 11, Year: "2023", Variant: "Base", CardNumber: "7"},   // 1
		{ID: 12, Year: "2023", Variant: "Silver", CardNumber: "136"}, // 3
		{ID: 13, Year: "2024", Variant: "Silver", CardNumber: "7"}, // 1
	}
	got := rowIDs(RankCards(rows, f))
	want := []uint{12, 11, 13, 10}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RankCards = %v, want %v", got, want)
	}
}

func TestFilterListings(t *testing.T) {
	req := models.CardRequest{PlayerName: "Ken Griffey Jr.", CardNumber: "1", SetName: "Upper Deck", Year: "1989"}
	listings := []models.Listing{
		{Title: "1989 Upper Deck Ken Griffey Jr #1 Rookie", Price: 100},
		{Title: "1989 Upper Deck Griffey Rookie", Price: 90},
		{Title: "1989 Upper Deck Ken Griffey Jr #2 Star Rookie", Price: 80},
		{Title: "1989 Upper Deck Griffey #1 PSA 9", Price: 300},
		{Title: "1989 Upper Deck Griffey", CardNumber: "24", Price: 10},
		{Title: "1989 Upper Deck Randy Johnson #25", Price: 20},
	}
	got := FilterListings(listings, req)
	var prices []float64
	for _, l := range got {
		prices = append(prices, l.Price)
	}
	if !reflect.DeepEqual(prices, []float64{100, 90}) {
		t.Errorf("raw request kept %v, want [100 90]", prices)
	}

	req.Grader, req.Grade = "PSA", "9"
	graded := FilterListings(listings, req)
	if len(graded) != 1 || graded[0].Price != 300 {
		t.Errorf("graded request kept %v", graded)
	}
}

func TestSlugify(t *testing.T) {
	if got := slugify("  Panini  Prizm! "); got != "panini-prizm" {
		t.Errorf("slugify = %q", got)
	}
	if got := playerSurname("Ken Griffey Jr."); got != "griffey" {
		t.Errorf("playerSurname = %q", got)
	}
}
