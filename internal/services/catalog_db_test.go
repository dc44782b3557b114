package services

import (
	"context"
	"testing"
	"time"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

func TestCatalogDBSaveListingsUpsertsByURL(t *testing.T) {
	db := newTestDB(t)
	src := NewCatalogDBSource(db)
	ctx := context.Background()
	req := models.CardRequest{PlayerName: "Victor Wembanyama", Year: "2023", SetName: "Prizm"}
	sold := time.Now().Add(-48 * time.Hour)

	first := []models.Listing{
		{Title: "2023 Prizm Victor Wembanyama #136 PSA 10", Price: 1100, SoldAt: &sold, URL: "https://x/1", Source: "ebay"},
		{Title: "2023 Prizm Victor Wembanyama #136", Price: 150, URL: "https://x/2", Source: "ebay"},
		{Title: "no url", Price: 10},
		{Title: "bad price", Price: -1, URL: "https://x/3"},
	}
	n, err := src.SaveListings(ctx, req, first)
	if err != nil {
		t.Fatalf("SaveListings() error = %v", err)
	}
	if n != 2 {
		t.Errorf("saved %d rows, want 2", n)
	}

	if _, err := src.SaveListings(ctx, req, []models.Listing{
		{Title: "2023 Prizm Victor Wembanyama #136 PSA 10", Price: 1175, SoldAt: &sold, URL: "https://x/1", Source: "ebay"},
	}); err != nil {
		t.Fatal(err)
	}

	var rows []models.CatalogRow
	db.Order("url").Find(&rows)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Price != 1175 {
		t.Errorf("price = %v, want upserted 1175", rows[0].Price)
	}
	if rows[0].Grader != "PSA" || rows[0].Grade != "10" || rows[0].CardNumber != "136" {
		t.Errorf("grade/number not derived from title: %+v", rows[0])
	}
}

func TestCatalogDBSaveListingsUsesSaleFacts(t *testing.T) {
	db := newTestDB(t)
	src := NewCatalogDBSource(db)
	ctx := context.Background()
	req := models.CardRequest{PlayerName: "Victor Wembanyama", Year: "2023", SetName: "Prizm", Parallel: "Silver"}

	_, err := src.SaveListings(ctx, req, []models.Listing{
		{Title: "2019 Donruss Victor Wembanyama #7 PSA 10", Price: 300, URL: "https://x/donruss"},
		{Title: "Victor Wembanyama rookie card", Price: 20, URL: "https://x/bare"},
		{Title: "Wembanyama rookie", Price: 25, URL: "https://x/api", SetName: "Hoops", Year: "2023-24", Variant: "Blue"},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		url                        string
		year, set, variant, number string
	}{
		{"https://x/donruss", "2019", "Donruss", "", "7"},
		{"https://x/bare", "", "", "", ""},
		{"https://x/api", "2023", "Hoops", "Blue", ""},
	}
	for _, tt := range tests {
		var row models.CatalogRow
		if err := db.Where("url = ?", tt.url).First(&row).Error; err != nil {
			t.Fatalf("%s: %v", tt.url, err)
		}
		if row.Year != tt.year || row.SetName != tt.set || row.Variant != tt.variant || row.CardNumber != tt.number {
			t.Errorf("%s: year=%q set=%q variant=%q number=%q, want %q %q %q %q",
				tt.url, row.Year, row.SetName, row.Variant, row.CardNumber, tt.year, tt.set, tt.variant, tt.number)
		}
		if row.PlayerName != "Victor Wembanyama" {
			t.Errorf("%s: player = %q", tt.url, row.PlayerName)
		}
	}

	rows, err := src.SearchRows(ctx, CardSearchFilters{PlayerID: "victor-wembanyama", SetSlug: "prizm"})
	if err != nil {
		t.Fatal(err)
	}
	result, err := RunCardSearch(rows, CardSearchFilters{PlayerID: "victor-wembanyama", SetSlug: "prizm", Year: "2023"}, CardSearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Results) != 0 {
		t.Errorf("strict 2023 Prizm search matched %+v", result.Results)
	}
}

func TestCatalogDBFetchListings(t *testing.T) {
	db := newTestDB(t)
	src := NewCatalogDBSource(db)
	ctx := context.Background()

	src.SaveListings(ctx, models.CardRequest{PlayerName: "Victor Wembanyama", SetName: "Prizm"}, []models.Listing{
		{Title: "2023 Prizm Victor Wembanyama #136", Price: 150, URL: "https://x/1"},
	})
	src.SaveListings(ctx, models.CardRequest{PlayerName: "Mike Trout", SetName: "Topps Update"}, []models.Listing{
		{Title: "2011 Topps Update Mike Trout #US175", Price: 900, URL: "https://x/2"},
	})

	listings, err := src.FetchListings(ctx, ListingQuery{Request: models.CardRequest{PlayerName: "Wembanyama"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(listings) != 1 || listings[0].URL != "https://x/1" {
		t.Errorf("listings = %+v", listings)
	}

	none, err := src.FetchListings(ctx, ListingQuery{})
	if err != nil || len(none) != 0 {
		t.Errorf("empty request = %v, %v", none, err)
	}
}

func TestCatalogDBSearchRows(t *testing.T) {
	db := newTestDB(t)
	src := NewCatalogDBSource(db)
	rows := []models.CatalogRow{
		{PlayerName: "Victor Wembanyama", SetName: "Panini Prizm", Year: "2023", URL: "a"},
		{PlayerName: "Victor Wembanyama", SetName: "Donruss", Year: "2023", URL: "b"},
		{PlayerName: "Mike Trout", SetName: "Panini Prizm", Year: "2023", URL: "c"},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatal(err)
	}

	got, err := src.SearchRows(context.Background(), CardSearchFilters{PlayerID: "victor-wembanyama", SetSlug: "prizm"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].URL != "a" {
		t.Errorf("SearchRows() = %+v", got)
	}

	if _, err := src.SearchRows(context.Background(), CardSearchFilters{PlayerID: "trout"}); err == nil {
		t.Error("expected missing set_slug error")
	}
}

func TestLikePattern(t *testing.T) {
	tests := map[string]string{
		"victor-wembanyama": "%victor%wembanyama%",
		"Panini Prizm":      "%panini%prizm%",
		"":                  "%",
	}
	for in, want := range tests {
		if got := likePattern(in); got != want {
			t.Errorf("likePattern(%q) = %q, want %q", in, got, want)
		}
	}
}
