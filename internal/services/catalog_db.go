package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

const (
	catalogDBSourceName = "catalog_db"
	// catalogCandidateLimit caps the rows loaded for one card search before filtering
	catalogCandidateLimit = 1000
)

// CatalogDBSource serves listings previously saved to catalog_rows. It backs the
// card-search endpoint and stands in when the live source is down.
type CatalogDBSource struct {
	db *gorm.DB
}

func NewCatalogDBSource(db *gorm.DB) *CatalogDBSource {
	return &CatalogDBSource{db: db}
}

func (s *CatalogDBSource) Name() string {
	return catalogDBSourceName
}

// likePattern turns "victor-wembanyama" or "Victor Wembanyama" into "%victor%wembanyama%".
func likePattern(s string) string {
	words := strings.Fields(strings.ReplaceAll(foldText(s), "-", " "))
	if len(words) == 0 {
		return "%"
	}
	return "%" + strings.Join(words, "%") + "%"
}

// FetchListings returns the newest saved sales mentioning the requested player.
func (s *CatalogDBSource) FetchListings(ctx context.Context, q ListingQuery) ([]models.Listing, error) {
	surname := playerSurname(q.Request.PlayerName)
	if surname == "" {
		return nil, nil
	}

	var rows []models.CatalogRow
	err := s.db.WithContext(ctx).
		Where("LOWER(player_name) LIKE ? OR LOWER(title) LIKE ?", "%"+surname+"%", "%"+surname+"%").
		Order("sold_at DESC").
		Limit(clampLimit(q.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog rows: %w", err)
	}

	listings := make([]models.Listing, 0, len(rows))
	for _, r := range rows {
		listings = append(listings, r.ToListing())
	}
	return listings, nil
}

// SaveListings upserts fetched sales by URL so repeated searches refresh rather than duplicate rows.
// Only the player comes from req. Year, set and variant are what the sale itself states,
// and stay blank when it states nothing, so a strict card search never matches a row
// on the strength of the query that found it.
func (s *CatalogDBSource) SaveListings(ctx context.Context, req models.CardRequest, listings []models.Listing) (int, error) {
	rows := make([]models.CatalogRow, 0, len(listings))
	for _, l := range listings {
		if l.URL == "" || !validPrice(l.Price) {
			continue
		}
		grader, grade := listingGrade(l)
		cardNumber := NormalizeCardNumber(l.CardNumber)
		if cardNumber == "" {
			if nums := ExtractCardNumbers(l.Title); len(nums) == 1 {
				cardNumber = nums[0]
			}
		}
		year, setName, variant := listingCardFacts(l)
		rows = append(rows, models.CatalogRow{
			PlayerName: req.PlayerName,
			SetName:    setName,
			Year:       year,
			Variant:    variant,
			Grader:     grader,
			Grade:      grade,
			CardNumber: cardNumber,
			Price:      l.Price,
			SoldAt:     l.SoldAt,
			Title:      l.Title,
			URL:        l.URL,
			ImageURL:   l.ImageURL,
			Source:     l.Source,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"price", "sold_at", "title", "image_url", "grader", "grade",
			"card_number", "variant", "year", "set_name",
		}),
	}).CreateInBatches(&rows, 100).Error
	if err != nil {
		return 0, fmt.Errorf("failed to save catalog rows: %w", err)
	}
	return len(rows), nil
}

// listingCardFacts returns the year, set family and parallel of a sale. Fields the
// source supplied win; the rest are read from the title.
func listingCardFacts(l models.Listing) (year, setName, variant string) {
	intent := ParseQuery(l.Title)
	year = NormalizeYear(l.Year)
	if year == "" {
		year = NormalizeYear(intent.Year)
	}
	setName = collapseSpaces(l.SetName)
	if setName == "" {
		if family := defaultIdentityRules.resolveSet(l.Title); family != nil {
			setName = family.Family
		}
	}
	variant = collapseSpaces(l.Variant)
	if variant == "" && len(intent.ParallelTokens) > 0 {
		variant = normalizeParallel(strings.Join(intent.ParallelTokens, " "))
	}
	return year, setName, variant
}

// SearchRows loads candidate rows for a card search. The SQL prefilter is loose;
// RunCardSearch applies the exact required and optional filters.
func (s *CatalogDBSource) SearchRows(ctx context.Context, f CardSearchFilters) ([]models.CatalogRow, error) {
	if err := ValidateCardSearchFilters(f); err != nil {
		return nil, err
	}

	var rows []models.CatalogRow
	err := s.db.WithContext(ctx).
		Where("LOWER(player_name) LIKE ? AND LOWER(set_name) LIKE ?", likePattern(f.PlayerID), likePattern(f.SetSlug)).
		Order("sold_at DESC").
		Limit(catalogCandidateLimit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog rows: %w", err)
	}
	return rows, nil
}
