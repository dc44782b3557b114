package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 200
)

// CardSearchFilters narrows catalog rows. PlayerID and SetSlug are required;
// every other field is optional and matched exactly.
type CardSearchFilters struct {
	PlayerID   string `json:"player_id"`
	SetSlug    string `json:"set_slug"`
	Year       string `json:"year,omitempty"`
	Parallel   string `json:"parallel,omitempty"`
	Grader     string `json:"grader,omitempty"`
	Grade      string `json:"grade,omitempty"`
	CardNumber string `json:"card_number,omitempty"`
}

// MissingFiltersError names the required filters absent from a search.
type MissingFiltersError struct {
	Missing []string
}

func (e *MissingFiltersError) Error() string {
	return fmt.Sprintf("missing required filters: %s", strings.Join(e.Missing, ", "))
}

// ValidateCardSearchFilters rejects a search that lacks a required filter.
func ValidateCardSearchFilters(f CardSearchFilters) error {
	var missing []string
	if slugify(f.PlayerID) == "" {
		missing = append(missing, "player_id")
	}
	if slugify(f.SetSlug) == "" {
		missing = append(missing, "set_slug")
	}
	if len(missing) > 0 {
		return &MissingFiltersError{Missing: missing}
	}
	return nil
}

// CardSearchOptions control one catalog search.
type CardSearchOptions struct {
	RelaxOptional bool `json:"relax_optional"`
	Limit         int  `json:"limit"`
}

// CardSearchResult is the outcome of RunCardSearch. Relaxed is true only when the
// caller asked for relaxation and optional filters were actually dropped.
type CardSearchResult struct {
	Results  []models.CatalogRow `json:"results"`
	Relaxed  bool                `json:"relaxed"`
	CanRelax bool                `json:"canRelax"`
}

// slugify folds text to lowercase words joined by dashes: "Panini Prizm" -> "panini-prizm".
func slugify(s string) string {
	return strings.ReplaceAll(foldText(s), " ", "-")
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	}
	return limit
}

func matchesRequired(row models.CatalogRow, f CardSearchFilters) bool {
	return strings.Contains(slugify(row.PlayerName), slugify(f.PlayerID)) &&
		strings.Contains(slugify(row.SetName), slugify(f.SetSlug))
}

// optionalMatches counts the active optional filters a row satisfies.
func optionalMatches(row models.CatalogRow, f CardSearchFilters) (matched, active int) {
	check := func(want string, ok func() bool) {
		if strings.TrimSpace(want) == "" {
			return
		}
		active++
		if ok() {
			matched++
		}
	}
	check(f.Year, func() bool { return NormalizeYear(row.Year) == NormalizeYear(f.Year) })
	check(f.Parallel, func() bool { return foldText(row.Variant) == foldText(f.Parallel) })
	check(f.Grader, func() bool { return normalizeGrader(row.Grader) == normalizeGrader(f.Grader) })
	check(f.Grade, func() bool { return row.Grade != "" && gradesEqual(row.Grade, f.Grade) })
	check(f.CardNumber, func() bool {
		return row.CardNumber != "" && CardNumbersEqual(NormalizeCardNumber(row.CardNumber), NormalizeCardNumber(f.CardNumber))
	})
	return matched, active
}

// RankCards orders rows by how many optional filters they satisfy, most first.
// Ties keep their input order.
func RankCards(rows []models.CatalogRow, f CardSearchFilters) []models.CatalogRow {
	type scoredRow struct {
		row     models.CatalogRow
		matched int
	}
	scored := make([]scoredRow, len(rows))
	for i, r := range rows {
		scored[i].row = r
		scored[i].matched, _ = optionalMatches(r, f)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].matched > scored[j].matched
	})

	ranked := make([]models.CatalogRow, len(scored))
	for i, s := range scored {
		ranked[i] = s.row
	}
	return ranked
}

// RunCardSearch filters rows with required filters always enforced and optional
// filters strict. When the strict pass is empty it reports whether dropping the
// optional filters would help, and drops them only if opts.RelaxOptional is set.
func RunCardSearch(rows []models.CatalogRow, f CardSearchFilters, opts CardSearchOptions) (CardSearchResult, error) {
	if err := ValidateCardSearchFilters(f); err != nil {
		return CardSearchResult{}, err
	}
	limit := clampLimit(opts.Limit)

	var required, strict []models.CatalogRow
	for _, r := range rows {
		if !matchesRequired(r, f) {
			continue
		}
		required = append(required, r)
		if matched, active := optionalMatches(r, f); matched == active {
			strict = append(strict, r)
		}
	}

	result := CardSearchResult{Results: []models.CatalogRow{}}
	if len(strict) > 0 {
		result.Results = truncateRows(RankCards(strict, f), limit)
		return result, nil
	}

	result.CanRelax = len(required) > 0
	if opts.RelaxOptional && result.CanRelax {
		result.Results = truncateRows(RankCards(required, f), limit)
		result.Relaxed = true
	}
	return result, nil
}

func truncateRows(rows []models.CatalogRow, limit int) []models.CatalogRow {
	if len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

// playerSurname is the token a sold-listing title most reliably carries.
func playerSurname(name string) string {
	words := strings.Fields(foldText(name))
	for len(words) > 1 {
		switch words[len(words)-1] {
		case "jr", "sr", "ii", "iii", "iv":
			words = words[:len(words)-1]
			continue
		}
		break
	}
	if len(words) == 0 {
		return ""
	}
	return words[len(words)-1]
}

// FilterListings is the hard filter applied before scoring. It drops listings that
// show a different card number, the wrong grade (or a graded card for a raw request),
// or that never mention the player.
func FilterListings(listings []models.Listing, req models.CardRequest) []models.Listing {
	bucket := requestBucket(req)
	out := make([]models.Listing, 0, len(listings))
	for _, l := range filterCardIdentity(listings, req) {
		if bucket.Matches(l) {
			out = append(out, l)
		}
	}
	return out
}

// filterCardIdentity keeps listings that mention the player and show no other card
// number, whatever their grade.
func filterCardIdentity(listings []models.Listing, req models.CardRequest) []models.Listing {
	wantNumber := NormalizeCardNumber(req.CardNumber)
	surname := playerSurname(req.PlayerName)

	out := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		if surname != "" && !containsWords(foldText(l.Title), surname) {
			continue
		}
		if wantNumber != "" && hasOtherCardNumber(l, wantNumber) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func hasOtherCardNumber(l models.Listing, want string) bool {
	nums := ExtractCardNumbers(l.Title)
	if l.CardNumber != "" {
		nums = append(nums, NormalizeCardNumber(l.CardNumber))
	}
	if len(nums) == 0 {
		return false
	}
	for _, n := range nums {
		if CardNumbersEqual(n, want) {
			return false
		}
	}
	return true
}
