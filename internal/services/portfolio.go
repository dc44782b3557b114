package services

import (
	"math"
	"time"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

// CollectionSummary rolls up a user's collection. P/L fields are nil when no card
// has both a CMV and a cost basis; TotalCmv is nil when no card has a CMV.
type CollectionSummary struct {
	CardCount            int      `json:"card_count"`
	CardsWithCmv         int      `json:"cards_with_cmv"`
	TotalDisplayValue    float64  `json:"total_display_value"`
	TotalCostBasis       float64  `json:"total_cost_basis"`
	TotalCmv             *float64 `json:"total_cmv"`
	TotalUnrealizedPL    *float64 `json:"total_unrealized_pl"`
	TotalUnrealizedPLPct *float64 `json:"total_unrealized_pl_pct"`
}

func finiteNonNegative(p *float64) bool {
	return p != nil && !math.IsNaN(*p) && !math.IsInf(*p, 0) && *p >= 0
}

// GetDisplayValue returns the item's CMV, else its cost basis, else nil.
func GetDisplayValue(item models.CollectionItem) *float64 {
	if finiteNonNegative(item.EstimatedCmv) {
		v := *item.EstimatedCmv
		return &v
	}
	if finiteNonNegative(item.PurchasePrice) {
		v := *item.PurchasePrice
		return &v
	}
	return nil
}

// ComputeCollectionSummary totals display value, cost basis and unrealized P/L.
// P/L and its percentage only cover cards that carry both a CMV and a cost basis.
func ComputeCollectionSummary(items []models.CollectionItem) CollectionSummary {
	s := CollectionSummary{CardCount: len(items)}
	var totalCmv, plSum, plBasis float64
	plCards := 0

	for _, item := range items {
		if v := GetDisplayValue(item); v != nil {
			s.TotalDisplayValue += *v
		}
		hasCmv := finiteNonNegative(item.EstimatedCmv)
		hasBasis := finiteNonNegative(item.PurchasePrice)
		if hasBasis {
			s.TotalCostBasis += *item.PurchasePrice
		}
		if hasCmv {
			s.CardsWithCmv++
			totalCmv += *item.EstimatedCmv
		}
		if hasCmv && hasBasis {
			plCards++
			plSum += *item.EstimatedCmv - *item.PurchasePrice
			plBasis += *item.PurchasePrice
		}
	}

	s.TotalDisplayValue = roundCents(s.TotalDisplayValue)
	s.TotalCostBasis = roundCents(s.TotalCostBasis)
	if s.CardsWithCmv > 0 {
		v := roundCents(totalCmv)
		s.TotalCmv = &v
	}
	if plCards > 0 {
		pl := roundCents(plSum)
		s.TotalUnrealizedPL = &pl
		if plBasis > 0 {
			pct := roundCents(plSum / plBasis * 100)
			s.TotalUnrealizedPLPct = &pct
		}
	}
	return s
}

// BuildCollectionViews attaches the UI state and display value to each item.
func BuildCollectionViews(items []models.CollectionItem, now time.Time, th CmvStateThresholds) []models.CollectionItemView {
	views := make([]models.CollectionItemView, 0, len(items))
	for _, item := range items {
		views = append(views, models.CollectionItemView{
			CollectionItem: item,
			CmvUIState:     GetCollectionCmvUIState(item, now, th),
			DisplayValue:   GetDisplayValue(item),
		})
	}
	return views
}
