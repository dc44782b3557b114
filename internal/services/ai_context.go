package services

import (
	"sort"
	"time"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

const (
	aiContextTopCards       = 5
	aiContextRecentCards    = 5
	aiContextRecentSearches = 10
)

// AICard is the assistant's view of one owned card.
type AICard struct {
	ID           uint       `json:"id"`
	PlayerName   string     `json:"player_name"`
	Year         string     `json:"year,omitempty"`
	SetName      string     `json:"set_name,omitempty"`
	Parallel     string     `json:"parallel,omitempty"`
	CardNumber   string     `json:"card_number,omitempty"`
	Grader       string     `json:"grader,omitempty"`
	Grade        string     `json:"grade,omitempty"`
	Cmv          *float64   `json:"cmv"`
	CmvState     string     `json:"cmv_state"`
	CostBasis    *float64   `json:"cost_basis"`
	DisplayValue *float64   `json:"display_value"`
	AddedAt      time.Time  `json:"added_at"`
}

// AIWatchItem is a watchlist entry currently at or below its target.
type AIWatchItem struct {
	PlayerName  string   `json:"player_name"`
	Year        string   `json:"year,omitempty"`
	SetName     string   `json:"set_name,omitempty"`
	Grader      string   `json:"grader,omitempty"`
	Grade       string   `json:"grade,omitempty"`
	TargetPrice *float64 `json:"target_price"`
	LastPrice   *float64 `json:"last_price"`
}

// AISearch is one recent comps search.
type AISearch struct {
	Query       string    `json:"query"`
	ResultCount int       `json:"result_count"`
	Cmv         *float64  `json:"cmv"`
	SearchedAt  time.Time `json:"searched_at"`
}

// UserAIContext is the only data the assistant may talk about. Empty sections are
// flagged so the model can say so instead of inventing cards.
type UserAIContext struct {
	GeneratedAt      time.Time         `json:"generated_at"`
	Summary          CollectionSummary `json:"summary"`
	TopCards         []AICard          `json:"top_cards"`
	RecentCards      []AICard          `json:"recent_cards"`
	WatchlistAlerts  []AIWatchItem     `json:"watchlist_below_target"`
	WatchlistSize    int               `json:"watchlist_size"`
	RecentSearches   []AISearch        `json:"recent_searches"`
	CollectionEmpty  bool              `json:"collection_empty"`
	WatchlistEmpty   bool              `json:"watchlist_empty"`
	NoRecentSearches bool              `json:"no_recent_searches"`
	CardsAwaitingCmv int               `json:"cards_awaiting_cmv"`
}

func toAICard(item models.CollectionItem, now time.Time, th CmvStateThresholds) AICard {
	return AICard{
		ID:           item.ID,
		PlayerName:   item.PlayerName,
		Year:         item.Year,
		SetName:      item.SetName,
		Parallel:     item.Parallel,
		CardNumber:   item.CardNumber,
		Grader:       item.Grader,
		Grade:        item.Grade,
		Cmv:          item.EstimatedCmv,
		CmvState:     GetCollectionCmvUIState(item, now, th),
		CostBasis:    item.PurchasePrice,
		DisplayValue: GetDisplayValue(item),
		AddedAt:      item.CreatedAt,
	}
}

// BuildUserAIContext condenses a user's data into the assistant snapshot. Inputs are
// not modified.
func BuildUserAIContext(items []models.CollectionItem, watchlist []models.WatchlistItem, searches []models.SearchLog, now time.Time, th CmvStateThresholds) UserAIContext {
	ctx := UserAIContext{
		GeneratedAt:     now,
		Summary:         ComputeCollectionSummary(items),
		TopCards:        []AICard{},
		RecentCards:     []AICard{},
		WatchlistAlerts: []AIWatchItem{},
		WatchlistSize:   len(watchlist),
		RecentSearches:  []AISearch{},
	}

	cards := make([]AICard, 0, len(items))
	for _, item := range items {
		card := toAICard(item, now, th)
		if card.CmvState == CmvUIPending || card.CmvState == CmvUIPendingStale {
			ctx.CardsAwaitingCmv++
		}
		cards = append(cards, card)
	}

	byValue := append([]AICard(nil), cards...)
	sort.SliceStable(byValue, func(i, j int) bool {
		return valueOrZero(byValue[i].DisplayValue) > valueOrZero(byValue[j].DisplayValue)
	})
	for _, card := range byValue {
		if len(ctx.TopCards) == aiContextTopCards {
			break
		}
		if card.DisplayValue == nil {
			continue
		}
		ctx.TopCards = append(ctx.TopCards, card)
	}

	byDate := append([]AICard(nil), cards...)
	sort.SliceStable(byDate, func(i, j int) bool {
		return byDate[i].AddedAt.After(byDate[j].AddedAt)
	})
	if len(byDate) > aiContextRecentCards {
		byDate = byDate[:aiContextRecentCards]
	}
	ctx.RecentCards = append(ctx.RecentCards, byDate...)

	for _, w := range watchlist {
		if !w.BelowTarget() {
			continue
		}
		ctx.WatchlistAlerts = append(ctx.WatchlistAlerts, AIWatchItem{
			PlayerName:  w.PlayerName,
			Year:        w.Year,
			SetName:     w.SetName,
			Grader:      w.Grader,
			Grade:       w.Grade,
			TargetPrice: w.TargetPrice,
			LastPrice:   w.LastPrice,
		})
	}

	recent := append([]models.SearchLog(nil), searches...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	for _, s := range recent {
		if len(ctx.RecentSearches) == aiContextRecentSearches {
			break
		}
		ctx.RecentSearches = append(ctx.RecentSearches, AISearch{
			Query:       s.Query,
			ResultCount: s.ResultCount,
			Cmv:         s.Cmv,
			SearchedAt:  s.CreatedAt,
		})
	}

	ctx.CollectionEmpty = len(items) == 0
	ctx.WatchlistEmpty = len(watchlist) == 0
	ctx.NoRecentSearches = len(ctx.RecentSearches) == 0
	return ctx
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
