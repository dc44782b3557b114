package models

import (
	"time"
)

// PortfolioSnapshot stores a user's daily collection totals for historical tracking
type PortfolioSnapshot struct {
	ID                uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID            string    `json:"user_id" gorm:"not null;uniqueIndex:idx_user_snapshot_date"`
	SnapshotDate      time.Time `json:"snapshot_date" gorm:"not null;uniqueIndex:idx_user_snapshot_date"`
	CardCount         int       `json:"card_count"`
	CardsWithCmv      int       `json:"cards_with_cmv"`
	TotalDisplayValue float64   `json:"total_display_value"`
	TotalCostBasis    float64   `json:"total_cost_basis"`
	TotalCmv          *float64  `json:"total_cmv"`
	TotalUnrealizedPL *float64  `json:"total_unrealized_pl"`
	CreatedAt         time.Time `json:"created_at"`
}

// ValueHistoryResponse is the API response for value history
type ValueHistoryResponse struct {
	Snapshots []PortfolioSnapshot `json:"snapshots"`
	Period    string              `json:"period"` // "week", "month", "year", "all"
}
