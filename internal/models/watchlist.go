package models

import (
	"time"
)

// WatchlistItem is a card a user is tracking with an optional target buy price.
type WatchlistItem struct {
	ID         uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     string `json:"user_id" gorm:"not null;index"`
	PlayerName string `json:"player_name" gorm:"not null"`
	Year       string `json:"year"`
	SetName    string `json:"set_name"`
	Parallel   string `json:"parallel"`
	CardNumber string `json:"card_number"`
	Grader     string `json:"grader"`
	Grade      string `json:"grade"`

	TargetPrice      *float64   `json:"target_price"`
	LastPrice        *float64   `json:"last_price"`
	LastCheckedAt    *time.Time `json:"last_checked_at"`
	AlertTriggeredAt *time.Time `json:"alert_triggered_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BelowTarget reports whether the last observed price is at or under the target.
// Items with no target or no observed price are never below target.
func (w WatchlistItem) BelowTarget() bool {
	if w.TargetPrice == nil || w.LastPrice == nil {
		return false
	}
	return *w.LastPrice <= *w.TargetPrice
}

// UpdateWatchlistRequest carries optional edits to a watchlist item.
type UpdateWatchlistRequest struct {
	TargetPrice *float64 `json:"target_price"`
	ClearTarget bool     `json:"clear_target"`
}
