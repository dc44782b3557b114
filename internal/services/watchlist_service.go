package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

// ErrWatchlistItemNotFound is returned when a watchlist item does not exist for the caller.
var ErrWatchlistItemNotFound = errors.New("watchlist item not found")

// WatchlistService manages watched cards and their target-price alerts.
type WatchlistService struct {
	db        *gorm.DB
	estimator CmvEstimator
	now       func() time.Time
}

func NewWatchlistService(db *gorm.DB, estimator CmvEstimator) *WatchlistService {
	return &WatchlistService{db: db, estimator: estimator, now: time.Now}
}

// List returns a user's watchlist, newest first.
func (s *WatchlistService) List(ctx context.Context, userID string) ([]models.WatchlistItem, error) {
	var items []models.WatchlistItem
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&items).Error
	return items, err
}

// Add starts watching a card.
func (s *WatchlistService) Add(ctx context.Context, userID string, req models.CardRequest) (models.WatchlistItem, error) {
	if req.TargetPrice != nil && !validPrice(*req.TargetPrice) {
		return models.WatchlistItem{}, fmt.Errorf("%w: target_price must be positive", ErrInvalidRequest)
	}
	item := models.WatchlistItem{
		UserID:      userID,
		PlayerName:  req.PlayerName,
		Year:        req.Year,
		SetName:     req.SetName,
		Parallel:    req.Parallel,
		CardNumber:  req.CardNumber,
		Grader:      req.Grader,
		Grade:       req.Grade,
		TargetPrice: req.TargetPrice,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return models.WatchlistItem{}, err
	}
	return item, nil
}

func (s *WatchlistService) get(ctx context.Context, userID string, id uint) (models.WatchlistItem, error) {
	var item models.WatchlistItem
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return item, ErrWatchlistItemNotFound
	}
	return item, err
}

// Update changes or clears the target price. The alert is re-evaluated against the last price.
func (s *WatchlistService) Update(ctx context.Context, userID string, id uint, req models.UpdateWatchlistRequest) (models.WatchlistItem, error) {
	item, err := s.get(ctx, userID, id)
	if err != nil {
		return item, err
	}
	switch {
	case req.ClearTarget:
		item.TargetPrice = nil
	case req.TargetPrice != nil:
		if !validPrice(*req.TargetPrice) {
			return item, fmt.Errorf("%w: target_price must be positive", ErrInvalidRequest)
		}
		item.TargetPrice = req.TargetPrice
	}
	s.evaluateAlert(&item)

	err = s.db.WithContext(ctx).Model(&item).
		Select("target_price", "alert_triggered_at").
		Updates(map[string]any{"target_price": item.TargetPrice, "alert_triggered_at": item.AlertTriggeredAt}).Error
	return item, err
}

// Delete stops watching a card.
func (s *WatchlistService) Delete(ctx context.Context, userID string, id uint) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.WatchlistItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWatchlistItemNotFound
	}
	return nil
}

// evaluateAlert stamps the alert when the item first drops to its target and clears it
// once the price moves back above. It reports whether a new alert fired.
func (s *WatchlistService) evaluateAlert(item *models.WatchlistItem) bool {
	if !item.BelowTarget() {
		item.AlertTriggeredAt = nil
		return false
	}
	if item.AlertTriggeredAt != nil {
		return false
	}
	now := s.now()
	item.AlertTriggeredAt = &now
	return true
}

// RefreshPrices re-prices watched cards not checked within olderThan, oldest first.
// It returns the number of items priced and the number of new alerts.
func (s *WatchlistService) RefreshPrices(ctx context.Context, olderThan time.Duration, limit int) (refreshed, alerts int, err error) {
	cutoff := s.now().Add(-olderThan)
	var items []models.WatchlistItem
	err = s.db.WithContext(ctx).
		Where("last_checked_at IS NULL OR last_checked_at < ?", cutoff).
		Order("last_checked_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return 0, 0, err
	}

	for i := range items {
		if ctx.Err() != nil {
			return refreshed, alerts, ctx.Err()
		}
		item := &items[i]
		est, err := s.estimator.EstimateCmv(ctx, models.CardRequestFromWatchlist(*item))
		if err != nil {
			log.Printf("Watchlist: failed to price item %d: %v", item.ID, err)
			continue
		}

		now := s.now()
		item.LastCheckedAt = &now
		if est.Value != nil {
			item.LastPrice = est.Value
		}
		if s.evaluateAlert(item) {
			alerts++
			metrics.WatchlistAlertsTotal.Inc()
			log.Printf("Watchlist: item %d (%s) at $%.2f is at or below target $%.2f",
				item.ID, item.PlayerName, *item.LastPrice, *item.TargetPrice)
		}

		err = s.db.WithContext(ctx).Model(item).
			Select("last_price", "last_checked_at", "alert_triggered_at").
			Updates(map[string]any{
				"last_price":         item.LastPrice,
				"last_checked_at":    item.LastCheckedAt,
				"alert_triggered_at": item.AlertTriggeredAt,
			}).Error
		if err != nil {
			log.Printf("Watchlist: failed to save item %d: %v", item.ID, err)
			continue
		}
		refreshed++
	}
	return refreshed, alerts, nil
}
