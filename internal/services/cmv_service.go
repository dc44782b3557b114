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

// ErrItemNotFound is returned when a collection item does not exist for the caller.
var ErrItemNotFound = errors.New("collection item not found")

// CmvEstimate is the outcome of one comps lookup for a card.
type CmvEstimate struct {
	Value      *float64 `json:"value"`
	Confidence string   `json:"confidence"`
	CompsCount int      `json:"comps_count"`
}

// CmvEstimator prices a card from market comps.
type CmvEstimator interface {
	EstimateCmv(ctx context.Context, req models.CardRequest) (CmvEstimate, error)
}

// CmvService owns every write to a collection item's CMV columns.
type CmvService struct {
	db        *gorm.DB
	estimator CmvEstimator
	now       func() time.Time
}

func NewCmvService(db *gorm.DB, estimator CmvEstimator) *CmvService {
	return &CmvService{db: db, estimator: estimator, now: time.Now}
}

func (s *CmvService) loadStatus(tx *gorm.DB, id uint) (models.CmvStatus, error) {
	var item models.CollectionItem
	err := tx.Select("id", "cmv_status").First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrItemNotFound
	}
	if err != nil {
		return "", err
	}
	return item.CmvStatus, nil
}

// MarkPending moves an item into the pending state ahead of a recompute.
func (s *CmvService) MarkPending(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.markPending(tx, id, nil)
	})
}

// ResetCmv applies identity edits and moves the item to pending in one update.
// The value, confidence and comps count priced for the old identity are cleared
// so totals never count them while the new card is priced.
func (s *CmvService) ResetCmv(ctx context.Context, id uint, edits map[string]any) error {
	updates := map[string]any{
		"estimated_cmv":  nil,
		"cmv_confidence": "",
		"comps_count":    0,
	}
	for col, v := range edits {
		updates[col] = v
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.markPending(tx, id, updates)
	})
}

func (s *CmvService) markPending(tx *gorm.DB, id uint, extra map[string]any) error {
	from, err := s.loadStatus(tx, id)
	if err != nil {
		return err
	}
	if err := checkCmvTransition(from, models.CmvStatusPending); err != nil {
		return err
	}
	updates := map[string]any{
		"cmv_status":     models.CmvStatusPending,
		"cmv_updated_at": s.now(),
		"cmv_error":      "",
	}
	for col, v := range extra {
		updates[col] = v
	}
	return tx.Model(&models.CollectionItem{}).Where("id = ?", id).Updates(updates).Error
}

// PersistCmv records the result of a compute attempt in a single update.
// A compute error marks the item failed and keeps its previous value; an
// estimate without comps marks it unavailable with a null value.
func (s *CmvService) PersistCmv(ctx context.Context, id uint, est CmvEstimate, computeErr error) (models.CmvStatus, error) {
	now := s.now()
	var to models.CmvStatus
	updates := map[string]any{"cmv_updated_at": now}

	switch {
	case computeErr != nil:
		to = models.CmvStatusFailed
		updates["cmv_error"] = computeErr.Error()
	case est.Value == nil || est.CompsCount == 0:
		to = models.CmvStatusUnavailable
		updates["estimated_cmv"] = nil
		updates["cmv_confidence"] = ""
		updates["comps_count"] = 0
		updates["cmv_error"] = ""
	default:
		to = models.CmvStatusReady
		updates["estimated_cmv"] = *est.Value
		updates["cmv_confidence"] = est.Confidence
		updates["comps_count"] = est.CompsCount
		updates["cmv_error"] = ""
	}
	updates["cmv_status"] = to

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from, err := s.loadStatus(tx, id)
		if err != nil {
			return err
		}
		if err := checkCmvTransition(from, to); err != nil {
			return err
		}
		return tx.Model(&models.CollectionItem{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return "", fmt.Errorf("persist cmv for item %d: %w", id, err)
	}
	metrics.CmvUpdatesTotal.WithLabelValues(string(to)).Inc()
	return to, nil
}

// Recompute prices one collection item and stores the result. The item is moved
// to pending first when it is not already there.
func (s *CmvService) Recompute(ctx context.Context, id uint) (models.CmvStatus, error) {
	var item models.CollectionItem
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrItemNotFound
		}
		return "", err
	}
	if item.CmvStatus != models.CmvStatusPending {
		if err := s.MarkPending(ctx, id); err != nil {
			return "", err
		}
	}

	start := time.Now()
	est, computeErr := s.estimator.EstimateCmv(ctx, models.CardRequestFromItem(item))
	metrics.CmvComputeDuration.Observe(time.Since(start).Seconds())
	if computeErr != nil {
		log.Printf("CMV: compute failed for item %d (%s): %v", id, item.PlayerName, computeErr)
	}
	return s.PersistCmv(ctx, id, est, computeErr)
}

// ListItems returns a user's collection, newest first.
func (s *CmvService) ListItems(ctx context.Context, userID string) ([]models.CollectionItem, error) {
	var items []models.CollectionItem
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&items).Error
	return items, err
}

// ListDashboardItems reads the same rows through the narrower column set the dashboard uses.
func (s *CmvService) ListDashboardItems(ctx context.Context, userID string) ([]models.CollectionItem, error) {
	var items []models.CollectionItem
	err := s.db.WithContext(ctx).
		Select("id", "user_id", "player_name", "purchase_price", "estimated_cmv", "cmv_status", "cmv_updated_at", "created_at").
		Where("user_id = ?", userID).
		Find(&items).Error
	return items, err
}

// StaleItemIDs finds items due for a recompute: pending rows older than staleAfter,
// failed rows older than retryAfter, ready or unavailable rows older than refreshAfter,
// and legacy rows that never received a status.
func (s *CmvService) StaleItemIDs(ctx context.Context, staleAfter, retryAfter, refreshAfter time.Duration, limit int) ([]uint, error) {
	now := s.now()
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.CollectionItem{}).
		Where("(cmv_status = ? AND COALESCE(cmv_updated_at, created_at) < ?)", models.CmvStatusPending, now.Add(-staleAfter)).
		Or("(cmv_status = ? AND COALESCE(cmv_updated_at, created_at) < ?)", models.CmvStatusFailed, now.Add(-retryAfter)).
		Or("(cmv_status IN ? AND COALESCE(cmv_updated_at, created_at) < ?)",
			[]models.CmvStatus{models.CmvStatusReady, models.CmvStatusUnavailable}, now.Add(-refreshAfter)).
		Or("(cmv_status = ? OR cmv_status IS NULL)", models.CmvStatusNone).
		Order("cmv_updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
