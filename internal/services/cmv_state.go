package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

// UI states derived from a collection item's CMV fields
const (
	CmvUIReady        = "ready"
	CmvUIPending      = "pending"
	CmvUIPendingStale = "pending_stale"
	CmvUIFailed       = "failed"
	CmvUIUnavailable  = "unavailable"
)

// ErrInvalidCmvTransition is returned when a status change is not in the transition table.
var ErrInvalidCmvTransition = errors.New("invalid cmv status transition")

var validCmvTransitions = map[models.CmvStatus][]models.CmvStatus{
	models.CmvStatusNone:        {models.CmvStatusPending},
	models.CmvStatusPending:     {models.CmvStatusPending, models.CmvStatusReady, models.CmvStatusFailed, models.CmvStatusUnavailable},
	models.CmvStatusReady:       {models.CmvStatusPending},
	models.CmvStatusFailed:      {models.CmvStatusPending},
	models.CmvStatusUnavailable: {models.CmvStatusPending},
}

// IsCmvTransitionAllowed reports whether from -> to is a legal status change.
func IsCmvTransitionAllowed(from, to models.CmvStatus) bool {
	for _, s := range validCmvTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkCmvTransition(from, to models.CmvStatus) error {
	if !IsCmvTransitionAllowed(from, to) {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidCmvTransition, from, to)
	}
	return nil
}

// CmvStateThresholds are the time windows used to classify in-flight computations.
type CmvStateThresholds struct {
	// StaleAfter is how long a pending computation may run before it is shown as stale
	StaleAfter time.Duration
	// LegacyPending is how long a legacy row without a status counts as pending
	LegacyPending time.Duration
}

// DefaultCmvStateThresholds match the collection page polling cadence.
var DefaultCmvStateThresholds = CmvStateThresholds{
	StaleAfter:    15 * time.Second,
	LegacyPending: 120 * time.Second,
}

// GetCollectionCmvUIState classifies one item from its own status, value and timestamps.
func GetCollectionCmvUIState(item models.CollectionItem, now time.Time, th CmvStateThresholds) string {
	hasValue := item.EstimatedCmv != nil

	switch item.CmvStatus {
	case models.CmvStatusFailed:
		return CmvUIFailed
	case models.CmvStatusReady, models.CmvStatusUnavailable:
		if hasValue {
			return CmvUIReady
		}
		return CmvUIUnavailable
	case models.CmvStatusPending:
		since := item.CreatedAt
		if item.CmvUpdatedAt != nil {
			since = *item.CmvUpdatedAt
		}
		if now.Sub(since) >= th.StaleAfter {
			return CmvUIPendingStale
		}
		return CmvUIPending
	default:
		// rows written before cmv_status existed
		if hasValue {
			return CmvUIReady
		}
		if now.Sub(item.CreatedAt) < th.LegacyPending {
			return CmvUIPending
		}
		return CmvUIUnavailable
	}
}
