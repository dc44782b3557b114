package services

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

// SnapshotService records each user's daily portfolio totals
type SnapshotService struct {
	db            *gorm.DB
	mu            sync.RWMutex
	lastSnapshot  time.Time
	snapshotHour  int // Hour of day to take snapshot (0-23)
	checkInterval time.Duration
	now           func() time.Time
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(db *gorm.DB, snapshotHour int) *SnapshotService {
	if snapshotHour < 0 || snapshotHour > 23 {
		snapshotHour = 23
	}
	return &SnapshotService{
		db:            db,
		snapshotHour:  snapshotHour,
		checkInterval: 15 * time.Minute,
		now:           time.Now,
	}
}

// Start begins the background snapshot worker
func (s *SnapshotService) Start(ctx context.Context) {
	log.Println("Snapshot service started: will record daily portfolio value")

	// Check if we need to take a snapshot for today on startup
	s.checkAndSnapshot(ctx)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Snapshot service stopping...")
			return
		case <-ticker.C:
			s.checkAndSnapshot(ctx)
		}
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// checkAndSnapshot takes today's snapshots once the configured hour has passed
func (s *SnapshotService) checkAndSnapshot(ctx context.Context) {
	now := s.now()
	s.mu.RLock()
	done := !s.lastSnapshot.IsZero() && startOfDay(s.lastSnapshot).Equal(startOfDay(now))
	s.mu.RUnlock()

	if done || now.Hour() < s.snapshotHour {
		return
	}
	if _, err := s.TakeSnapshots(ctx); err != nil {
		log.Printf("Snapshot service: failed to take snapshots: %v", err)
	}
}

// TakeSnapshots records today's totals for every user with a collection. Re-running
// on the same day overwrites that day's row.
func (s *SnapshotService) TakeSnapshots(ctx context.Context) (int, error) {
	var users []string
	if err := s.db.WithContext(ctx).Model(&models.CollectionItem{}).Distinct().Pluck("user_id", &users).Error; err != nil {
		return 0, err
	}

	taken := 0
	for _, userID := range users {
		if err := s.TakeSnapshot(ctx, userID); err != nil {
			log.Printf("Snapshot service: failed for user %s: %v", userID, err)
			continue
		}
		taken++
	}

	s.mu.Lock()
	s.lastSnapshot = s.now()
	s.mu.Unlock()
	return taken, nil
}

// TakeSnapshot records the current portfolio summary for one user
func (s *SnapshotService) TakeSnapshot(ctx context.Context, userID string) error {
	var items []models.CollectionItem
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&items).Error; err != nil {
		return err
	}
	summary := ComputeCollectionSummary(items)
	snapshotDate := startOfDay(s.now())

	snapshot := models.PortfolioSnapshot{UserID: userID, SnapshotDate: snapshotDate}
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND snapshot_date = ?", userID, snapshotDate).
		Assign(map[string]any{
			"card_count":          summary.CardCount,
			"cards_with_cmv":      summary.CardsWithCmv,
			"total_display_value": summary.TotalDisplayValue,
			"total_cost_basis":    summary.TotalCostBasis,
			"total_cmv":           summary.TotalCmv,
			"total_unrealized_pl": summary.TotalUnrealizedPL,
		}).
		FirstOrCreate(&snapshot)
	if result.Error != nil {
		return result.Error
	}

	log.Printf("Snapshot service: recorded %s for %s (value: $%.2f, cards: %d)",
		snapshotDate.Format("2006-01-02"), userID, summary.TotalDisplayValue, summary.CardCount)
	return nil
}

// GetHistory retrieves a user's snapshots for a given period
func (s *SnapshotService) GetHistory(ctx context.Context, userID, period string) ([]models.PortfolioSnapshot, error) {
	now := s.now()
	var startDate time.Time

	switch period {
	case "week":
		startDate = now.AddDate(0, 0, -7)
	case "month":
		startDate = now.AddDate(0, -1, 0)
	case "3month":
		startDate = now.AddDate(0, -3, 0)
	case "year":
		startDate = now.AddDate(-1, 0, 0)
	case "all":
		startDate = time.Time{} // No filter
	default:
		startDate = now.AddDate(0, -1, 0) // Default to 1 month
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("snapshot_date ASC")
	if !startDate.IsZero() {
		query = query.Where("snapshot_date >= ?", startOfDay(startDate))
	}

	snapshots := []models.PortfolioSnapshot{}
	if err := query.Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}
