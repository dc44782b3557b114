package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

// Enqueuer schedules a background CMV recompute for a collection item.
type Enqueuer interface {
	Enqueue(id uint) bool
}

// CollectionService manages a user's owned cards. Every identity change moves the
// item to pending and hands it to the background worker.
type CollectionService struct {
	db     *gorm.DB
	cmv    *CmvService
	queue  Enqueuer
	images *ImageStorageService
	now    func() time.Time
}

// NewCollectionService wires the collection store. images may be nil to disable photos.
func NewCollectionService(db *gorm.DB, cmv *CmvService, queue Enqueuer, images *ImageStorageService) *CollectionService {
	return &CollectionService{db: db, cmv: cmv, queue: queue, images: images, now: time.Now}
}

// Get returns one item owned by the user, with its images.
func (s *CollectionService) Get(ctx context.Context, userID string, id uint) (models.CollectionItem, error) {
	var item models.CollectionItem
	err := s.db.WithContext(ctx).Preload("Images").Where("id = ? AND user_id = ?", id, userID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return item, ErrItemNotFound
	}
	return item, err
}

// List returns the user's items as the collection endpoint renders them.
func (s *CollectionService) List(ctx context.Context, userID string) ([]models.CollectionItem, error) {
	return s.cmv.ListItems(ctx, userID)
}

// Add stores a new card as pending and schedules its first CMV computation.
func (s *CollectionService) Add(ctx context.Context, userID string, req models.CardRequest) (models.CollectionItem, error) {
	if req.PlayerName == "" {
		return models.CollectionItem{}, fmt.Errorf("%w: player_name is required", ErrInvalidRequest)
	}
	now := s.now()
	item := models.CollectionItem{
		UserID:        userID,
		PlayerName:    req.PlayerName,
		Year:          req.Year,
		SetName:       req.SetName,
		Parallel:      req.Parallel,
		CardNumber:    req.CardNumber,
		Grader:        req.Grader,
		Grade:         req.Grade,
		Notes:         req.Notes,
		PurchasePrice: req.PurchasePrice,
		CmvStatus:     models.CmvStatusPending,
		CmvUpdatedAt:  &now,
	}

	var imageData []byte
	if req.ImageData != "" && s.images != nil {
		data, err := DecodeImageData(req.ImageData)
		if err != nil {
			return models.CollectionItem{}, err
		}
		imageData = data
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		if imageData == nil {
			return nil
		}
		filename, err := s.images.SaveImage(imageData)
		if err != nil {
			return err
		}
		img := models.CardImage{CollectionItemID: item.ID, Filename: filename}
		if err := tx.Create(&img).Error; err != nil {
			s.images.DeleteImage(filename)
			return err
		}
		item.Images = append(item.Images, img)
		return nil
	})
	if err != nil {
		return models.CollectionItem{}, err
	}

	s.queue.Enqueue(item.ID)
	s.updateGauges(ctx)
	log.Printf("Collection: added item %d (%s) for %s", item.ID, item.PlayerName, userID)
	return item, nil
}

// Update applies edits. An identity change invalidates the CMV and queues a recompute.
func (s *CollectionService) Update(ctx context.Context, userID string, id uint, req models.UpdateCollectionRequest) (models.CollectionItem, error) {
	item, err := s.Get(ctx, userID, id)
	if err != nil {
		return item, err
	}

	updates := map[string]any{}
	setString := func(col string, v *string, dst *string, normalize func(string) string) {
		if v != nil {
			value := normalize(*v)
			updates[col] = value
			*dst = value
		}
	}
	canonicalPlayer := func(name string) string {
		canonical, _ := CanonicalPlayer(name)
		return canonical
	}
	if req.Year != nil && strings.TrimSpace(*req.Year) != "" && NormalizeYear(*req.Year) == "" {
		return item, fmt.Errorf("%w: year %q is not a card year", ErrInvalidRequest, *req.Year)
	}
	setString("player_name", req.PlayerName, &item.PlayerName, canonicalPlayer)
	setString("year", req.Year, &item.Year, NormalizeYear)
	setString("set_name", req.SetName, &item.SetName, collapseSpaces)
	setString("parallel", req.Parallel, &item.Parallel, collapseSpaces)
	setString("card_number", req.CardNumber, &item.CardNumber, NormalizeCardNumber)
	setString("grader", req.Grader, &item.Grader, normalizeGrader)
	setString("grade", req.Grade, &item.Grade, strings.TrimSpace)
	setString("notes", req.Notes, &item.Notes, strings.TrimSpace)
	if item.Grader == "RAW" || strings.EqualFold(item.Grade, "raw") {
		item.Grader, item.Grade = "", ""
		updates["grader"], updates["grade"] = "", ""
	}
	if req.PurchasePrice != nil {
		if !finiteNonNegative(req.PurchasePrice) {
			return item, fmt.Errorf("%w: purchase_price must be a non-negative number", ErrInvalidRequest)
		}
		updates["purchase_price"] = *req.PurchasePrice
		item.PurchasePrice = req.PurchasePrice
	}
	if req.PurchaseDate != nil {
		updates["purchase_date"] = *req.PurchaseDate
		item.PurchaseDate = req.PurchaseDate
	}
	if item.PlayerName == "" {
		return item, fmt.Errorf("%w: player_name cannot be empty", ErrInvalidRequest)
	}
	if (item.Grader == "") != (item.Grade == "") {
		return item, fmt.Errorf("%w: grader and grade must be given together", ErrInvalidRequest)
	}

	if req.ChangesIdentity() {
		if err := s.cmv.ResetCmv(ctx, item.ID, updates); err != nil {
			return item, err
		}
		s.queue.Enqueue(item.ID)
		s.updateGauges(ctx)
		return s.Get(ctx, userID, id)
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.CollectionItem{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
			return item, err
		}
	}
	return item, nil
}

// Delete removes an item and its stored photos.
func (s *CollectionService) Delete(ctx context.Context, userID string, id uint) error {
	item, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection_item_id = ?", item.ID).Delete(&models.CardImage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.CollectionItem{}, item.ID).Error
	})
	if err != nil {
		return err
	}

	if s.images != nil {
		for _, img := range item.Images {
			if err := s.images.DeleteImage(img.Filename); err != nil {
				log.Printf("Collection: failed to delete image %s: %v", img.Filename, err)
			}
		}
	}
	s.updateGauges(ctx)
	return nil
}

// RefreshCmv forces a recompute of one owned item.
func (s *CollectionService) RefreshCmv(ctx context.Context, userID string, id uint) (models.CollectionItem, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return models.CollectionItem{}, err
	}
	if err := s.cmv.MarkPending(ctx, id); err != nil {
		return models.CollectionItem{}, err
	}
	s.queue.Enqueue(id)
	return s.Get(ctx, userID, id)
}

// updateGauges refreshes the store-wide collection gauges.
func (s *CollectionService) updateGauges(ctx context.Context) {
	var totals struct {
		Cards int64
		Value float64
	}
	err := s.db.WithContext(ctx).Model(&models.CollectionItem{}).
		Select("COUNT(*) AS cards, COALESCE(SUM(COALESCE(estimated_cmv, purchase_price, 0)), 0) AS value").
		Scan(&totals).Error
	if err != nil {
		log.Printf("Collection: failed to refresh gauges: %v", err)
		return
	}
	metrics.CollectionCardsTotal.Set(float64(totals.Cards))
	metrics.CollectionValueUSD.Set(totals.Value)
}
