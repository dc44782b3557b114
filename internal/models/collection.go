package models

import (
	"time"
)

// CmvStatus is the persisted state of a collection item's market value computation.
// The empty value marks legacy rows written before the status column existed.
type CmvStatus string

const (
	CmvStatusNone        CmvStatus = ""
	CmvStatusPending     CmvStatus = "pending"
	CmvStatusReady       CmvStatus = "ready"
	CmvStatusFailed      CmvStatus = "failed"
	CmvStatusUnavailable CmvStatus = "unavailable"
)

// CollectionItem is one physical card owned by a user.
type CollectionItem struct {
	ID         uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     string `json:"user_id" gorm:"not null;index"`
	PlayerName string `json:"player_name" gorm:"not null"`
	Year       string `json:"year"`
	SetName    string `json:"set_name"`
	Parallel   string `json:"parallel"`
	CardNumber string `json:"card_number"`
	Grader     string `json:"grader"`
	Grade      string `json:"grade"`
	Notes      string `json:"notes"`

	PurchasePrice *float64   `json:"purchase_price"`
	PurchaseDate  *time.Time `json:"purchase_date"`

	EstimatedCmv  *float64   `json:"estimated_cmv"`
	CmvConfidence string     `json:"cmv_confidence"`
	CmvStatus     CmvStatus  `json:"cmv_status" gorm:"index"`
	CmvUpdatedAt  *time.Time `json:"cmv_updated_at"`
	CompsCount    int        `json:"comps_count"`
	CmvError      string     `json:"cmv_error,omitempty"`

	Images []CardImage `json:"images,omitempty" gorm:"foreignKey:CollectionItemID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsGraded reports whether the item carries a grading company and grade.
func (c CollectionItem) IsGraded() bool {
	return c.Grader != "" && c.Grade != ""
}

// CardImage is a photo attached to a collection item. Files live in the image storage dir.
type CardImage struct {
	ID               uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CollectionItemID uint      `json:"collection_item_id" gorm:"not null;index"`
	Filename         string    `json:"filename" gorm:"not null"`
	CreatedAt        time.Time `json:"created_at"`
}

// UpdateCollectionRequest carries optional edits; nil fields are left unchanged.
type UpdateCollectionRequest struct {
	PlayerName    *string    `json:"player_name"`
	Year          *string    `json:"year"`
	SetName       *string    `json:"set_name"`
	Parallel      *string    `json:"parallel"`
	CardNumber    *string    `json:"card_number"`
	Grader        *string    `json:"grader"`
	Grade         *string    `json:"grade"`
	Notes         *string    `json:"notes"`
	PurchasePrice *float64   `json:"purchase_price"`
	PurchaseDate  *time.Time `json:"purchase_date"`
}

// ChangesIdentity reports whether the update touches any field that feeds comps.
func (r UpdateCollectionRequest) ChangesIdentity() bool {
	return r.PlayerName != nil || r.Year != nil || r.SetName != nil || r.Parallel != nil ||
		r.CardNumber != nil || r.Grader != nil || r.Grade != nil
}

// CollectionItemView is an item as rendered to clients, with its derived UI state.
type CollectionItemView struct {
	CollectionItem
	CmvUIState   string   `json:"cmv_ui_state"`
	DisplayValue *float64 `json:"display_value"`
}
