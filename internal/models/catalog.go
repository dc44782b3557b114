package models

import (
	"time"
)

// CatalogRow is a sold listing persisted locally. Rows back the card-search endpoint
// and serve as the fallback corpus when the live listing source is unavailable.
type CatalogRow struct {
	ID         uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	PlayerName string     `json:"player_name" gorm:"not null;index"`
	SetName    string     `json:"set_name" gorm:"index"`
	Year       string     `json:"year"`
	Variant    string     `json:"variant"`
	Grader     string     `json:"grader"`
	Grade      string     `json:"grade"`
	CardNumber string     `json:"card_number"`
	Price      float64    `json:"price"`
	SoldAt     *time.Time `json:"sold_at"`
	Title      string     `json:"title"`
	URL        string     `json:"url" gorm:"uniqueIndex"`
	ImageURL   string     `json:"image_url"`
	Source     string     `json:"source"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ToListing converts a stored row back to the in-memory listing shape.
func (r CatalogRow) ToListing() Listing {
	return Listing{
		Title:      r.Title,
		Price:      r.Price,
		SoldAt:     r.SoldAt,
		URL:        r.URL,
		ImageURL:   r.ImageURL,
		SetName:    r.SetName,
		Year:       r.Year,
		Grader:     r.Grader,
		Grade:      r.Grade,
		Variant:    r.Variant,
		CardNumber: r.CardNumber,
		Source:     r.Source,
	}
}

// Listing is one sold marketplace item. Title, Price, SoldAt and URL are always
// present; the remaining fields depend on the source.
type Listing struct {
	Title      string     `json:"title"`
	Price      float64    `json:"price"`
	SoldAt     *time.Time `json:"sold_at"`
	URL        string     `json:"url"`
	ImageURL   string     `json:"image_url,omitempty"`
	SetName    string     `json:"set_name,omitempty"`
	Year       string     `json:"year,omitempty"`
	Grader     string     `json:"grader,omitempty"`
	Grade      string     `json:"grade,omitempty"`
	Variant    string     `json:"variant,omitempty"`
	CardNumber string     `json:"card_number,omitempty"`
	Source     string     `json:"source,omitempty"`
}

// SearchLog records a user's comps search for the assistant's recent-search context.
type SearchLog struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      string    `json:"user_id" gorm:"not null;index"`
	Query       string    `json:"query"`
	ResultCount int       `json:"result_count"`
	Cmv         *float64  `json:"cmv"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}
