package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Tag struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"not null;size:255" json:"name"`
	UserID uint   `gorm:"not null;index" json:"-"`
	User   *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

type Ingredient struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"not null;size:255" json:"name"`
	UserID uint   `gorm:"not null;index" json:"-"`
	User   *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

type Recipe struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"not null;index" json:"-"`
	User        *User           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Title       string          `gorm:"not null;size:255" json:"title"`
	TimeMinutes int             `gorm:"not null" json:"time_minutes"`
	Price       decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"price"`
	Link        string          `gorm:"size:255;not null;default:''" json:"link"`
	Image       string          `gorm:"size:255;not null;default:''" json:"image"` // Storage key, empty when unset
	Tags        []Tag           `gorm:"many2many:recipe_tags;" json:"tags"`
	Ingredients []Ingredient    `gorm:"many2many:recipe_ingredients;" json:"ingredients"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TagIDs returns the ids of the recipe's tags in stored order.
func (r Recipe) TagIDs() []uint {
	ids := make([]uint, 0, len(r.Tags))
	for _, t := range r.Tags {
		ids = append(ids, t.ID)
	}
	return ids
}

// IngredientIDs returns the ids of the recipe's ingredients in stored order.
func (r Recipe) IngredientIDs() []uint {
	ids := make([]uint, 0, len(r.Ingredients))
	for _, i := range r.Ingredients {
		ids = append(ids, i.ID)
	}
	return ids
}

func (t Tag) PK() uint        { return t.ID }
func (i Ingredient) PK() uint { return i.ID }
