package services

import (
	"context"
	"fmt"
	"strings"

	"recipeapi/internal/models"

	"gorm.io/gorm"
)

// Attribute is a per-user label that recipes reference many-to-many.
type Attribute interface {
	models.Tag | models.Ingredient
	PK() uint
}

// AttributeService manages tags and ingredients, which share one shape.
type AttributeService[T Attribute] struct {
	db        *gorm.DB
	joinTable string
	joinKey   string
	build     func(userID uint, name string) T
}

func NewTagService(db *gorm.DB) *AttributeService[models.Tag] {
	return &AttributeService[models.Tag]{
		db:        db,
		joinTable: "recipe_tags",
		joinKey:   "tag_id",
		build: func(userID uint, name string) models.Tag {
			return models.Tag{UserID: userID, Name: name}
		},
	}
}

func NewIngredientService(db *gorm.DB) *AttributeService[models.Ingredient] {
	return &AttributeService[models.Ingredient]{
		db:        db,
		joinTable: "recipe_ingredients",
		joinKey:   "ingredient_id",
		build: func(userID uint, name string) models.Ingredient {
			return models.Ingredient{UserID: userID, Name: name}
		},
	}
}

// List returns the user's items by name descending. With assignedOnly it
// keeps only items used by at least one of the user's recipes.
func (s *AttributeService[T]) List(ctx context.Context, userID uint, assignedOnly bool) ([]T, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if assignedOnly {
		// A sub-select keeps each item once however many recipes use it.
		assigned := s.db.Table(s.joinTable).
			Select(s.joinTable+"."+s.joinKey).
			Joins("JOIN recipes ON recipes.id = "+s.joinTable+".recipe_id").
			Where("recipes.user_id = ?", userID)
		q = q.Where("id IN (?)", assigned)
	}

	items := []T{}
	if err := q.Order("name DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.kind(), err)
	}
	return items, nil
}

func (s *AttributeService[T]) Create(ctx context.Context, userID uint, name string) (*T, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, NewValidationError("name", msgBlank)
	case len(name) > 255:
		return nil, NewValidationError("name", msgMaxLength)
	}

	item := s.build(userID, name)
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", s.kind(), err)
	}
	return &item, nil
}

// Resolve loads the items with the given ids inside tx. Ids that do not
// exist or belong to another user fail validation under field.
func (s *AttributeService[T]) Resolve(ctx context.Context, tx *gorm.DB, userID uint, field string, ids []uint) ([]T, error) {
	items := []T{}
	unique := uniqueIDs(ids)
	if len(unique) == 0 {
		return items, nil
	}

	if err := tx.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, unique).Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.kind(), err)
	}
	if len(items) == len(unique) {
		return items, nil
	}

	found := make(map[uint]bool, len(items))
	for _, item := range items {
		found[item.PK()] = true
	}
	verr := &ValidationError{}
	for _, id := range unique {
		if !found[id] {
			verr.Add(field, fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id))
		}
	}
	return nil, verr
}

func (s *AttributeService[T]) kind() string {
	return strings.TrimPrefix(s.joinTable, "recipe_")
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
