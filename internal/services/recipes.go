package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"recipeapi/internal/models"
	"recipeapi/internal/storage"
	"recipeapi/pkg/utils"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var maxPrice = decimal.NewFromInt(1000) // decimal(5,2)

// RecipeDTO carries recipe fields; nil means the field was not sent.
type RecipeDTO struct {
	Title         *string
	TimeMinutes   *int
	Price         *decimal.Decimal
	Link          *string
	TagIDs        *[]uint
	IngredientIDs *[]uint
}

// RecipeFilter narrows a listing to recipes with any of the given tags
// and any of the given ingredients. Empty slices do not filter.
type RecipeFilter struct {
	TagIDs        []uint
	IngredientIDs []uint
}

type ImageUpload struct {
	Filename string
	Data     []byte
}

type RecipeService struct {
	db          *gorm.DB
	tags        *AttributeService[models.Tag]
	ingredients *AttributeService[models.Ingredient]
	images      storage.ImageStore
	logger      *slog.Logger
}

func NewRecipeService(
	db *gorm.DB,
	tags *AttributeService[models.Tag],
	ingredients *AttributeService[models.Ingredient],
	images storage.ImageStore,
	logger *slog.Logger,
) *RecipeService {
	return &RecipeService{
		db:          db,
		tags:        tags,
		ingredients: ingredients,
		images:      images,
		logger:      logger,
	}
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

func (s *RecipeService) preload(db *gorm.DB) *gorm.DB {
	return db.Preload("Tags", orderByID).Preload("Ingredients", orderByID)
}

func (s *RecipeService) List(ctx context.Context, userID uint, filter RecipeFilter) ([]models.Recipe, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(filter.TagIDs) > 0 {
		q = q.Where("id IN (?)", s.db.Table("recipe_tags").Select("recipe_id").Where("tag_id IN ?", filter.TagIDs))
	}
	if len(filter.IngredientIDs) > 0 {
		q = q.Where("id IN (?)", s.db.Table("recipe_ingredients").Select("recipe_id").Where("ingredient_id IN ?", filter.IngredientIDs))
	}

	recipes := []models.Recipe{}
	if err := s.preload(q).Order("id DESC").Find(&recipes).Error; err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	return recipes, nil
}

func (s *RecipeService) Get(ctx context.Context, userID, id uint) (*models.Recipe, error) {
	return s.find(s.db.WithContext(ctx), userID, id, true)
}

func (s *RecipeService) find(db *gorm.DB, userID, id uint, withRelations bool) (*models.Recipe, error) {
	if withRelations {
		db = s.preload(db)
	}
	var recipe models.Recipe
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&recipe).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load recipe: %w", err)
	}
	return &recipe, nil
}

func validateRecipe(dto RecipeDTO, partial bool) *ValidationError {
	verr := &ValidationError{}

	if dto.Title == nil {
		if !partial {
			verr.Add("title", msgRequired)
		}
	} else if title := strings.TrimSpace(*dto.Title); title == "" {
		verr.Add("title", msgBlank)
	} else if len(title) > 255 {
		verr.Add("title", msgMaxLength)
	}

	if dto.TimeMinutes == nil && !partial {
		verr.Add("time_minutes", msgRequired)
	}

	if dto.Price == nil {
		if !partial {
			verr.Add("price", msgRequired)
		}
	} else if !dto.Price.Equal(dto.Price.Truncate(2)) {
		verr.Add("price", "Ensure that there are no more than 2 decimal places.")
	} else if dto.Price.Abs().GreaterThanOrEqual(maxPrice) {
		verr.Add("price", "Ensure that there are no more than 5 digits in total.")
	}

	if dto.Link != nil && len(*dto.Link) > 255 {
		verr.Add("link", msgMaxLength)
	}

	return verr
}

// resolveRelations loads the tag and ingredient sets named by dto. A nil id
// list yields an empty set.
func (s *RecipeService) resolveRelations(ctx context.Context, tx *gorm.DB, userID uint, dto RecipeDTO) ([]models.Tag, []models.Ingredient, error) {
	verr := &ValidationError{}
	tags := []models.Tag{}
	ingredients := []models.Ingredient{}

	if dto.TagIDs != nil {
		resolved, err := s.tags.Resolve(ctx, tx, userID, "tags", *dto.TagIDs)
		if !verr.Merge(err) {
			return nil, nil, err
		}
		if err == nil {
			tags = resolved
		}
	}
	if dto.IngredientIDs != nil {
		resolved, err := s.ingredients.Resolve(ctx, tx, userID, "ingredients", *dto.IngredientIDs)
		if !verr.Merge(err) {
			return nil, nil, err
		}
		if err == nil {
			ingredients = resolved
		}
	}

	if err := verr.OrNil(); err != nil {
		return nil, nil, err
	}
	return tags, ingredients, nil
}

func (s *RecipeService) Create(ctx context.Context, userID uint, dto RecipeDTO) (*models.Recipe, error) {
	if verr := validateRecipe(dto, false); !verr.Empty() {
		return nil, verr
	}

	recipe := models.Recipe{
		UserID:      userID,
		Title:       strings.TrimSpace(*dto.Title),
		TimeMinutes: *dto.TimeMinutes,
		Price:       *dto.Price,
	}
	if dto.Link != nil {
		recipe.Link = *dto.Link
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, ingredients, err := s.resolveRelations(ctx, tx, userID, dto)
		if err != nil {
			return err
		}
		recipe.Tags = tags
		recipe.Ingredients = ingredients

		// Existing rows only need join entries, not upserts.
		return tx.Omit("Tags.*", "Ingredients.*").Create(&recipe).Error
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		return nil, fmt.Errorf("failed to create recipe: %w", err)
	}

	return &recipe, nil
}

// Update applies dto to the user's recipe. A full update (partial=false)
// requires the mandatory fields, resets the link when omitted and replaces
// the tag and ingredient sets, clearing them when omitted.
func (s *RecipeService) Update(ctx context.Context, userID, id uint, dto RecipeDTO, partial bool) (*models.Recipe, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recipe, err := s.find(tx, userID, id, false)
		if err != nil {
			return err
		}

		if verr := validateRecipe(dto, partial); !verr.Empty() {
			return verr
		}
		tags, ingredients, err := s.resolveRelations(ctx, tx, userID, dto)
		if err != nil {
			return err
		}

		updates := map[string]any{}
		if dto.Title != nil {
			updates["title"] = strings.TrimSpace(*dto.Title)
		}
		if dto.TimeMinutes != nil {
			updates["time_minutes"] = *dto.TimeMinutes
		}
		if dto.Price != nil {
			updates["price"] = *dto.Price
		}
		if dto.Link != nil {
			updates["link"] = *dto.Link
		} else if !partial {
			updates["link"] = ""
		}
		if len(updates) > 0 {
			if err := tx.Model(recipe).Updates(updates).Error; err != nil {
				return err
			}
		}

		if dto.TagIDs != nil || !partial {
			if err := replaceAssociation(tx, recipe, "Tags", tags); err != nil {
				return err
			}
		}
		if dto.IngredientIDs != nil || !partial {
			if err := replaceAssociation(tx, recipe, "Ingredients", ingredients); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update recipe: %w", err)
	}

	return s.Get(ctx, userID, id)
}

func replaceAssociation[T any](tx *gorm.DB, recipe *models.Recipe, name string, values []T) error {
	assoc := tx.Model(recipe).Association(name)
	if len(values) == 0 {
		return assoc.Clear()
	}
	return assoc.Replace(values)
}

// Delete removes the recipe, its associations and, best effort, its image.
func (s *RecipeService) Delete(ctx context.Context, userID, id uint) error {
	var image string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recipe, err := s.find(tx, userID, id, false)
		if err != nil {
			return err
		}
		image = recipe.Image

		if err := tx.Model(recipe).Association("Tags").Clear(); err != nil {
			return err
		}
		if err := tx.Model(recipe).Association("Ingredients").Clear(); err != nil {
			return err
		}
		return tx.Delete(recipe).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete recipe: %w", err)
	}

	if image != "" {
		s.removeImage(ctx, image)
	}
	return nil
}

// UploadImage validates and stores upload, then points the recipe at it.
// The recipe is left untouched when validation or storage fails.
func (s *RecipeService) UploadImage(ctx context.Context, userID, id uint, upload ImageUpload) (*models.Recipe, error) {
	recipe, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	info, err := DetectImage(upload.Data)
	if err != nil {
		return nil, err
	}

	key := utils.GenerateFileName(RecipeImageDir, info.Extension(upload.Filename))
	if err := s.images.Save(ctx, key, bytes.NewReader(upload.Data), int64(len(upload.Data)), info.MIME); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&models.Recipe{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("image", key).Error
	if err != nil {
		s.removeImage(ctx, key)
		return nil, fmt.Errorf("failed to update recipe image: %w", err)
	}

	if previous := recipe.Image; previous != "" && previous != key {
		s.removeImage(ctx, previous)
	}
	recipe.Image = key

	return recipe, nil
}

// ImageURL is the public address of a stored recipe image.
func (s *RecipeService) ImageURL(key string) string {
	if key == "" {
		return ""
	}
	return s.images.URL(key)
}

func (s *RecipeService) removeImage(ctx context.Context, key string) {
	if err := s.images.Delete(ctx, key); err != nil {
		s.logger.Warn("Failed to remove recipe image", "key", key, "error", err)
	}
}
