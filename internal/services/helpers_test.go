package services

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"

	"recipeapi/internal/models"
	"recipeapi/internal/storage"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "failed to connect database")

	// Every connection to :memory: is a separate database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...), "failed to migrate database")
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Email: email, PasswordHash: "unused", IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	return user
}

type recipeFixture struct {
	db          *gorm.DB
	store       *storage.LocalStore
	tags        *AttributeService[models.Tag]
	ingredients *AttributeService[models.Ingredient]
	recipes     *RecipeService
}

func setupRecipeFixture(t *testing.T) recipeFixture {
	t.Helper()
	db := setupTestDB(t)
	store, err := storage.NewLocalStore(t.TempDir(), "/media/")
	require.NoError(t, err)

	tags := NewTagService(db)
	ingredients := NewIngredientService(db)
	return recipeFixture{
		db:          db,
		store:       store,
		tags:        tags,
		ingredients: ingredients,
		recipes:     NewRecipeService(db, tags, ingredients, store, testLogger()),
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 20), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func ptr[T any](v T) *T {
	return &v
}
