package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"recipeapi/internal/config"
	"recipeapi/internal/models"
	"recipeapi/internal/services"
	"recipeapi/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	h      *Handler
	db     *gorm.DB
	router *gin.Engine
	store  *storage.LocalStore
}

func setupTestHandler(t *testing.T) testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mediaRoot := t.TempDir()
	cfg := config.Config{
		ImageStorage: "local",
		MediaRoot:    mediaRoot,
		MediaURL:     "/media/",
		MaxUploadMB:  1,
		CORSOrigins:  "*",
	}

	store, err := storage.NewLocalStore(mediaRoot, cfg.MediaURL)
	require.NoError(t, err)

	users := services.NewUserService(db, nil, 0, log)
	tags := services.NewTagService(db)
	ingredients := services.NewIngredientService(db)
	recipes := services.NewRecipeService(db, tags, ingredients, store, log)
	audit := services.NewAuditService(db, log)

	h := NewHandler(cfg, log, users, tags, ingredients, recipes, audit)
	gin.SetMode(gin.TestMode)
	return testEnv{h: h, db: db, router: h.SetupRouter(nil), store: store}
}

func (e testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e testEnv) upload(t *testing.T, path, token, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Token "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// login registers a user and returns its token.
func (e testEnv) login(t *testing.T, email string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/users/create", "", map[string]string{
		"email": email, "password": "pass123", "name": email,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/users/token", "", map[string]string{
		"email": email, "password": "pass123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields"`
}
