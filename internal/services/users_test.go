package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"recipeapi/internal/models"
	"recipeapi/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserService(t *testing.T) (*UserService, context.Context) {
	db := setupTestDB(t)
	return NewUserService(db, nil, time.Minute, testLogger()), context.Background()
}

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	return verr.Fields
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "test@test.com", NormalizeEmail("test@TEST.COM"))
	assert.Equal(t, "Test.User@example.com", NormalizeEmail("  Test.User@Example.Com "))
	assert.Equal(t, "no-at-sign", NormalizeEmail("no-at-sign"))
	assert.Equal(t, "", NormalizeEmail(""))
}

func TestRegister(t *testing.T) {
	service, ctx := newTestUserService(t)

	t.Run("Success", func(t *testing.T) {
		user, err := service.Register(ctx, RegisterDTO{Email: "test@TEST.COM", Password: "pass123", Name: "Test"})
		require.NoError(t, err)

		assert.Equal(t, "test@test.com", user.Email)
		assert.Equal(t, "Test", user.Name)
		assert.True(t, user.IsActive)
		assert.False(t, user.IsStaff)
		assert.NotEqual(t, "pass123", user.PasswordHash)
		assert.True(t, utils.CheckPasswordHash("pass123", user.PasswordHash))
	})

	t.Run("Duplicate email", func(t *testing.T) {
		_, err := service.Register(ctx, RegisterDTO{Email: "test@test.com", Password: "pass123"})
		assert.Contains(t, fieldErrors(t, err), "email")
	})

	t.Run("Name defaults to email", func(t *testing.T) {
		user, err := service.Register(ctx, RegisterDTO{Email: "noname@TEST.COM", Password: "pass123", Name: "   "})
		require.NoError(t, err)
		assert.Equal(t, "noname@test.com", user.Name)

		var saved models.User
		require.NoError(t, service.db.First(&saved, user.ID).Error)
		assert.Equal(t, "noname@test.com", saved.Name)
	})

	t.Run("Concurrent duplicate insert", func(t *testing.T) {
		// Both registrations passed the email check before either inserted.
		first := models.User{Email: "race@test.com", Name: "race@test.com", PasswordHash: "x", IsActive: true}
		require.NoError(t, insertUser(service.db.WithContext(ctx), &first))

		second := models.User{Email: "race@test.com", Name: "race@test.com", PasswordHash: "y", IsActive: true}
		err := insertUser(service.db.WithContext(ctx), &second)
		assert.Equal(t, []string{"user with this email already exists."}, fieldErrors(t, err)["email"])

		var count int64
		require.NoError(t, service.db.Model(&models.User{}).Where("email = ?", "race@test.com").Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Password too short", func(t *testing.T) {
		_, err := service.Register(ctx, RegisterDTO{Email: "short@test.com", Password: "pw"})
		assert.Equal(t, []string{"Ensure this field has at least 5 characters."}, fieldErrors(t, err)["password"])

		_, err = service.Register(ctx, RegisterDTO{Email: "bad", Password: "pw"})
		assert.Contains(t, fieldErrors(t, err), "password")

		var count int64
		service.db.Model(&models.User{}).Where("email = ?", "short@test.com").Count(&count)
		assert.Zero(t, count)
	})

	t.Run("Invalid email", func(t *testing.T) {
		_, err := service.Register(ctx, RegisterDTO{Email: "not-an-email", Password: "pass123"})
		assert.Equal(t, []string{"Enter a valid email address."}, fieldErrors(t, err)["email"])
	})

	t.Run("Missing fields", func(t *testing.T) {
		_, err := service.Register(ctx, RegisterDTO{})
		fields := fieldErrors(t, err)
		assert.Equal(t, []string{"This field is required."}, fields["email"])
		assert.Equal(t, []string{"This field is required."}, fields["password"])
	})
}

func TestCreateSuperuser(t *testing.T) {
	service, ctx := newTestUserService(t)

	user, err := service.CreateSuperuser(ctx, "admin@test.com", "pass123")
	require.NoError(t, err)
	assert.True(t, user.IsSuperuser)
	assert.True(t, user.IsStaff)
	assert.True(t, user.IsActive)
}

func TestAuthenticate(t *testing.T) {
	service, ctx := newTestUserService(t)
	user, err := service.Register(ctx, RegisterDTO{Email: "test@test.com", Password: "pass123"})
	require.NoError(t, err)

	t.Run("Success issues token", func(t *testing.T) {
		token, err := service.Authenticate(ctx, "test@TEST.com", "pass123")
		require.NoError(t, err)
		assert.Len(t, token.Key, utils.TokenLength)
		assert.Equal(t, user.ID, token.UserID)
		assert.Equal(t, user.Email, token.User.Email)
	})

	t.Run("Second login reuses token", func(t *testing.T) {
		first, err := service.Authenticate(ctx, "test@test.com", "pass123")
		require.NoError(t, err)
		second, err := service.Authenticate(ctx, "test@test.com", "pass123")
		require.NoError(t, err)
		assert.Equal(t, first.Key, second.Key)

		var count int64
		service.db.Model(&models.AuthToken{}).Where("user_id = ?", user.ID).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Wrong password", func(t *testing.T) {
		_, err := service.Authenticate(ctx, "test@test.com", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("Unknown user", func(t *testing.T) {
		_, err := service.Authenticate(ctx, "nobody@test.com", "pass123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("Empty fields", func(t *testing.T) {
		_, err := service.Authenticate(ctx, "", "")
		fields := fieldErrors(t, err)
		assert.Contains(t, fields, "email")
		assert.Contains(t, fields, "password")
	})

	t.Run("Logout keeps token when cache eviction fails", func(t *testing.T) {
		token, err := service.Authenticate(ctx, "test@test.com", "pass123")
		require.NoError(t, err)

		rdb := redis.NewClient(&redis.Options{Addr: "localhost:1", MaxRetries: -1})
		defer rdb.Close()
		cached := NewUserService(service.db, rdb, time.Minute, testLogger())

		assert.Error(t, cached.Logout(ctx, token.UserID))

		var count int64
		require.NoError(t, service.db.Model(&models.AuthToken{}).Where("key = ?", token.Key).Count(&count).Error)
		assert.Equal(t, int64(1), count)

		user, err := service.Identify(ctx, token.Key)
		require.NoError(t, err)
		assert.Equal(t, token.UserID, user.ID)
	})

	t.Run("Inactive user", func(t *testing.T) {
		other, err := service.Register(ctx, RegisterDTO{Email: "inactive@test.com", Password: "pass123"})
		require.NoError(t, err)
		require.NoError(t, service.db.Model(other).Update("is_active", false).Error)

		_, err = service.Authenticate(ctx, "inactive@test.com", "pass123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestIdentify(t *testing.T) {
	service, ctx := newTestUserService(t)
	_, err := service.Register(ctx, RegisterDTO{Email: "test@test.com", Password: "pass123"})
	require.NoError(t, err)
	token, err := service.Authenticate(ctx, "test@test.com", "pass123")
	require.NoError(t, err)

	t.Run("Valid token", func(t *testing.T) {
		user, err := service.Identify(ctx, token.Key)
		require.NoError(t, err)
		assert.Equal(t, "test@test.com", user.Email)
	})

	t.Run("Unknown token", func(t *testing.T) {
		_, err := service.Identify(ctx, "deadbeef")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("Empty token", func(t *testing.T) {
		_, err := service.Identify(ctx, "  ")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("Unreachable cache falls back to database", func(t *testing.T) {
		rdb := redis.NewClient(&redis.Options{Addr: "localhost:1", MaxRetries: -1})
		defer rdb.Close()
		cached := NewUserService(service.db, rdb, time.Minute, testLogger())

		user, err := cached.Identify(ctx, token.Key)
		require.NoError(t, err)
		assert.Equal(t, token.UserID, user.ID)
	})

	t.Run("Inactive user", func(t *testing.T) {
		require.NoError(t, service.db.Model(&models.User{}).Where("id = ?", token.UserID).Update("is_active", false).Error)
		defer service.db.Model(&models.User{}).Where("id = ?", token.UserID).Update("is_active", true)

		_, err := service.Identify(ctx, token.Key)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("Logout revokes token", func(t *testing.T) {
		require.NoError(t, service.Logout(ctx, token.UserID))

		_, err := service.Identify(ctx, token.Key)
		assert.ErrorIs(t, err, ErrUnauthenticated)

		fresh, err := service.Authenticate(ctx, "test@test.com", "pass123")
		require.NoError(t, err)
		assert.NotEqual(t, token.Key, fresh.Key)
	})
}

func TestUpdateProfile(t *testing.T) {
	service, ctx := newTestUserService(t)
	user, err := service.Register(ctx, RegisterDTO{Email: "test@test.com", Password: "pass123", Name: "Old"})
	require.NoError(t, err)

	t.Run("Name only keeps password", func(t *testing.T) {
		updated, err := service.UpdateProfile(ctx, user.ID, UpdateProfileDTO{Name: ptr("New name")})
		require.NoError(t, err)
		assert.Equal(t, "New name", updated.Name)
		assert.Equal(t, user.PasswordHash, updated.PasswordHash)
	})

	t.Run("Password is re-hashed", func(t *testing.T) {
		updated, err := service.UpdateProfile(ctx, user.ID, UpdateProfileDTO{Password: ptr("newpassword")})
		require.NoError(t, err)
		assert.Equal(t, "New name", updated.Name)
		assert.True(t, utils.CheckPasswordHash("newpassword", updated.PasswordHash))

		_, err = service.Authenticate(ctx, "test@test.com", "newpassword")
		assert.NoError(t, err)
	})

	t.Run("Short password rejected", func(t *testing.T) {
		_, err := service.UpdateProfile(ctx, user.ID, UpdateProfileDTO{Password: ptr("pw")})
		assert.Contains(t, fieldErrors(t, err), "password")
	})

	t.Run("Empty update returns profile", func(t *testing.T) {
		same, err := service.UpdateProfile(ctx, user.ID, UpdateProfileDTO{})
		require.NoError(t, err)
		assert.Equal(t, "New name", same.Name)
	})

	t.Run("Unknown user", func(t *testing.T) {
		_, err := service.UpdateProfile(ctx, 9999, UpdateProfileDTO{Name: ptr("x")})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
