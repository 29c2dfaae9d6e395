package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"recipeapi/internal/models"
	"recipeapi/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MinPasswordLength = 5
	// bcrypt ignores input past 72 bytes, so longer passwords are refused.
	MaxPasswordLength = 72

	tokenCachePrefix = "authtoken:"

	msgEmailTaken = "user with this email already exists."
)

type RegisterDTO struct {
	Email    string
	Password string
	Name     string
}

type UpdateProfileDTO struct {
	Name     *string
	Password *string
}

type UserService struct {
	db             *gorm.DB
	rdb            *redis.Client
	tokenTTL       time.Duration
	logger         *slog.Logger
	validate       *validator.Validate
	tokenGenerator func() (string, error)
}

// NewUserService wires the identity service. rdb may be nil, in which case
// every token lookup goes to the database.
func NewUserService(db *gorm.DB, rdb *redis.Client, tokenTTL time.Duration, logger *slog.Logger) *UserService {
	return &UserService{
		db:             db,
		rdb:            rdb,
		tokenTTL:       tokenTTL,
		logger:         logger,
		validate:       validator.New(),
		tokenGenerator: utils.GenerateToken,
	}
}

// NormalizeEmail trims the address and lowercases its domain part. The
// local part keeps its casing.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

func (s *UserService) validateEmail(verr *ValidationError, email string) {
	switch {
	case email == "":
		verr.Add("email", msgRequired)
	case len(email) > 255:
		verr.Add("email", msgMaxLength)
	case s.validate.Var(email, "email") != nil:
		verr.Add("email", "Enter a valid email address.")
	}
}

func validatePassword(verr *ValidationError, password string) {
	switch {
	case password == "":
		verr.Add("password", msgRequired)
	case len(password) < MinPasswordLength:
		verr.Add("password", fmt.Sprintf("Ensure this field has at least %d characters.", MinPasswordLength))
	case len(password) > MaxPasswordLength:
		verr.Add("password", fmt.Sprintf("Ensure this field has no more than %d characters.", MaxPasswordLength))
	}
}

func (s *UserService) Register(ctx context.Context, dto RegisterDTO) (*models.User, error) {
	return s.createUser(ctx, dto, false)
}

// CreateSuperuser provisions an active staff account with every permission.
func (s *UserService) CreateSuperuser(ctx context.Context, email, password string) (*models.User, error) {
	return s.createUser(ctx, RegisterDTO{Email: email, Password: password}, true)
}

func (s *UserService) createUser(ctx context.Context, dto RegisterDTO, superuser bool) (*models.User, error) {
	email := NormalizeEmail(dto.Email)
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		name = email
	}

	verr := &ValidationError{}
	s.validateEmail(verr, email)
	validatePassword(verr, dto.Password)
	if len(name) > 255 {
		verr.Add("name", msgMaxLength)
	}
	if !verr.Empty() {
		return nil, verr
	}

	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, NewValidationError("email", msgEmailTaken)
	}

	hash, err := utils.HashPassword(dto.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      superuser,
		IsSuperuser:  superuser,
	}
	if err := insertUser(db, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// insertUser creates the row, reporting a taken email as a validation error
// when a concurrent registration wins the race past the count check.
func insertUser(db *gorm.DB, user *models.User) error {
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return NewValidationError("email", msgEmailTaken)
		}
		return fmt.Errorf("failed to create user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return NewValidationError("email", msgEmailTaken)
	}
	return nil
}

// Authenticate checks the credential pair and returns the user's token,
// creating it on first login.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.AuthToken, error) {
	email = NormalizeEmail(email)

	verr := &ValidationError{}
	if email == "" {
		verr.Add("email", msgRequired)
	}
	if password == "" {
		verr.Add("password", msgRequired)
	}
	if !verr.Empty() {
		return nil, verr
	}

	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !user.IsActive || !utils.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	key, err := s.tokenGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	// A concurrent login may have created the token first; keep whichever won.
	candidate := models.AuthToken{Key: key, UserID: user.ID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Omit(clause.Associations).Create(&candidate).Error; err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	var token models.AuthToken
	if err := db.Where("user_id = ?", user.ID).First(&token).Error; err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	token.User = user

	return &token, nil
}

// Identify resolves a bearer token to its active user.
func (s *UserService) Identify(ctx context.Context, key string) (*models.User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrUnauthenticated
	}

	db := s.db.WithContext(ctx)

	userID, ok := s.cachedUserID(ctx, key)
	if !ok {
		var token models.AuthToken
		if err := db.Where("key = ?", key).First(&token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUnauthenticated
			}
			return nil, fmt.Errorf("failed to load token: %w", err)
		}
		userID = token.UserID
		s.cacheToken(ctx, key, userID)
	}

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := s.evictToken(ctx, key); err != nil {
				s.logger.Warn("Failed to evict cached token", "error", err)
			}
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrUnauthenticated
	}

	return &user, nil
}

func (s *UserService) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// UpdateProfile applies the fields present in dto and leaves the rest alone.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, dto UpdateProfileDTO) (*models.User, error) {
	verr := &ValidationError{}
	updates := map[string]any{}

	if dto.Name != nil {
		name := strings.TrimSpace(*dto.Name)
		if len(name) > 255 {
			verr.Add("name", msgMaxLength)
		}
		updates["name"] = name
	}
	if dto.Password != nil {
		validatePassword(verr, *dto.Password)
	}
	if !verr.Empty() {
		return nil, verr
	}

	if dto.Password != nil {
		hash, err := utils.HashPassword(*dto.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		updates["password_hash"] = hash
	}

	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to update user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}

	return s.GetUser(ctx, userID)
}

// Logout revokes the user's token. The cache entry is evicted before the row
// goes so a failed eviction leaves the token intact and the call retryable.
func (s *UserService) Logout(ctx context.Context, userID uint) error {
	db := s.db.WithContext(ctx)

	var tokens []models.AuthToken
	if err := db.Where("user_id = ?", userID).Find(&tokens).Error; err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}
	for _, t := range tokens {
		if err := s.evictToken(ctx, t.Key); err != nil {
			return fmt.Errorf("failed to evict cached token: %w", err)
		}
	}
	if err := db.Where("user_id = ?", userID).Delete(&models.AuthToken{}).Error; err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	// A request in flight may have re-cached the token before the delete.
	for _, t := range tokens {
		if err := s.evictToken(ctx, t.Key); err != nil {
			s.logger.Warn("Failed to evict cached token", "error", err)
		}
	}
	return nil
}

func (s *UserService) cachedUserID(ctx context.Context, key string) (uint, bool) {
	if s.rdb == nil {
		return 0, false
	}
	id, err := s.rdb.Get(ctx, tokenCachePrefix+key).Uint64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Debug("Token cache unavailable", "error", err)
		}
		return 0, false
	}
	return uint(id), true
}

func (s *UserService) cacheToken(ctx context.Context, key string, userID uint) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, tokenCachePrefix+key, strconv.FormatUint(uint64(userID), 10), s.tokenTTL).Err(); err != nil {
		s.logger.Debug("Failed to cache token", "error", err)
	}
}

func (s *UserService) evictToken(ctx context.Context, key string) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, tokenCachePrefix+key).Err()
}
