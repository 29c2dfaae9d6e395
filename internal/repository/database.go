package repository

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recipeapi/internal/config"
	"recipeapi/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg config.Config) (*gorm.DB, error) {
	var dialer gorm.Dialector
	if IsPostgres(cfg.DatabaseURL) {
		dialer = postgres.Open(cfg.DatabaseURL)
	} else if strings.HasPrefix(cfg.DatabaseURL, "sqlite") {
		dialer = sqlite.Open(strings.TrimPrefix(cfg.DatabaseURL, "sqlite://"))
	} else {
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.DatabaseURL)
	}

	logLevel := logger.Warn
	if cfg.AppEnv == "production" {
		logLevel = logger.Error
	}

	db, err := gorm.Open(dialer, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if IsPostgres(cfg.DatabaseURL) {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// sqlite serialises writers; in-memory databases exist per connection.
		sqlDB.SetMaxOpenConns(1)
	}

	// Force a round trip so a bad path or unreachable server fails here.
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// IsPostgres reports whether url points at a postgres server.
func IsPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres")
}

// PrepareSchema brings the schema up to date: SQL migrations for postgres,
// gorm automigration for everything else.
func PrepareSchema(db *gorm.DB, cfg config.Config, logger *slog.Logger) error {
	if IsPostgres(cfg.DatabaseURL) {
		logger.Info("Running database migrations...")
		return RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath)
	}
	logger.Info("Auto-migrating database schema...")
	return AutoMigrate(db)
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return nil
}

func RunMigrations(databaseURL string, sourcePath string) error {
	if sourcePath == "" {
		sourcePath = "file://migration"
	}
	m, err := migrate.New(
		sourcePath,
		databaseURL,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run up migrations: %w", err)
	}

	slog.Info("Database migrations ran successfully")
	return nil
}
