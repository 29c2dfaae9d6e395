package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"recipeapi/internal/config"
	"recipeapi/internal/repository"
	"recipeapi/internal/services"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("createsuperuser", flag.ContinueOnError)
	fs.SetOutput(out)
	email := fs.String("email", "", "superuser email")
	password := fs.String("password", os.Getenv("SUPERUSER_PASSWORD"), "superuser password (default $SUPERUSER_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, err := repository.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repository.PrepareSchema(db, cfg, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	users := services.NewUserService(db, nil, 0, logger)
	user, err := users.CreateSuperuser(ctx, *email, *password)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Superuser %s created (id %d)\n", user.Email, user.ID)
	return nil
}
