package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"stream-gateway/internal/config"
	"stream-gateway/internal/database"

	"github.com/spf13/pflag"
)

func main() {
	flags := config.Flags("migrate")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("Invalid flags", "error", err)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(flags)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting database migration...", "driver", cfg.Database.Driver)
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Failed to get database instance", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		slog.Error("Failed to ping database", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		slog.Error("Migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migration completed successfully")
}
