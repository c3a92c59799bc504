package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"stream-gateway/internal/auth"
	"stream-gateway/internal/config"
	"stream-gateway/internal/database"
	"stream-gateway/internal/repository"

	"github.com/spf13/pflag"
)

type seedUser struct {
	username string
	email    string
	role     string
}

var seedRoles = map[string]string{
	"Administrator":          "Full access to every stream",
	"Plant Manager":          "Plant-wide production, equipment, quality and resources",
	"Production Scheduler":   "Production, job and resource planning",
	"Shop Floor Operations":  "Production floor, equipment and jobs",
	"Maintenance Technician": "Equipment status only",
	"Data Analyst":           "Production, quality and resource analytics",
	"Director":               "Production and quality summaries",
}

var seedUsers = []seedUser{
	{"admin", "admin@gateway.local", "Administrator"},
	{"manager", "manager@gateway.local", "Plant Manager"},
	{"scheduler", "scheduler@gateway.local", "Production Scheduler"},
	{"operator", "operator@gateway.local", "Shop Floor Operations"},
	{"technician", "technician@gateway.local", "Maintenance Technician"},
	{"analyst", "analyst@gateway.local", "Data Analyst"},
	{"director", "director@gateway.local", "Director"},
}

func main() {
	flags := config.Flags("seed")
	tokenTTL := flags.Duration("token-ttl", 24*time.Hour, "lifetime of the printed development tokens")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("Invalid flags", "error", err)
		os.Exit(2)
	}

	if err := seed(flags, *tokenTTL); err != nil {
		slog.Error("Seeding failed", "error", err)
		os.Exit(1)
	}
}

func seed(flags *pflag.FlagSet, tokenTTL time.Duration) error {
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		return err
	}

	slog.Info("Starting database seeding...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	ctx := context.Background()
	repo := repository.NewIdentityRepository(db)

	roleIDs := make(map[string]uint, len(seedRoles))
	for name, description := range seedRoles {
		role, err := repo.EnsureRole(ctx, name, description)
		if err != nil {
			return err
		}
		roleIDs[name] = role.ID
	}
	slog.Info("Roles ready", "count", len(roleIDs))

	table := auth.DefaultPermissionTable()
	now := time.Now()
	for _, u := range seedUsers {
		user, err := repo.EnsureUser(ctx, u.username, u.email)
		if err != nil {
			return err
		}
		if err := repo.AssignRole(ctx, user.ID, roleIDs[u.role]); err != nil {
			return err
		}

		subject := strconv.FormatUint(uint64(user.ID), 10)
		token, err := auth.NewToken(cfg.JWT.Secret, subject, tokenTTL, now)
		if err != nil {
			return fmt.Errorf("failed to sign token for %s: %w", u.username, err)
		}
		slog.Info("Seeded user", "userID", subject, "username", u.username, "role", u.role, "streams", table.StreamsFor(u.role))
		fmt.Printf("%s\t%s\t%s\n", u.username, u.role, token)
	}

	slog.Info("Database seeding completed")
	return nil
}
