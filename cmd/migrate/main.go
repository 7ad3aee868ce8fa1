package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"

	"github.com/wallet-tracker/internal/config"
	"github.com/wallet-tracker/internal/logging"
	"github.com/wallet-tracker/internal/storage"
)

func main() {
	var (
		direction = flag.String("direction", "up", "migration direction: up or down")
		path      = flag.String("path", "migrations", "path to migration files")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	pgURL := postgresURL(&cfg.Database.Postgres)

	switch *direction {
	case "up":
		if err := storage.RunMigrations(pgURL, *path); err != nil {
			logger.WithError(err).Error("Migration failed")
			os.Exit(1)
		}
		logger.Info("Migrations applied")
	case "down":
		if err := storage.RollbackMigrations(pgURL, *path); err != nil {
			logger.WithError(err).Error("Rollback failed")
			os.Exit(1)
		}
		logger.Info("Last migration rolled back")
	default:
		logger.Errorf("Unknown direction %q, expected up or down", *direction)
		os.Exit(1)
	}
}

func postgresURL(cfg *config.PostgresConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
}
