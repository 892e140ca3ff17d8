// Command migrate applies or rolls back the embedded schema migrations.
package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"

	"github.com/iliyamo/access-control-api/internal/config"
	"github.com/iliyamo/access-control-api/internal/database"
	"github.com/iliyamo/access-control-api/internal/logging"
)

func main() {
	cfg, err := config.Load()
	log := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate [up|down|force <version>|version]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	db, err := database.Open(ctx, cfg.DB.DSN())
	cancel()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	m, err := database.NewMigrator(db)
	if err != nil {
		log.WithError(err).Fatal("failed to create migrator")
	}
	defer m.Close()

	switch cmd := os.Args[1]; cmd {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.WithError(err).Fatal("failed to apply migrations")
		}
		log.Info("migrations applied")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.WithError(err).Fatal("failed to revert migrations")
		}
		log.Info("migrations reverted")
	case "force":
		if len(os.Args) < 3 {
			log.Fatal("force requires a version argument")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("invalid version number %q", os.Args[2])
		}
		if err := m.Force(version); err != nil {
			log.WithError(err).Fatal("failed to force version")
		}
		log.Infof("forced version %d", version)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.WithError(err).Fatal("failed to read version")
		}
		log.Infof("current version %d, dirty %t", version, dirty)
	default:
		log.Fatalf("unknown command %q", cmd)
	}
}
