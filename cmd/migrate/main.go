package main

import (
	"context"
	"os"

	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/observability"
	"go.uber.org/zap"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if len(os.Args) < 2 {
		logger.Fatal("usage: migrate [up|down]")
	}

	direction := database.MigrateDirection(os.Args[1])
	if direction != database.MigrateUp && direction != database.MigrateDown {
		logger.Fatal("direction must be 'up' or 'down'", zap.String("direction", os.Args[1]))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	db, err := database.NewConnection(context.Background(), &cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db, direction); err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}

	logger.Info("migrations applied", zap.String("direction", string(direction)))
}
