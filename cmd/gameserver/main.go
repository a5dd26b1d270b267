// Package main provides the game server binary: the match coordinator
// behind an HTTP API and WebSocket gateway.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/crsh/server/internal/config"
	"github.com/crsh/server/internal/coordinator"
	"github.com/crsh/server/internal/game/card"
	"github.com/crsh/server/internal/game/rng"
	"github.com/crsh/server/internal/gateway"
	"github.com/crsh/server/internal/observability"
	"github.com/crsh/server/internal/server"
	"github.com/crsh/server/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting server",
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.Int("rooms", len(cfg.Rooms)),
	)

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	store := coordinator.RepoStore{
		Players: postgres.NewPlayerRepository(pool.DB()),
		Decks:   postgres.NewDeckRepository(pool.DB()),
	}

	cache := card.NewDeckCache(rng.NewCryptoSource())
	co := coordinator.New(cfg.Game, cfg.Rooms, store, cache, logger)
	gw := gateway.New(cfg.HTTP, co, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("coordinator", co)
	lifecycle.Add("gateway", gw)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server exited", zap.Duration("uptime", time.Since(start)))
}
