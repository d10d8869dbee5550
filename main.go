package main

import (
	"context"
	"fmt"
	"os"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/config"
	"auction-engine/internal/events"
	"auction-engine/internal/lifecycle"
	"auction-engine/internal/pricecache"
	"auction-engine/internal/push"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"auction-engine/utils"
)

func main() {
	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := buildRepository(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	cache, bus, err := buildRealtime(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize realtime stack: %v\n", err)
		os.Exit(1)
	}
	defer cache.Close()
	defer bus.Close()

	machine := lifecycle.NewMachine(repo, cache, bus)
	scheduler := lifecycle.NewScheduler(machine, repo, cache, cfg.SweepInterval)
	service := bidding.NewBiddingService(repo, cache, bus, scheduler)

	registry := push.NewRegistry()
	bridge := push.NewBridge(bus, registry)

	// Recover pending triggers and correct overdue phases before serving.
	scheduler.Recover(ctx)
	go scheduler.Run(ctx)
	go bridge.Run(ctx)

	router := server.SetupRouter(service, registry)

	port := ":" + cfg.ServerPort
	utils.Info("starting auction server", map[string]any{"port": port})
	if err := router.Run(port); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}

// buildRepository selects PostgreSQL when configured, otherwise the
// in-memory repository.
func buildRepository(cfg *config.Config) (repository.AuctionDB, error) {
	if cfg.PostgresURL == "" {
		utils.Info("POSTGRES_URL not set, using in-memory repository", nil)
		return repository.NewMemoryRepo(), nil
	}

	db, err := config.InitPostgres(cfg)
	if err != nil {
		return nil, err
	}
	repo := repository.NewPostgresRepo(db)
	if err := repo.InitializeTables(); err != nil {
		return nil, err
	}
	return repo, nil
}

// buildRealtime selects the Redis-backed price cache and event bus when
// configured, otherwise their in-process equivalents.
func buildRealtime(cfg *config.Config) (pricecache.PriceCache, events.Bus, error) {
	if cfg.RedisAddr == "" {
		utils.Info("REDIS_ADDR not set, using in-process cache and event bus", nil)
		return pricecache.NewMemoryCache(), events.NewChannelBus(), nil
	}

	client, err := config.InitRedis(cfg)
	if err != nil {
		return nil, nil, err
	}
	return pricecache.NewRedisCacheFromClient(client), events.NewRedisBusFromClient(client), nil
}
