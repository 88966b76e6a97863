package main

import (
	"context"

	"crm_backend/internal/leads/repository"
	"crm_backend/internal/leads/searchindex"
	"crm_backend/platform/cache"
	"crm_backend/platform/config"
	"crm_backend/platform/db"
	"crm_backend/platform/logger"
)

// Rebuilds the lead search index from the relational store. Intended for
// one-off runs after schema changes or index drift; the same rebuild can be
// triggered at runtime through the admin endpoint or the worker queue.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting search reindex", "index", cfg.GetSearchIndexName())

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	cacheStore, err := cache.NewFromURL(ctx, cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer cacheStore.Close()

	repo := repository.New(pool)
	mirror := searchindex.New(cacheStore.Client(), repo, log, cfg.GetSearchIndexName(), cfg.GetSearchReindexBatchSize())

	indexed, err := mirror.Reindex(ctx)
	if err != nil {
		log.Error("reindex failed", "error", err)
		panic("reindex failed: " + err.Error())
	}

	log.Info("reindex complete", "indexed", indexed)
}
