package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"crm_backend/internal/leads"
	"crm_backend/internal/scheduler"
	"crm_backend/platform/cache"
	"crm_backend/platform/config"
	"crm_backend/platform/db"
	"crm_backend/platform/events"
	"crm_backend/platform/logger"
	"crm_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	leadsModule := leads.NewModule(pool, cacheStore, eventBus, val, cfg, log)
	leadsModule.RegisterHandlers(eventBus)

	worker, err := scheduler.NewWorker(cfg, leadsModule.Service(), leadsModule.Mirror(), log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	log.Info("worker listening", "sweepInterval", cfg.GetOverdueSweepInterval().String())
	worker.Run(ctx)
	log.Info("worker stopped")
}
