// The sweeper binary runs the reminder sweep loop and the asynq delivery
// worker. It shares the database and redis with cmd/api but carries no HTTP
// surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"dispatch_backend/internal/config"
	"dispatch_backend/internal/notification"
	"dispatch_backend/internal/reminders"
	"dispatch_backend/internal/scheduler"
	"dispatch_backend/platform/db"
	"dispatch_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting sweeper", "env", cfg.Env,
		"interval", cfg.SweepInterval.String(), "batch", cfg.SweepBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	notificationModule := notification.NewModule(pool, log)

	worker, err := scheduler.NewWorker(cfg, notificationModule.Notifier(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	sweeper := reminders.NewSweeper(
		reminders.NewRepository(pool),
		client,
		cfg.SweepInterval,
		cfg.SweepBatchSize,
		log,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		sweeper.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		worker.Run(groupCtx)
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("sweeper stopped", "error", err)
	}
	log.Info("sweeper shut down")
}
