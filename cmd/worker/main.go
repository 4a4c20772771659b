// Package main is the entrypoint for the finsight worker pool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mohitagrawal/finsight/internal/analyzer"
	"github.com/mohitagrawal/finsight/internal/config"
	"github.com/mohitagrawal/finsight/internal/queue"
	"github.com/mohitagrawal/finsight/internal/store"
	"github.com/mohitagrawal/finsight/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"concurrency", cfg.Worker.Concurrency,
		"hard_timeout", cfg.Worker.HardTimeout,
		"soft_timeout", cfg.Worker.SoftTimeout,
		"analyzer", cfg.Analyzer.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	taskQueue, err := queue.NewRedisQueue(cfg.Redis.URL, cfg.Worker.Lease)
	if err != nil {
		return fmt.Errorf("create task queue: %w", err)
	}
	defer taskQueue.Close()

	if err := taskQueue.Ping(ctx); err != nil {
		return fmt.Errorf("ping queue: %w", err)
	}
	slog.Info("task queue connected")

	docAnalyzer, err := analyzer.New(cfg.Analyzer)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}
	slog.Info("analyzer initialized", "provider", docAnalyzer.Name())

	pgStore := store.NewPostgresStore(pool)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		worker.NewReconciler(taskQueue, pgStore, cfg.Worker.ReconcileInterval).Run(ctx)
	}()

	go func() {
		defer wg.Done()
		worker.NewPool(taskQueue, pgStore, docAnalyzer, cfg.Worker).Run(ctx)
	}()

	slog.Info("worker pool started", "executors", cfg.Worker.Concurrency)
	wg.Wait()

	slog.Info("worker stopped gracefully")
	return nil
}
