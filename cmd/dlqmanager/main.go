package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mudmantim/switchline-backend-sub000/internal/config"
	"github.com/mudmantim/switchline-backend-sub000/internal/outbox"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	scheduler := gocron.NewScheduler(time.UTC)
	_, err = scheduler.Every(cfg.DLQPollInterval).SingletonMode().Tag("dlq-replay").Do(replay, ctx, manager, cfg.DLQBatchSize)
	if err != nil {
		log.Fatalf("failed to schedule dlq replay: %v", err)
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()

	scheduler.StartAsync()
	log.Printf("dlq manager replaying every %s (batch=%d, maxRetries=%d, metrics=%s)",
		cfg.DLQPollInterval, cfg.DLQBatchSize, cfg.DLQMaxRetries, cfg.MetricsAddress)

	<-ctx.Done()
	log.Println("dlq manager shutting down")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}
}

func replay(ctx context.Context, manager *outbox.DLQManager, batchSize int) {
	if ctx.Err() != nil {
		return
	}
	n, err := manager.RunOnce(ctx, batchSize)
	switch {
	case err != nil:
		log.Printf("dlq replay failed: %v", err)
	case n > 0:
		log.Printf("dlq replay handled %d entries", n)
	}
}
